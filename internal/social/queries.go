package social

import (
	"context"
	"errors"

	"example.com/tweetgraph/internal/models"
	"example.com/tweetgraph/internal/store"
)

// Profile shows username's tweets, newest first, with follow counts and
// whether viewerID follows them. The email is only included for the owner.
func (s *Service) Profile(ctx context.Context, viewerID, username string) (models.Profile, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return models.Profile{}, err
	}

	tweets, err := s.store.ListTweetsByAuthor(ctx, u.ID)
	if err != nil {
		return models.Profile{}, err
	}
	items, err := s.annotate(ctx, viewerID, tweets, map[string]string{u.ID: u.Username})
	if err != nil {
		return models.Profile{}, err
	}

	followers, err := s.store.CountFollowers(ctx, u.ID)
	if err != nil {
		return models.Profile{}, err
	}
	followings, err := s.store.CountFollowing(ctx, u.ID)
	if err != nil {
		return models.Profile{}, err
	}

	isFollowing := false
	if viewerID != "" && viewerID != u.ID {
		if isFollowing, err = s.store.IsFollowing(ctx, viewerID, u.ID); err != nil {
			return models.Profile{}, err
		}
	}

	if viewerID != u.ID {
		u.Email = ""
	}
	return models.Profile{
		User:          u,
		Tweets:        items,
		FollowersNum:  followers,
		FollowingsNum: followings,
		IsFollowing:   isFollowing,
	}, nil
}

// Feed lists every tweet, newest first, annotated for viewerID.
func (s *Service) Feed(ctx context.Context, viewerID string) (models.Feed, error) {
	tweets, err := s.store.ListTweets(ctx)
	if err != nil {
		logg.Error("social", "Failed to list tweets for feed", err)
		return models.Feed{}, err
	}
	items, err := s.annotate(ctx, viewerID, tweets, map[string]string{})
	if err != nil {
		return models.Feed{}, err
	}
	return models.Feed{Tweets: items}, nil
}

// Tweet returns a single tweet annotated for viewerID.
func (s *Service) Tweet(ctx context.Context, viewerID, tweetID string) (models.TweetItem, error) {
	t, err := s.store.GetTweet(ctx, tweetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.TweetItem{}, ErrTweetNotFound
		}
		return models.TweetItem{}, err
	}
	items, err := s.annotate(ctx, viewerID, []models.Tweet{t}, map[string]string{})
	if err != nil {
		return models.TweetItem{}, err
	}
	return items[0], nil
}

// Following lists the users username follows, most recent edge first.
func (s *Service) Following(ctx context.Context, username string) ([]models.Peer, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	edges, err := s.store.ListFollowing(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return s.peers(ctx, edges, func(f models.Follow) string { return f.FollowingID })
}

// Followers lists the users following username, most recent edge first.
func (s *Service) Followers(ctx context.Context, username string) ([]models.Peer, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	edges, err := s.store.ListFollowers(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return s.peers(ctx, edges, func(f models.Follow) string { return f.FollowerID })
}

func (s *Service) peers(ctx context.Context, edges []models.Follow, other func(models.Follow) string) ([]models.Peer, error) {
	res := make([]models.Peer, 0, len(edges))
	for _, e := range edges {
		u, err := s.store.GetUserByID(ctx, other(e))
		if err != nil {
			return nil, err
		}
		u.Email = ""
		res = append(res, models.Peer{User: u, Since: e.CreatedAt})
	}
	return res, nil
}

// annotate attaches author names, like counts and the viewer's liked flag.
// The viewer's liked set is read once for the whole list.
func (s *Service) annotate(ctx context.Context, viewerID string, tweets []models.Tweet, authors map[string]string) ([]models.TweetItem, error) {
	items := make([]models.TweetItem, 0, len(tweets))
	if len(tweets) == 0 {
		return items, nil
	}

	ids := make([]string, len(tweets))
	for i, t := range tweets {
		ids[i] = t.ID
	}
	counts, err := s.store.LikeCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	liked := map[string]struct{}{}
	if viewerID != "" {
		if liked, err = s.store.LikedTweetIDs(ctx, viewerID); err != nil {
			return nil, err
		}
	}

	for _, t := range tweets {
		name, ok := authors[t.AuthorID]
		if !ok {
			u, err := s.store.GetUserByID(ctx, t.AuthorID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			name = u.Username
			authors[t.AuthorID] = name
		}
		_, isLiked := liked[t.ID]
		items = append(items, models.TweetItem{
			Tweet:     t,
			Author:    name,
			LikeCount: counts[t.ID],
			Liked:     isLiked,
		})
	}
	return items, nil
}
