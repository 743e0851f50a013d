package social

import (
	"context"
	"errors"
	"strings"

	appkafka "example.com/tweetgraph/internal/broker"
	"example.com/tweetgraph/internal/metrics"
	"example.com/tweetgraph/internal/models"
	"example.com/tweetgraph/internal/store"
	"example.com/tweetgraph/internal/validation"
	"github.com/google/uuid"
)

// Every mutation acts as actorID, the authenticated caller. Self-reference is
// rejected before the target is looked up.

// --- Follow graph ---

func (s *Service) Follow(ctx context.Context, actorID, username string) (models.Follow, error) {
	actor, target, err := s.followPair(ctx, actorID, username)
	if err != nil {
		return models.Follow{}, err
	}

	f, err := s.store.CreateFollow(ctx, actor.ID, target.ID, s.now())
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return models.Follow{}, ErrAlreadyFollowing
	case errors.Is(err, store.ErrSelfReference):
		return models.Follow{}, ErrSelfReference
	case err != nil:
		logg.Error("social", "Failed to create follow", err)
		return models.Follow{}, err
	}

	metrics.FollowChanges.WithLabelValues("follow").Inc()
	logg.Info("social", "Follow relationship created (user IDs anonymized)")
	s.publish(ctx, appkafka.Event{Type: appkafka.EventUserFollowed, ActorID: actor.ID, SubjectID: target.ID})
	return f, nil
}

func (s *Service) Unfollow(ctx context.Context, actorID, username string) error {
	actor, target, err := s.followPair(ctx, actorID, username)
	if err != nil {
		return err
	}

	err = s.store.DeleteFollow(ctx, actor.ID, target.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFollowing
	case errors.Is(err, store.ErrSelfReference):
		return ErrSelfReference
	case err != nil:
		logg.Error("social", "Failed to delete follow", err)
		return err
	}

	metrics.FollowChanges.WithLabelValues("unfollow").Inc()
	logg.Info("social", "Follow relationship removed (user IDs anonymized)")
	s.publish(ctx, appkafka.Event{Type: appkafka.EventUserUnfollowed, ActorID: actor.ID, SubjectID: target.ID})
	return nil
}

func (s *Service) followPair(ctx context.Context, actorID, username string) (models.User, models.User, error) {
	actor, err := s.GetUser(ctx, actorID)
	if err != nil {
		return models.User{}, models.User{}, err
	}
	if actor.Username == username {
		return models.User{}, models.User{}, ErrSelfReference
	}
	target, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, models.User{}, err
	}
	return actor, target, nil
}

// --- Tweets ---

// Post publishes content as a new tweet by actorID. Surrounding whitespace
// is trimmed before the length check.
func (s *Service) Post(ctx context.Context, actorID, content string) (models.Tweet, error) {
	if errs := s.validator.Tweet(validation.TweetForm{Content: content}); len(errs) > 0 {
		return models.Tweet{}, &ValidationError{Fields: errs}
	}
	if _, err := s.GetUser(ctx, actorID); err != nil {
		return models.Tweet{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Tweet{}, err
	}
	t := models.Tweet{
		ID:        id.String(),
		AuthorID:  actorID,
		Content:   strings.TrimSpace(content),
		CreatedAt: s.now(),
	}
	if err := s.store.AddTweet(ctx, t); err != nil {
		logg.Error("social", "Failed to add tweet", err)
		return models.Tweet{}, err
	}

	metrics.TweetsPosted.Inc()
	logg.Info("social", "Tweet posted (content anonymized)")
	s.publish(ctx, appkafka.Event{Type: appkafka.EventTweetPosted, ActorID: actorID, SubjectID: t.ID})
	return t, nil
}

// DeleteTweet removes the tweet and its likes. A missing tweet is reported
// before ownership is checked.
func (s *Service) DeleteTweet(ctx context.Context, actorID, tweetID string) error {
	err := s.store.DeleteTweet(ctx, tweetID, actorID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrTweetNotFound
	case errors.Is(err, store.ErrForbidden):
		return ErrForbidden
	case err != nil:
		logg.Error("social", "Failed to delete tweet", err)
		return err
	}

	metrics.TweetsDeleted.Inc()
	logg.Info("social", "Tweet deleted by its author")
	s.publish(ctx, appkafka.Event{Type: appkafka.EventTweetDeleted, ActorID: actorID, SubjectID: tweetID})
	return nil
}

// --- Likes ---

// Like is idempotent and returns the tweet's like count afterwards. The
// actor must be a known user.
func (s *Service) Like(ctx context.Context, actorID, tweetID string) (int, error) {
	if _, err := s.GetUser(ctx, actorID); err != nil {
		return 0, err
	}

	n, err := s.store.AddLike(ctx, actorID, tweetID, s.now())
	if err != nil {
		return 0, s.likeError(err)
	}

	metrics.LikeChanges.WithLabelValues("like").Inc()
	s.publish(ctx, appkafka.Event{Type: appkafka.EventTweetLiked, ActorID: actorID, SubjectID: tweetID, LikeCount: &n})
	return n, nil
}

// Unlike is idempotent and returns the tweet's like count afterwards.
func (s *Service) Unlike(ctx context.Context, actorID, tweetID string) (int, error) {
	if _, err := s.GetUser(ctx, actorID); err != nil {
		return 0, err
	}

	n, err := s.store.RemoveLike(ctx, actorID, tweetID)
	if err != nil {
		return 0, s.likeError(err)
	}

	metrics.LikeChanges.WithLabelValues("unlike").Inc()
	s.publish(ctx, appkafka.Event{Type: appkafka.EventTweetUnliked, ActorID: actorID, SubjectID: tweetID, LikeCount: &n})
	return n, nil
}

func (s *Service) likeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrTweetNotFound
	}
	logg.Error("social", "Failed to update like", err)
	return err
}
