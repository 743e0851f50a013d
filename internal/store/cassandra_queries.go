package store

import (
	"context"
	"errors"
	"time"

	"example.com/tweetgraph/internal/models"
	"github.com/gocql/gocql"
)

// timelineBucket is the single partition of tweets_timeline.
const timelineBucket = 0

// --- User operations ---

// CreateUser claims the username with a CAS insert before writing the
// user row. The claim is released when the user row cannot be written.
func (s *CassandraStore) CreateUser(ctx context.Context, u models.User) error {
	run := s.stmts()
	prev := map[string]interface{}{}
	applied, err := run.CAS(ctx, prev, `
		INSERT INTO users_by_username (username, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		u.Username, u.ID,
	)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return err
	}
	// a retry of the same user falls through and rewrites its row
	if !applied && prev["user_id"] != u.ID {
		return ErrAlreadyExists
	}

	err = run.Exec(ctx, `
		INSERT INTO users (user_id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		if _, rbErr := run.CAS(ctx, map[string]interface{}{}, `
			DELETE FROM users_by_username WHERE username = ? IF user_id = ?`,
			u.Username, u.ID,
		); rbErr != nil {
			logg.Error("store", "Failed to release username", rbErr)
		}
		return err
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return nil
}

func (s *CassandraStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	u := models.User{ID: id}
	err := s.Session.Query(`
		SELECT username, email, password_hash, created_at FROM users WHERE user_id = ?`,
		id,
	).WithContext(ctx).Scan(&u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by id", err)
		return models.User{}, err
	}
	return u, nil
}

func (s *CassandraStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_username WHERE username = ?`,
		username,
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by username", err)
		return models.User{}, err
	}
	return s.GetUserByID(ctx, id)
}

// --- Follow operations ---

// CreateFollow inserts the edge with a CAS and then its follower index row.
// A failed index write removes the edge again; an existing edge has its index
// row rewritten, so retrying repairs an earlier partial write.
func (s *CassandraStore) CreateFollow(ctx context.Context, followerID, followingID string, at time.Time) (models.Follow, error) {
	if err := checkPair(followerID, followingID); err != nil {
		return models.Follow{}, err
	}

	run := s.stmts()
	prev := map[string]interface{}{}
	applied, err := run.CAS(ctx, prev, `
		INSERT INTO follows (follower_id, following_id, created_at)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		followerID, followingID, at,
	)
	if err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return models.Follow{}, err
	}
	if !applied {
		if existing, ok := prev["created_at"].(time.Time); ok {
			if err := writeFollowerIndex(ctx, run, followerID, followingID, existing); err != nil {
				logg.Error("store", "Failed to repair follower index", err)
			}
		}
		return models.Follow{}, ErrAlreadyExists
	}

	if err := writeFollowerIndex(ctx, run, followerID, followingID, at); err != nil {
		logg.Error("store", "Failed to write follower index", err)
		if _, rbErr := run.CAS(ctx, map[string]interface{}{}, `
			DELETE FROM follows WHERE follower_id = ? AND following_id = ? IF EXISTS`,
			followerID, followingID,
		); rbErr != nil {
			logg.Error("store", "Failed to roll back follow relationship", rbErr)
		}
		return models.Follow{}, err
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return models.Follow{FollowerID: followerID, FollowingID: followingID, CreatedAt: at}, nil
}

func writeFollowerIndex(ctx context.Context, run statementRunner, followerID, followingID string, at time.Time) error {
	return run.Exec(ctx, `
		INSERT INTO followers_by_followee (following_id, follower_id, created_at)
		VALUES (?, ?, ?)`,
		followingID, followerID, at,
	)
}

// DeleteFollow removes the edge with a CAS. The index row is deleted even
// when the edge is already gone, which clears a leftover from an earlier
// failure.
func (s *CassandraStore) DeleteFollow(ctx context.Context, followerID, followingID string) error {
	if err := checkPair(followerID, followingID); err != nil {
		return err
	}

	run := s.stmts()
	applied, err := run.CAS(ctx, map[string]interface{}{}, `
		DELETE FROM follows WHERE follower_id = ? AND following_id = ? IF EXISTS`,
		followerID, followingID,
	)
	if err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}

	if err := run.Exec(ctx, `
		DELETE FROM followers_by_followee WHERE following_id = ? AND follower_id = ?`,
		followingID, followerID,
	); err != nil {
		logg.Error("store", "Failed to delete follower index", err)
		return err
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

func (s *CassandraStore) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var id string
	err := s.Session.Query(`
		SELECT following_id FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID,
	).WithContext(ctx).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *CassandraStore) ListFollowing(ctx context.Context, userID string) ([]models.Follow, error) {
	iter := s.Session.Query(
		`SELECT following_id, created_at FROM follows WHERE follower_id = ?`,
		userID,
	).WithContext(ctx).Iter()

	var peer string
	var at time.Time
	res := []models.Follow{}
	for iter.Scan(&peer, &at) {
		res = append(res, models.Follow{FollowerID: userID, FollowingID: peer, CreatedAt: at})
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get following", err)
		return nil, err
	}
	sortFollows(res)
	return res, nil
}

func (s *CassandraStore) ListFollowers(ctx context.Context, userID string) ([]models.Follow, error) {
	iter := s.Session.Query(
		`SELECT follower_id, created_at FROM followers_by_followee WHERE following_id = ?`,
		userID,
	).WithContext(ctx).Iter()

	var peer string
	var at time.Time
	res := []models.Follow{}
	for iter.Scan(&peer, &at) {
		res = append(res, models.Follow{FollowerID: peer, FollowingID: userID, CreatedAt: at})
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, err
	}
	sortFollows(res)
	return res, nil
}

func (s *CassandraStore) count(ctx context.Context, stmt string, values ...interface{}) (int, error) {
	var n int
	if err := s.Session.Query(stmt, values...).WithContext(ctx).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *CassandraStore) CountFollowing(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, userID)
}

func (s *CassandraStore) CountFollowers(ctx context.Context, userID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM followers_by_followee WHERE following_id = ?`, userID)
}

// --- Tweet operations ---

func (s *CassandraStore) AddTweet(ctx context.Context, t models.Tweet) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO tweets (tweet_id, author_id, content, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.AuthorID, t.Content, t.CreatedAt)
	batch.Query(`INSERT INTO tweets_by_author (author_id, created_at, tweet_id, content) VALUES (?, ?, ?, ?)`,
		t.AuthorID, t.CreatedAt, t.ID, t.Content)
	batch.Query(`INSERT INTO tweets_timeline (bucket, created_at, tweet_id, author_id, content) VALUES (?, ?, ?, ?, ?)`,
		timelineBucket, t.CreatedAt, t.ID, t.AuthorID, t.Content)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add tweet", err)
		return err
	}

	logg.Info("store", "Tweet added (content anonymized)")
	return nil
}

func (s *CassandraStore) GetTweet(ctx context.Context, id string) (models.Tweet, error) {
	t := models.Tweet{ID: id}
	err := s.Session.Query(`
		SELECT author_id, content, created_at FROM tweets WHERE tweet_id = ?`,
		id,
	).WithContext(ctx).Scan(&t.AuthorID, &t.Content, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return models.Tweet{}, ErrNotFound
		}
		return models.Tweet{}, err
	}
	return t, nil
}

// DeleteTweet removes every copy of the tweet together with its likes in a
// single logged batch.
func (s *CassandraStore) DeleteTweet(ctx context.Context, id, requesterID string) error {
	t, err := s.GetTweet(ctx, id)
	if err != nil {
		return err
	}
	if t.AuthorID != requesterID {
		return ErrForbidden
	}

	likers, err := s.likers(ctx, id)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM tweets WHERE tweet_id = ?`, id)
	batch.Query(`DELETE FROM tweets_by_author WHERE author_id = ? AND created_at = ? AND tweet_id = ?`,
		t.AuthorID, t.CreatedAt, id)
	batch.Query(`DELETE FROM tweets_timeline WHERE bucket = ? AND created_at = ? AND tweet_id = ?`,
		timelineBucket, t.CreatedAt, id)
	batch.Query(`DELETE FROM likes WHERE tweet_id = ?`, id)
	for _, u := range likers {
		batch.Query(`DELETE FROM likes_by_user WHERE user_id = ? AND tweet_id = ?`, u, id)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete tweet", err)
		return err
	}
	return nil
}

func (s *CassandraStore) scanTweets(iter *gocql.Iter, authorID string) ([]models.Tweet, error) {
	var t models.Tweet
	res := []models.Tweet{}
	if authorID != "" {
		for iter.Scan(&t.ID, &t.Content, &t.CreatedAt) {
			t.AuthorID = authorID
			res = append(res, t)
		}
	} else {
		for iter.Scan(&t.ID, &t.AuthorID, &t.Content, &t.CreatedAt) {
			res = append(res, t)
		}
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list tweets", err)
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) ListTweetsByAuthor(ctx context.Context, authorID string) ([]models.Tweet, error) {
	iter := s.Session.Query(`
		SELECT tweet_id, content, created_at FROM tweets_by_author WHERE author_id = ?`,
		authorID,
	).WithContext(ctx).Iter()
	return s.scanTweets(iter, authorID)
}

func (s *CassandraStore) ListTweets(ctx context.Context) ([]models.Tweet, error) {
	iter := s.Session.Query(`
		SELECT tweet_id, author_id, content, created_at FROM tweets_timeline WHERE bucket = ?`,
		timelineBucket,
	).WithContext(ctx).Iter()
	return s.scanTweets(iter, "")
}

// --- Like operations ---

func (s *CassandraStore) AddLike(ctx context.Context, userID, tweetID string, at time.Time) (int, error) {
	if _, err := s.GetTweet(ctx, tweetID); err != nil {
		return 0, err
	}
	if err := s.insertLike(ctx, userID, tweetID, at); err != nil {
		return 0, err
	}
	return s.countLikes(ctx, tweetID)
}

// insertLike claims the (tweet, user) key with a CAS and then writes the
// likes_by_user row, for new and existing likes alike. A new claim is
// released when that write fails.
func (s *CassandraStore) insertLike(ctx context.Context, userID, tweetID string, at time.Time) error {
	run := s.stmts()
	applied, err := run.CAS(ctx, map[string]interface{}{}, `
		INSERT INTO likes (tweet_id, user_id, created_at) VALUES (?, ?, ?) IF NOT EXISTS`,
		tweetID, userID, at,
	)
	if err != nil {
		logg.Error("store", "Failed to add like", err)
		return err
	}

	if err := run.Exec(ctx, `
		INSERT INTO likes_by_user (user_id, tweet_id) VALUES (?, ?)`,
		userID, tweetID,
	); err != nil {
		logg.Error("store", "Failed to write like index", err)
		if applied {
			if _, rbErr := run.CAS(ctx, map[string]interface{}{}, `
				DELETE FROM likes WHERE tweet_id = ? AND user_id = ? IF EXISTS`,
				tweetID, userID,
			); rbErr != nil {
				logg.Error("store", "Failed to roll back like", rbErr)
			}
		}
		return err
	}
	return nil
}

func (s *CassandraStore) RemoveLike(ctx context.Context, userID, tweetID string) (int, error) {
	if _, err := s.GetTweet(ctx, tweetID); err != nil {
		return 0, err
	}
	if err := s.deleteLike(ctx, userID, tweetID); err != nil {
		return 0, err
	}
	return s.countLikes(ctx, tweetID)
}

// deleteLike removes the like through the same CAS path that creates it,
// then its likes_by_user row.
func (s *CassandraStore) deleteLike(ctx context.Context, userID, tweetID string) error {
	run := s.stmts()
	if _, err := run.CAS(ctx, map[string]interface{}{}, `
		DELETE FROM likes WHERE tweet_id = ? AND user_id = ? IF EXISTS`,
		tweetID, userID,
	); err != nil {
		logg.Error("store", "Failed to remove like", err)
		return err
	}
	if err := run.Exec(ctx, `
		DELETE FROM likes_by_user WHERE user_id = ? AND tweet_id = ?`,
		userID, tweetID,
	); err != nil {
		logg.Error("store", "Failed to remove like index", err)
		return err
	}
	return nil
}

func (s *CassandraStore) countLikes(ctx context.Context, tweetID string) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM likes WHERE tweet_id = ?`, tweetID)
}

func (s *CassandraStore) likers(ctx context.Context, tweetID string) ([]string, error) {
	iter := s.Session.Query(`SELECT user_id FROM likes WHERE tweet_id = ?`, tweetID).WithContext(ctx).Iter()
	var id string
	var res []string
	for iter.Scan(&id) {
		res = append(res, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) CountLikes(ctx context.Context, tweetID string) (int, error) {
	if _, err := s.GetTweet(ctx, tweetID); err != nil {
		return 0, err
	}
	return s.countLikes(ctx, tweetID)
}

func (s *CassandraStore) LikeCounts(ctx context.Context, tweetIDs []string) (map[string]int, error) {
	res := make(map[string]int, len(tweetIDs))
	for _, id := range tweetIDs {
		n, err := s.countLikes(ctx, id)
		if err != nil {
			return nil, err
		}
		res[id] = n
	}
	return res, nil
}

func (s *CassandraStore) IsLiked(ctx context.Context, userID, tweetID string) (bool, error) {
	var id string
	err := s.Session.Query(`
		SELECT user_id FROM likes WHERE tweet_id = ? AND user_id = ?`,
		tweetID, userID,
	).WithContext(ctx).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *CassandraStore) LikedTweetIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	iter := s.Session.Query(
		`SELECT tweet_id FROM likes_by_user WHERE user_id = ?`,
		userID,
	).WithContext(ctx).Iter()

	var id string
	res := make(map[string]struct{})
	for iter.Scan(&id) {
		res[id] = struct{}{}
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get liked tweets", err)
		return nil, err
	}
	return res, nil
}
