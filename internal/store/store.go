package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	config "example.com/tweetgraph/internal/init"
	"example.com/tweetgraph/internal/logger"
	"example.com/tweetgraph/internal/models"
)

var logg = logger.New()

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrForbidden     = errors.New("store: requester does not own the record")
	ErrSelfReference = errors.New("store: follower and following are the same user")
)

// --- Interfaces ---

// StoreInterface is the backing store of users, the follow graph, tweets and
// likes. Every mutation is applied atomically; listings are ordered newest
// first.
type StoreInterface interface {
	// Identity
	CreateUser(ctx context.Context, u models.User) error
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Social graph
	CreateFollow(ctx context.Context, followerID, followingID string, at time.Time) (models.Follow, error)
	DeleteFollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	ListFollowing(ctx context.Context, userID string) ([]models.Follow, error)
	ListFollowers(ctx context.Context, userID string) ([]models.Follow, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
	CountFollowers(ctx context.Context, userID string) (int, error)

	// Content
	AddTweet(ctx context.Context, t models.Tweet) error
	GetTweet(ctx context.Context, id string) (models.Tweet, error)
	// DeleteTweet removes the tweet and its likes. ErrNotFound takes
	// precedence over ErrForbidden.
	DeleteTweet(ctx context.Context, id, requesterID string) error
	ListTweetsByAuthor(ctx context.Context, authorID string) ([]models.Tweet, error)
	ListTweets(ctx context.Context) ([]models.Tweet, error)

	// Likes; AddLike and RemoveLike are idempotent and return the count after
	// the change.
	AddLike(ctx context.Context, userID, tweetID string, at time.Time) (int, error)
	RemoveLike(ctx context.Context, userID, tweetID string) (int, error)
	CountLikes(ctx context.Context, tweetID string) (int, error)
	LikeCounts(ctx context.Context, tweetIDs []string) (map[string]int, error)
	IsLiked(ctx context.Context, userID, tweetID string) (bool, error)
	LikedTweetIDs(ctx context.Context, userID string) (map[string]struct{}, error)

	Close()
}

// New opens the store selected by cfg.StoreDriver.
func New(cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		logg.Info("store", "Using in-memory store")
		return NewMemory(), nil
	case "sql":
		return NewSQL(SQLConfigFrom(cfg))
	case "cassandra":
		return NewCassandra(cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}

// Migrate prepares the schema of the selected store without serving traffic.
func Migrate(cfg *config.Config) error {
	switch cfg.StoreDriver {
	case "", "memory":
		return nil
	case "sql":
		st, err := NewSQL(SQLConfigFrom(cfg))
		if err != nil {
			return err
		}
		st.Close()
		return nil
	case "cassandra":
		if err := ensureKeyspace(cfg); err != nil {
			return fmt.Errorf("failed to ensure keyspace: %w", err)
		}
		return runMigrations(cfg)
	default:
		return fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}

func checkPair(followerID, followingID string) error {
	if followerID == followingID {
		return ErrSelfReference
	}
	return nil
}

// sortFollows orders edges newest first; equal timestamps keep their input
// order.
func sortFollows(f []models.Follow) {
	sort.SliceStable(f, func(i, j int) bool {
		return f[i].CreatedAt.After(f[j].CreatedAt)
	})
}

func sortTweets(t []models.Tweet) {
	sort.SliceStable(t, func(i, j int) bool {
		if !t[i].CreatedAt.Equal(t[j].CreatedAt) {
			return t[i].CreatedAt.After(t[j].CreatedAt)
		}
		return t[i].ID > t[j].ID
	})
}
