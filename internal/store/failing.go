package store

import (
	"context"
	"errors"
	"time"

	"example.com/tweetgraph/internal/models"
)

// ---------------------------------------------
// FailingStore always returns errors for negative tests
type FailingStore struct{}

var errFailing = errors.New("failing store: backend unavailable")

func (FailingStore) Close() {}

func (FailingStore) CreateUser(context.Context, models.User) error { return errFailing }

func (FailingStore) GetUserByID(context.Context, string) (models.User, error) {
	return models.User{}, errFailing
}

func (FailingStore) GetUserByUsername(context.Context, string) (models.User, error) {
	return models.User{}, errFailing
}

func (FailingStore) CreateFollow(context.Context, string, string, time.Time) (models.Follow, error) {
	return models.Follow{}, errFailing
}

func (FailingStore) DeleteFollow(context.Context, string, string) error { return errFailing }

func (FailingStore) IsFollowing(context.Context, string, string) (bool, error) {
	return false, errFailing
}

func (FailingStore) ListFollowing(context.Context, string) ([]models.Follow, error) {
	return nil, errFailing
}

func (FailingStore) ListFollowers(context.Context, string) ([]models.Follow, error) {
	return nil, errFailing
}

func (FailingStore) CountFollowing(context.Context, string) (int, error) { return 0, errFailing }

func (FailingStore) CountFollowers(context.Context, string) (int, error) { return 0, errFailing }

func (FailingStore) AddTweet(context.Context, models.Tweet) error { return errFailing }

func (FailingStore) GetTweet(context.Context, string) (models.Tweet, error) {
	return models.Tweet{}, errFailing
}

func (FailingStore) DeleteTweet(context.Context, string, string) error { return errFailing }

func (FailingStore) ListTweetsByAuthor(context.Context, string) ([]models.Tweet, error) {
	return nil, errFailing
}

func (FailingStore) ListTweets(context.Context) ([]models.Tweet, error) { return nil, errFailing }

func (FailingStore) AddLike(context.Context, string, string, time.Time) (int, error) {
	return 0, errFailing
}

func (FailingStore) RemoveLike(context.Context, string, string) (int, error) { return 0, errFailing }

func (FailingStore) CountLikes(context.Context, string) (int, error) { return 0, errFailing }

func (FailingStore) LikeCounts(context.Context, []string) (map[string]int, error) {
	return nil, errFailing
}

func (FailingStore) IsLiked(context.Context, string, string) (bool, error) { return false, errFailing }

func (FailingStore) LikedTweetIDs(context.Context, string) (map[string]struct{}, error) {
	return nil, errFailing
}

var _ StoreInterface = FailingStore{}
