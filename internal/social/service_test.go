package social

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	appkafka "example.com/tweetgraph/internal/broker"
	"example.com/tweetgraph/internal/models"
	"example.com/tweetgraph/internal/store"
	"example.com/tweetgraph/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	svc   *Service
	store *store.MemoryStore
	kafka *appkafka.MockKafka
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewMemory()
	mk := &appkafka.MockKafka{}
	opts = append([]Option{
		WithPublisher(appkafka.NewKafkaPublisher(mk)),
		WithClock(tickingClock()),
		WithBcryptCost(bcrypt.MinCost),
	}, opts...)
	return &fixture{svc: New(st, opts...), store: st, kafka: mk}
}

func (f *fixture) register(t *testing.T, username string) models.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), validation.SignupForm{
		Username:  username,
		Email:     username + "@example.com",
		Password1: "goodpassword",
		Password2: "goodpassword",
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) eventTypes() []string {
	var types []string
	for _, ev := range f.kafka.Events() {
		types = append(types, ev.Type)
	}
	return types
}

func fieldErrors(t *testing.T, err error) validation.Errors {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

// --- Identity ---

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "alice")
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "goodpassword", u.PasswordHash)

	stored, err := f.store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("goodpassword")))

	_, err = f.svc.Register(ctx, validation.SignupForm{
		Username: "alice", Email: "a2@example.com", Password1: "goodpassword", Password2: "goodpassword",
	})
	assert.Equal(t, []string{"同じユーザー名が既に登録済みです。"}, fieldErrors(t, err)["username"])
}

func TestRegister_InvalidFormCreatesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), validation.SignupForm{
		Username: "test", Email: "test@example", Password1: "good", Password2: "good",
	})
	errs := fieldErrors(t, err)
	assert.True(t, errs.Has("email"))
	assert.True(t, errs.Has("password2"))

	_, err = f.store.GetUserByUsername(context.Background(), "test")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegister_StoreFailure(t *testing.T) {
	svc := New(store.FailingStore{}, WithBcryptCost(bcrypt.MinCost))
	_, err := svc.Register(context.Background(), validation.SignupForm{
		Username: "alice", Email: "alice@example.com", Password1: "goodpassword", Password2: "goodpassword",
	})
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	u, err := f.svc.Authenticate(ctx, validation.LoginForm{Username: "alice", Password: "goodpassword"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, u.ID)

	for _, form := range []validation.LoginForm{
		{Username: "alice", Password: "wrongpassword"},
		{Username: "nottest", Password: "password1"},
		{Username: "Alice", Password: "goodpassword"},
	} {
		_, err := f.svc.Authenticate(ctx, form)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t,
			[]string{"正しいユーザー名とパスワードを入力してください。どちらのフィールドも大文字と小文字は区別されます。"},
			fieldErrors(t, err)[validation.NonFieldKey],
		)
	}

	_, err = f.svc.Authenticate(ctx, validation.LoginForm{Username: "alice"})
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{"このフィールドは必須です。"}, fieldErrors(t, err)["password"])
}

// --- Follow graph ---

func TestFollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")

	edge, err := f.svc.Follow(ctx, alice.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, edge.FollowerID)
	assert.Equal(t, bob.ID, edge.FollowingID)

	_, err = f.svc.Follow(ctx, alice.ID, "bob")
	assert.ErrorIs(t, err, ErrAlreadyFollowing)

	_, err = f.svc.Follow(ctx, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrSelfReference)

	_, err = f.svc.Follow(ctx, alice.ID, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	n, err := f.store.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{appkafka.EventUserFollowed}, f.eventTypes())
}

func TestFollow_SelfReferenceBeforeExistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	_, err := f.svc.Follow(ctx, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrSelfReference)
	assert.ErrorIs(t, f.svc.Unfollow(ctx, alice.ID, "alice"), ErrSelfReference)
}

func TestUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")

	assert.ErrorIs(t, f.svc.Unfollow(ctx, alice.ID, "bob"), ErrNotFollowing)
	assert.ErrorIs(t, f.svc.Unfollow(ctx, alice.ID, "nobody"), ErrUserNotFound)

	_, err := f.svc.Follow(ctx, alice.ID, "bob")
	require.NoError(t, err)
	require.NoError(t, f.svc.Unfollow(ctx, alice.ID, "bob"))

	ok, err := f.store.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{appkafka.EventUserFollowed, appkafka.EventUserUnfollowed}, f.eventTypes())
}

func TestFollow_ConcurrentRequestsCreateOneEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Follow(ctx, alice.ID, "bob")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyFollowing)
	}
	assert.Equal(t, 1, ok)

	n, err := f.store.CountFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// --- Tweets ---

func TestPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	tw, err := f.svc.Post(ctx, alice.ID, "  hello world  ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", tw.Content)
	assert.Equal(t, alice.ID, tw.AuthorID)

	_, err = f.svc.Post(ctx, alice.ID, strings.Repeat("x", 200))
	assert.NoError(t, err)

	_, err = f.svc.Post(ctx, alice.ID, strings.Repeat("x", 201))
	assert.True(t, fieldErrors(t, err).Has("content"))

	_, err = f.svc.Post(ctx, alice.ID, "")
	assert.True(t, fieldErrors(t, err).Has("content"))

	_, err = f.svc.Post(ctx, "ghost", "hello")
	assert.ErrorIs(t, err, ErrUserNotFound)

	all, err := f.store.ListTweets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteTweet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")

	tw, err := f.svc.Post(ctx, alice.ID, "hello")
	require.NoError(t, err)
	_, err = f.svc.Like(ctx, bob.ID, tw.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteTweet(ctx, bob.ID, "missing"), ErrTweetNotFound)
	assert.ErrorIs(t, f.svc.DeleteTweet(ctx, bob.ID, tw.ID), ErrForbidden)

	require.NoError(t, f.svc.DeleteTweet(ctx, alice.ID, tw.ID))
	_, err = f.svc.Tweet(ctx, alice.ID, tw.ID)
	assert.ErrorIs(t, err, ErrTweetNotFound)

	liked, err := f.store.LikedTweetIDs(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, liked)

	assert.ErrorIs(t, f.svc.DeleteTweet(ctx, alice.ID, tw.ID), ErrTweetNotFound)
}

// --- Likes ---

func TestLikeUnlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")
	tw, err := f.svc.Post(ctx, alice.ID, "hello")
	require.NoError(t, err)

	n, err := f.svc.Like(ctx, bob.ID, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.Like(ctx, bob.ID, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.Like(ctx, alice.ID, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.Unlike(ctx, bob.ID, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.Unlike(ctx, bob.ID, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.Like(ctx, bob.ID, "missing")
	assert.ErrorIs(t, err, ErrTweetNotFound)
	_, err = f.svc.Unlike(ctx, bob.ID, "missing")
	assert.ErrorIs(t, err, ErrTweetNotFound)

	evs := f.kafka.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, appkafka.EventTweetUnliked, last.Type)
	require.NotNil(t, last.LikeCount)
	assert.Equal(t, 1, *last.LikeCount)
}

func TestLikeUnlike_UnknownActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	tw, err := f.svc.Post(ctx, alice.ID, "hello")
	require.NoError(t, err)

	_, err = f.svc.Like(ctx, "ghost", tw.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.Unlike(ctx, "ghost", tw.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	n, err := f.store.CountLikes(ctx, tw.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotContains(t, f.eventTypes(), appkafka.EventTweetLiked)
}

func TestPublishFailureKeepsMutation(t *testing.T) {
	f := newFixture(t, WithPublisher(appkafka.NewKafkaPublisher(&appkafka.MockKafkaFail{})))
	ctx := context.Background()
	alice := f.register(t, "alice")

	tw, err := f.svc.Post(ctx, alice.ID, "still saved")
	require.NoError(t, err)

	got, err := f.store.GetTweet(ctx, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, "still saved", got.Content)
}

// --- Read views ---

func TestFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")

	t1, err := f.svc.Post(ctx, alice.ID, "first")
	require.NoError(t, err)
	t2, err := f.svc.Post(ctx, bob.ID, "second")
	require.NoError(t, err)
	_, err = f.svc.Like(ctx, alice.ID, t2.ID)
	require.NoError(t, err)

	feed, err := f.svc.Feed(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, feed.Tweets, 2)

	assert.Equal(t, t2.ID, feed.Tweets[0].ID, "newest first")
	assert.Equal(t, "bob", feed.Tweets[0].Author)
	assert.Equal(t, 1, feed.Tweets[0].LikeCount)
	assert.True(t, feed.Tweets[0].Liked)

	assert.Equal(t, t1.ID, feed.Tweets[1].ID)
	assert.Equal(t, "alice", feed.Tweets[1].Author)
	assert.False(t, feed.Tweets[1].Liked)

	other, err := f.svc.Feed(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, other.Tweets[0].Liked, "liked flag is per viewer")

	empty, err := New(store.NewMemory()).Feed(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty.Tweets)
	assert.Empty(t, empty.Tweets)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.register(t, "alice"), f.register(t, "bob")
	carol := f.register(t, "carol")

	_, err := f.svc.Post(ctx, alice.ID, "one")
	require.NoError(t, err)
	t2, err := f.svc.Post(ctx, alice.ID, "two")
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, bob.ID, "not alice")
	require.NoError(t, err)

	_, err = f.svc.Follow(ctx, bob.ID, "alice")
	require.NoError(t, err)
	_, err = f.svc.Follow(ctx, carol.ID, "alice")
	require.NoError(t, err)
	_, err = f.svc.Follow(ctx, alice.ID, "bob")
	require.NoError(t, err)
	_, err = f.svc.Like(ctx, bob.ID, t2.ID)
	require.NoError(t, err)

	p, err := f.svc.Profile(ctx, bob.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.User.Username)
	assert.Empty(t, p.User.Email, "email is private to the owner")
	assert.Equal(t, 2, p.FollowersNum)
	assert.Equal(t, 1, p.FollowingsNum)
	assert.True(t, p.IsFollowing)
	require.Len(t, p.Tweets, 2)
	assert.Equal(t, t2.ID, p.Tweets[0].ID)
	assert.True(t, p.Tweets[0].Liked)
	assert.Equal(t, 1, p.Tweets[0].LikeCount)

	own, err := f.svc.Profile(ctx, alice.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", own.User.Email)
	assert.False(t, own.IsFollowing)

	_, err = f.svc.Profile(ctx, alice.ID, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFollowingAndFollowers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "bob")
	carol := f.register(t, "carol")

	_, err := f.svc.Follow(ctx, alice.ID, "bob")
	require.NoError(t, err)
	_, err = f.svc.Follow(ctx, alice.ID, "carol")
	require.NoError(t, err)
	_, err = f.svc.Follow(ctx, carol.ID, "bob")
	require.NoError(t, err)

	following, err := f.svc.Following(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, following, 2)
	assert.Equal(t, "carol", following[0].User.Username)
	assert.Equal(t, "bob", following[1].User.Username)
	assert.True(t, following[0].Since.After(following[1].Since))

	followers, err := f.svc.Followers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, "carol", followers[0].User.Username)
	assert.Equal(t, "alice", followers[1].User.Username)

	none, err := f.svc.Followers(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.Following(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestQueries_StoreFailure(t *testing.T) {
	svc := New(store.FailingStore{})
	ctx := context.Background()

	_, err := svc.Feed(ctx, "u1")
	assert.Error(t, err)
	_, err = svc.Profile(ctx, "u1", "alice")
	assert.Error(t, err)
	assert.False(t, IsNotFound(err))
}
