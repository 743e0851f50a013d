package store

import (
	"context"
	"sync"
	"time"

	"example.com/tweetgraph/internal/models"
)

type edgeKey struct{ a, b string }

// MemoryStore keeps everything in process memory. A single lock guards all
// maps so each mutation is applied as one unit.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[string]models.User
	byUsername map[string]string

	follows     map[edgeKey]models.Follow // (follower, following)
	followOrder []edgeKey

	tweets     map[string]models.Tweet
	tweetOrder []string

	likes map[edgeKey]models.Like // (user, tweet)
}

// NewMemory initializes an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		byUsername: make(map[string]string),
		follows:    make(map[edgeKey]models.Follow),
		tweets:     make(map[string]models.Tweet),
		likes:      make(map[edgeKey]models.Like),
	}
}

func (m *MemoryStore) Close() {}

// --- User operations ---

func (m *MemoryStore) CreateUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUsername[u.Username]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.users[u.ID]; ok {
		return ErrAlreadyExists
	}
	m.users[u.ID] = u
	m.byUsername[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[username]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.users[id], nil
}

// --- Follow operations ---

func (m *MemoryStore) CreateFollow(_ context.Context, followerID, followingID string, at time.Time) (models.Follow, error) {
	if err := checkPair(followerID, followingID); err != nil {
		return models.Follow{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := edgeKey{followerID, followingID}
	if _, ok := m.follows[k]; ok {
		return models.Follow{}, ErrAlreadyExists
	}
	f := models.Follow{FollowerID: followerID, FollowingID: followingID, CreatedAt: at}
	m.follows[k] = f
	m.followOrder = append(m.followOrder, k)
	return f, nil
}

func (m *MemoryStore) DeleteFollow(_ context.Context, followerID, followingID string) error {
	if err := checkPair(followerID, followingID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := edgeKey{followerID, followingID}
	if _, ok := m.follows[k]; !ok {
		return ErrNotFound
	}
	delete(m.follows, k)
	for i, o := range m.followOrder {
		if o == k {
			m.followOrder = append(m.followOrder[:i], m.followOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) IsFollowing(_ context.Context, followerID, followingID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.follows[edgeKey{followerID, followingID}]
	return ok, nil
}

// edges walks the follow edges newest insertion first and keeps those match
// accepts.
func (m *MemoryStore) edges(match func(k edgeKey) bool) []models.Follow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := []models.Follow{}
	for i := len(m.followOrder) - 1; i >= 0; i-- {
		k := m.followOrder[i]
		if match(k) {
			res = append(res, m.follows[k])
		}
	}
	sortFollows(res)
	return res
}

func (m *MemoryStore) ListFollowing(_ context.Context, userID string) ([]models.Follow, error) {
	return m.edges(func(k edgeKey) bool { return k.a == userID }), nil
}

func (m *MemoryStore) ListFollowers(_ context.Context, userID string) ([]models.Follow, error) {
	return m.edges(func(k edgeKey) bool { return k.b == userID }), nil
}

func (m *MemoryStore) CountFollowing(ctx context.Context, userID string) (int, error) {
	f, _ := m.ListFollowing(ctx, userID)
	return len(f), nil
}

func (m *MemoryStore) CountFollowers(ctx context.Context, userID string) (int, error) {
	f, _ := m.ListFollowers(ctx, userID)
	return len(f), nil
}

// --- Tweet operations ---

func (m *MemoryStore) AddTweet(_ context.Context, t models.Tweet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tweets[t.ID]; ok {
		return ErrAlreadyExists
	}
	m.tweets[t.ID] = t
	m.tweetOrder = append(m.tweetOrder, t.ID)
	return nil
}

func (m *MemoryStore) GetTweet(_ context.Context, id string) (models.Tweet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tweets[id]
	if !ok {
		return models.Tweet{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) DeleteTweet(_ context.Context, id, requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tweets[id]
	if !ok {
		return ErrNotFound
	}
	if t.AuthorID != requesterID {
		return ErrForbidden
	}

	delete(m.tweets, id)
	for i, o := range m.tweetOrder {
		if o == id {
			m.tweetOrder = append(m.tweetOrder[:i], m.tweetOrder[i+1:]...)
			break
		}
	}
	for k := range m.likes {
		if k.b == id {
			delete(m.likes, k)
		}
	}
	return nil
}

func (m *MemoryStore) tweetsWhere(match func(t models.Tweet) bool) []models.Tweet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := []models.Tweet{}
	for i := len(m.tweetOrder) - 1; i >= 0; i-- {
		t := m.tweets[m.tweetOrder[i]]
		if match(t) {
			res = append(res, t)
		}
	}
	sortTweets(res)
	return res
}

func (m *MemoryStore) ListTweetsByAuthor(_ context.Context, authorID string) ([]models.Tweet, error) {
	return m.tweetsWhere(func(t models.Tweet) bool { return t.AuthorID == authorID }), nil
}

func (m *MemoryStore) ListTweets(_ context.Context) ([]models.Tweet, error) {
	return m.tweetsWhere(func(models.Tweet) bool { return true }), nil
}

// --- Like operations ---

func (m *MemoryStore) AddLike(_ context.Context, userID, tweetID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tweets[tweetID]; !ok {
		return 0, ErrNotFound
	}
	k := edgeKey{userID, tweetID}
	if _, ok := m.likes[k]; !ok {
		m.likes[k] = models.Like{UserID: userID, TweetID: tweetID, CreatedAt: at}
	}
	return m.countLikesLocked(tweetID), nil
}

func (m *MemoryStore) RemoveLike(_ context.Context, userID, tweetID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tweets[tweetID]; !ok {
		return 0, ErrNotFound
	}
	delete(m.likes, edgeKey{userID, tweetID})
	return m.countLikesLocked(tweetID), nil
}

func (m *MemoryStore) countLikesLocked(tweetID string) int {
	n := 0
	for k := range m.likes {
		if k.b == tweetID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CountLikes(_ context.Context, tweetID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tweets[tweetID]; !ok {
		return 0, ErrNotFound
	}
	return m.countLikesLocked(tweetID), nil
}

func (m *MemoryStore) LikeCounts(_ context.Context, tweetIDs []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]int, len(tweetIDs))
	for _, id := range tweetIDs {
		res[id] = 0
	}
	for k := range m.likes {
		if _, ok := res[k.b]; ok {
			res[k.b]++
		}
	}
	return res, nil
}

func (m *MemoryStore) IsLiked(_ context.Context, userID, tweetID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.likes[edgeKey{userID, tweetID}]
	return ok, nil
}

func (m *MemoryStore) LikedTweetIDs(_ context.Context, userID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]struct{})
	for k := range m.likes {
		if k.a == userID {
			res[k.b] = struct{}{}
		}
	}
	return res, nil
}

var _ StoreInterface = (*MemoryStore)(nil)
