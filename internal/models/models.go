package models

import "time"

// MaxTweetLength is the maximum tweet length in characters.
const MaxTweetLength = 200

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Follow is a directed edge: FollowerID follows FollowingID.
type Follow struct {
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Tweet struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Like struct {
	UserID    string    `json:"user_id"`
	TweetID   string    `json:"tweet_id"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Read views ---

// TweetItem is a tweet annotated for a particular viewer.
type TweetItem struct {
	Tweet
	Author    string `json:"author"`
	LikeCount int    `json:"like_count"`
	Liked     bool   `json:"liked"`
}

type Profile struct {
	User          User        `json:"user"`
	Tweets        []TweetItem `json:"tweets"`
	FollowersNum  int         `json:"followers_num"`
	FollowingsNum int         `json:"followings_num"`
	IsFollowing   bool        `json:"is_following"`
}

type Feed struct {
	Tweets []TweetItem `json:"tweets"`
}

// Peer is the other end of a follow edge, resolved to its user record.
type Peer struct {
	User  User      `json:"user"`
	Since time.Time `json:"since"`
}
