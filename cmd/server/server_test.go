package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appkafka "example.com/tweetgraph/internal/broker"
	"example.com/tweetgraph/internal/middleware"
	"example.com/tweetgraph/internal/models"
	"example.com/tweetgraph/internal/social"
	"example.com/tweetgraph/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

//
// --- Helpers ---
//

// sendJSONRequest sends body as JSON with an optional bearer token and checks
// the status code.
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", method, url, expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Fields map[string][]string `json:"fields"`
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*httptest.Server, *appkafka.MockKafka) {
	t.Helper()
	mk := &appkafka.MockKafka{}
	svc := social.New(store.NewMemory(),
		social.WithPublisher(appkafka.NewKafkaPublisher(mk)),
		social.WithBcryptCost(bcrypt.MinCost),
	)
	ts := httptest.NewServer(NewServer(svc, testSecret, time.Hour).routes())
	t.Cleanup(ts.Close)
	return ts, mk
}

// signup registers username and returns its id and token.
func signup(t *testing.T, ts *httptest.Server, username string) (string, string) {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/signup", map[string]string{
		"username":  username,
		"email":     username + "@example.com",
		"password1": "goodpassword",
		"password2": "goodpassword",
	}, "", http.StatusCreated)

	body := decode[struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}](t, resp)
	if body.User.ID == "" || body.Token == "" {
		t.Fatalf("expected user id and token, got %+v", body)
	}
	return body.User.ID, body.Token
}

//
// --- Tests ---
//

func TestSignupAndLogin(t *testing.T) {
	ts, _ := setupTestServer(t)
	id, _ := signup(t, ts, "almaz")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "almaz", "password": "goodpassword"}, "", http.StatusOK)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, id, body["user_id"])
	assert.NotEmpty(t, body["token"])

	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]string{"username": "almaz", "password": "wrong-password"}, "", http.StatusBadRequest)
	eb := decode[errorBody](t, resp)
	assert.Equal(t, "INVALID_CREDENTIALS", eb.Error.Code)
	assert.NotEmpty(t, eb.Fields["non_field_errors"])
}

func TestSignup_ValidationErrors(t *testing.T) {
	ts, _ := setupTestServer(t)
	signup(t, ts, "almaz")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/signup", map[string]string{
		"username":  "almaz",
		"email":     "almaz@example",
		"password1": "1111111111",
		"password2": "1111111111",
	}, "", http.StatusBadRequest)

	eb := decode[errorBody](t, resp)
	assert.Equal(t, "VALIDATION_ERROR", eb.Error.Code)
	assert.Equal(t, []string{"同じユーザー名が既に登録済みです。"}, eb.Fields["username"])
	assert.Equal(t, []string{"有効なメールアドレスを入力してください。"}, eb.Fields["email"])
	assert.Equal(t, []string{"このパスワードは一般的すぎます。", "このパスワードは数字しか使われていません。"}, eb.Fields["password2"])
}

func TestInvalidBody(t *testing.T) {
	ts, _ := setupTestServer(t)
	resp, err := http.Post(ts.URL+"/signup", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts, _ := setupTestServer(t)

	sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, "", http.StatusUnauthorized)
	sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, "garbage", http.StatusUnauthorized)

	other, err := middleware.IssueToken([]byte("other-secret"), "u1", "u", time.Hour)
	require.NoError(t, err)
	sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, other, http.StatusUnauthorized)
}

// full flow: follow -> post -> like -> feed -> profile
func TestFollowPostLikeFlow(t *testing.T) {
	ts, mk := setupTestServer(t)

	almazID, almazToken := signup(t, ts, "almaz")
	_, nurToken := signup(t, ts, "nur")

	// nur follows almaz
	sendJSONRequest(t, http.MethodPost, ts.URL+"/users/almaz/follow", nil, nurToken, http.StatusNoContent)

	// almaz posts
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets",
		map[string]string{"content": "Hello from almaz"}, almazToken, http.StatusCreated)
	tweet := decode[models.Tweet](t, resp)
	assert.Equal(t, almazID, tweet.AuthorID)

	// nur likes twice, count stays at one
	for i := 0; i < 2; i++ {
		resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets/"+tweet.ID+"/like", nil, nurToken, http.StatusOK)
		assert.Equal(t, map[string]int{"liked_count": 1}, decode[map[string]int](t, resp))
	}

	// nur's feed marks the tweet as liked
	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, nurToken, http.StatusOK)
	feed := decode[models.Feed](t, resp)
	require.Len(t, feed.Tweets, 1)
	assert.Equal(t, "almaz", feed.Tweets[0].Author)
	assert.Equal(t, 1, feed.Tweets[0].LikeCount)
	assert.True(t, feed.Tweets[0].Liked)

	// almaz's view of the same feed does not
	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, almazToken, http.StatusOK)
	assert.False(t, decode[models.Feed](t, resp).Tweets[0].Liked)

	// profile as seen by nur
	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/users/almaz", nil, nurToken, http.StatusOK)
	profile := decode[models.Profile](t, resp)
	assert.Equal(t, 1, profile.FollowersNum)
	assert.Equal(t, 0, profile.FollowingsNum)
	assert.True(t, profile.IsFollowing)
	require.Len(t, profile.Tweets, 1)

	// follower list
	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/users/almaz/followers", nil, nurToken, http.StatusOK)
	peers := decode[map[string][]models.Peer](t, resp)["users"]
	require.Len(t, peers, 1)
	assert.Equal(t, "nur", peers[0].User.Username)

	// unlike
	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets/"+tweet.ID+"/unlike", nil, nurToken, http.StatusOK)
	assert.Equal(t, map[string]int{"liked_count": 0}, decode[map[string]int](t, resp))

	var types []string
	for _, ev := range mk.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{
		appkafka.EventUserFollowed,
		appkafka.EventTweetPosted,
		appkafka.EventTweetLiked,
		appkafka.EventTweetLiked,
		appkafka.EventTweetUnliked,
	}, types)
}

func TestFollowErrors(t *testing.T) {
	ts, _ := setupTestServer(t)
	_, almazToken := signup(t, ts, "almaz")
	signup(t, ts, "nur")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/users/almaz/follow", nil, almazToken, http.StatusBadRequest)
	assert.Equal(t, "SELF_REFERENCE", decode[errorBody](t, resp).Error.Code)

	sendJSONRequest(t, http.MethodPost, ts.URL+"/users/ghost/follow", nil, almazToken, http.StatusNotFound)

	sendJSONRequest(t, http.MethodPost, ts.URL+"/users/nur/follow", nil, almazToken, http.StatusNoContent)
	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/users/nur/follow", nil, almazToken, http.StatusBadRequest)
	assert.Equal(t, "ALREADY_FOLLOWING", decode[errorBody](t, resp).Error.Code)

	sendJSONRequest(t, http.MethodPost, ts.URL+"/users/nur/unfollow", nil, almazToken, http.StatusNoContent)
	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/users/nur/unfollow", nil, almazToken, http.StatusBadRequest)
	assert.Equal(t, "NOT_FOLLOWING", decode[errorBody](t, resp).Error.Code)

	// state changes are not reachable with GET
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/users/nur/follow", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+almazToken)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.GreaterOrEqual(t, raw.StatusCode, 400)
}

func TestTweetErrors(t *testing.T) {
	ts, _ := setupTestServer(t)
	_, almazToken := signup(t, ts, "almaz")
	_, nurToken := signup(t, ts, "nur")

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets",
		map[string]string{"content": strings.Repeat("x", 201)}, almazToken, http.StatusBadRequest)
	eb := decode[errorBody](t, resp)
	assert.Equal(t, []string{"この値は 200 文字以下でなければなりません( 201 文字になっています)。"}, eb.Fields["content"])

	resp = sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets",
		map[string]string{"content": "mine"}, almazToken, http.StatusCreated)
	tweet := decode[models.Tweet](t, resp)

	sendJSONRequest(t, http.MethodDelete, ts.URL+"/tweets/missing", nil, nurToken, http.StatusNotFound)
	sendJSONRequest(t, http.MethodDelete, ts.URL+"/tweets/"+tweet.ID, nil, nurToken, http.StatusForbidden)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets/missing/like", nil, nurToken, http.StatusNotFound)

	sendJSONRequest(t, http.MethodGet, ts.URL+"/tweets/"+tweet.ID, nil, nurToken, http.StatusOK)
	sendJSONRequest(t, http.MethodDelete, ts.URL+"/tweets/"+tweet.ID, nil, almazToken, http.StatusNoContent)
	sendJSONRequest(t, http.MethodGet, ts.URL+"/tweets/"+tweet.ID, nil, nurToken, http.StatusNotFound)
}

// a valid token for a user the store does not know cannot like
func TestLikeWithUnknownUserToken(t *testing.T) {
	ts, _ := setupTestServer(t)
	_, almazToken := signup(t, ts, "almaz")
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets",
		map[string]string{"content": "mine"}, almazToken, http.StatusCreated)
	tweet := decode[models.Tweet](t, resp)

	ghostToken, err := middleware.IssueToken(testSecret, "ghost", "ghost", time.Hour)
	require.NoError(t, err)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets/"+tweet.ID+"/like", nil, ghostToken, http.StatusNotFound)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/tweets/"+tweet.ID+"/unlike", nil, ghostToken, http.StatusNotFound)

	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/tweets/"+tweet.ID, nil, almazToken, http.StatusOK)
	assert.Equal(t, 0, decode[models.TweetItem](t, resp).LikeCount)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	svc := social.New(store.FailingStore{})
	ts := httptest.NewServer(NewServer(svc, testSecret, time.Hour).routes())
	defer ts.Close()

	token, err := middleware.IssueToken(testSecret, "u1", "almaz", time.Hour)
	require.NoError(t, err)

	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, token, http.StatusInternalServerError)
	eb := decode[errorBody](t, resp)
	assert.Equal(t, "INTERNAL_ERROR", eb.Error.Code)
	assert.NotContains(t, eb.Error.Message, "failing store")
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := setupTestServer(t)
	sendJSONRequest(t, http.MethodGet, ts.URL+"/healthz", nil, "", http.StatusOK)

	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/metrics", nil, "", http.StatusOK)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "http_request_duration_seconds")
}
