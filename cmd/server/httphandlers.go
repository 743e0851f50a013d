package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/tweetgraph/internal/middleware"
	"example.com/tweetgraph/internal/social"
	"example.com/tweetgraph/internal/validation"
	"github.com/gorilla/mux"
)

// --- Responses ---

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  errorInfo         `json:"error"`
	Fields validation.Errors `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logg.Error("http", "Failed to encode response", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorInfo{Code: code, Message: msg}})
}

// writeError maps façade errors to HTTP statuses.
func writeError(w http.ResponseWriter, module string, err error) {
	var verr *social.ValidationError
	switch {
	case errors.As(err, &verr):
		code := "VALIDATION_ERROR"
		if errors.Is(err, social.ErrInvalidCredentials) {
			code = "INVALID_CREDENTIALS"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  errorInfo{Code: code, Message: verr.Error()},
			Fields: verr.Fields,
		})
	case errors.Is(err, social.ErrSelfReference):
		writeErrorCode(w, http.StatusBadRequest, "SELF_REFERENCE", err.Error())
	case errors.Is(err, social.ErrAlreadyFollowing):
		writeErrorCode(w, http.StatusBadRequest, "ALREADY_FOLLOWING", err.Error())
	case errors.Is(err, social.ErrNotFollowing):
		writeErrorCode(w, http.StatusBadRequest, "NOT_FOLLOWING", err.Error())
	case social.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, social.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		logg.Error(module, "Request failed", err)
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// decodeJSON reads the request body into v and answers 400 when it is not
// valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, module string, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logg.Info(module, "Invalid request body")
		writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return false
	}
	return true
}

func (s *Server) viewerID(w http.ResponseWriter, r *http.Request, module string) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info(module, "Unauthorized request")
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}
	return userID, ok
}

// --- Identity ---

// signupHandler creates an account.
// Expects JSON body: {"username","email","password1","password2"}
// Returns 201 with {"user": ..., "token": ...}.
func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	var form validation.SignupForm
	if !decodeJSON(w, r, "http/signup", &form) {
		return
	}

	u, err := s.svc.Register(r.Context(), form)
	if err != nil {
		writeError(w, "http/signup", err)
		return
	}

	token, err := middleware.IssueToken(s.jwtSecret, u.ID, u.Username, s.tokenTTL)
	if err != nil {
		writeError(w, "http/signup", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": u, "token": token})
}

// loginHandler exchanges credentials for an access token.
// Expects JSON body: {"username","password"}
// Returns JSON response: {"user_id": <id>, "token": <jwt>}
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var form validation.LoginForm
	if !decodeJSON(w, r, "http/login", &form) {
		return
	}

	u, err := s.svc.Authenticate(r.Context(), form)
	if err != nil {
		writeError(w, "http/login", err)
		return
	}

	token, err := middleware.IssueToken(s.jwtSecret, u.ID, u.Username, s.tokenTTL)
	if err != nil {
		writeError(w, "http/login", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user_id": u.ID, "token": token})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Tweets ---

// feedHandler returns every tweet, newest first, annotated for the caller.
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/feed")
	if !ok {
		return
	}

	feed, err := s.svc.Feed(r.Context(), userID)
	if err != nil {
		writeError(w, "http/feed", err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// createTweetHandler posts a tweet as the caller.
// Expects JSON body: {"content": "..."}
func (s *Server) createTweetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/tweets")
	if !ok {
		return
	}

	var form validation.TweetForm
	if !decodeJSON(w, r, "http/tweets", &form) {
		return
	}

	t, err := s.svc.Post(r.Context(), userID, form.Content)
	if err != nil {
		writeError(w, "http/tweets", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTweetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/tweets")
	if !ok {
		return
	}

	item, err := s.svc.Tweet(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "http/tweets", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteTweetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/tweets")
	if !ok {
		return
	}

	if err := s.svc.DeleteTweet(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		writeError(w, "http/tweets", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// likeHandler and unlikeHandler return {"liked_count": n}.
func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/like")
	if !ok {
		return
	}

	n, err := s.svc.Like(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "http/like", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"liked_count": n})
}

func (s *Server) unlikeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/unlike")
	if !ok {
		return
	}

	n, err := s.svc.Unlike(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "http/unlike", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"liked_count": n})
}

// --- Users ---

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/users")
	if !ok {
		return
	}

	p, err := s.svc.Profile(r.Context(), userID, mux.Vars(r)["username"])
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/follow")
	if !ok {
		return
	}

	if _, err := s.svc.Follow(r.Context(), userID, mux.Vars(r)["username"]); err != nil {
		writeError(w, "http/follow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.viewerID(w, r, "http/unfollow")
	if !ok {
		return
	}

	if err := s.svc.Unfollow(r.Context(), userID, mux.Vars(r)["username"]); err != nil {
		writeError(w, "http/unfollow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) followingHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.viewerID(w, r, "http/following"); !ok {
		return
	}

	peers, err := s.svc.Following(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, "http/following", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": peers})
}

func (s *Server) followersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.viewerID(w, r, "http/followers"); !ok {
		return
	}

	peers, err := s.svc.Followers(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, "http/followers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": peers})
}
