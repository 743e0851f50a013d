// Package social implements the tweet and follow-graph operations on top of a
// store: identity (signup and login), the mutation façade and the read
// views.
package social

import (
	"context"
	"errors"
	"time"

	appkafka "example.com/tweetgraph/internal/broker"
	"example.com/tweetgraph/internal/logger"
	"example.com/tweetgraph/internal/metrics"
	"example.com/tweetgraph/internal/models"
	"example.com/tweetgraph/internal/store"
	"example.com/tweetgraph/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var logg = logger.New()

type Service struct {
	store      store.StoreInterface
	events     appkafka.Publisher
	validator  *validation.Validator
	now        func() time.Time
	bcryptCost int
}

type Option func(*Service)

// WithPublisher sets where domain events go. Events are dropped by default.
func WithPublisher(p appkafka.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithValidator(v *validation.Validator) Option {
	return func(s *Service) { s.validator = v }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func New(st store.StoreInterface, opts ...Option) *Service {
	s := &Service{
		store:      st,
		events:     appkafka.NopPublisher{},
		validator:  validation.New(validation.DefaultLocale),
		now:        func() time.Time { return time.Now().UTC() },
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Validator returns the validator used for form checks.
func (s *Service) Validator() *validation.Validator {
	return s.validator
}

// --- Identity ---

// Register validates the signup form and creates the user with a bcrypt
// password hash. A taken username is reported as a field error.
func (s *Service) Register(ctx context.Context, form validation.SignupForm) (models.User, error) {
	errs := s.validator.Signup(form)

	if !errs.Has("username") {
		_, err := s.store.GetUserByUsername(ctx, form.Username)
		switch {
		case err == nil:
			errs.Add("username", s.validator.Message(validation.MsgUsernameTaken))
		case !errors.Is(err, store.ErrNotFound):
			return models.User{}, err
		}
	}
	if len(errs) > 0 {
		return models.User{}, &ValidationError{Fields: errs}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password1), s.bcryptCost)
	if err != nil {
		logg.Error("social", "Failed to hash password", err)
		return models.User{}, err
	}

	u := models.User{
		ID:           uuid.NewString(),
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			errs.Add("username", s.validator.Message(validation.MsgUsernameTaken))
			return models.User{}, &ValidationError{Fields: errs}
		}
		logg.Error("social", "Failed to create user", err)
		return models.User{}, err
	}

	metrics.RegisterSuccess.Inc()
	logg.Info("social", "User registered with user_id="+u.ID)
	return u, nil
}

// Authenticate checks username and password. Unknown users and wrong
// passwords give the same form-level error.
func (s *Service) Authenticate(ctx context.Context, form validation.LoginForm) (models.User, error) {
	if errs := s.validator.Login(form); len(errs) > 0 {
		return models.User{}, &ValidationError{Fields: errs}
	}

	u, err := s.store.GetUserByUsername(ctx, form.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LoginFailure.WithLabelValues("unknown_user").Inc()
			return models.User{}, s.invalidLogin()
		}
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(form.Password)); err != nil {
		metrics.LoginFailure.WithLabelValues("bad_password").Inc()
		return models.User{}, s.invalidLogin()
	}
	return u, nil
}

func (s *Service) invalidLogin() error {
	errs := validation.Errors{}
	errs.Add(validation.NonFieldKey, s.validator.Message(validation.MsgInvalidLogin))
	return &ValidationError{Fields: errs, Err: ErrInvalidCredentials}
}

func (s *Service) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// publish hands ev to the publisher. The mutation has already been committed,
// so failures are only logged.
func (s *Service) publish(ctx context.Context, ev appkafka.Event) {
	ev.At = s.now()
	if err := s.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		logg.Error("social", "Failed to publish "+ev.Type+" event", err)
	}
}
