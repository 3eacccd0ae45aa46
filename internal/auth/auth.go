// Package auth registers users, issues JWT access tokens and guards the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"spendwise/internal/core"
	"spendwise/internal/jobs"
)

const (
	MinPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything longer
	DefaultTokenTTL   = 24 * time.Hour
	issuer            = "spendwise"
)

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized)

// UserStore is the persistence the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
}

type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	queue  jobs.Queue
	now    func() time.Time
	logger *slog.Logger

	// Compared against when the email is unknown so both failure paths cost a bcrypt round.
	dummyHash []byte
}

type Option func(*Service)

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users UserStore, secret string, ttl time.Duration, queue jobs.Queue, logger *slog.Logger, opts ...Option) (*Service, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("%w: JWT secret must be at least 16 characters", core.ErrFatalConfiguration)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		queue:  queue,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hashing: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

type Registration struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (r Registration) normalize() (Registration, error) {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	if _, err := mail.ParseAddress(r.Email); err != nil || !strings.Contains(r.Email, "@") {
		return r, core.Validation("invalid email address")
	}
	if len(r.Password) < MinPasswordLength {
		return r, core.Validationf("password must be at least %d characters", MinPasswordLength)
	}
	if len(r.Password) > maxPasswordLength {
		return r, core.Validationf("password must be at most %d characters", maxPasswordLength)
	}
	if len(r.Name) > 100 {
		return r, core.Validation("name too long (max 100 characters)")
	}
	return r, nil
}

// Session is what a successful register or login hands back.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Profile   `json:"user"`
}

// Profile is the public view of a user.
type Profile struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func ProfileOf(u core.User) Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

// Register creates the account, queues the welcome email and logs the user in.
func (s *Service) Register(ctx context.Context, reg Registration) (Session, error) {
	reg, err := reg.normalize()
	if err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, core.User{Email: reg.Email, Name: reg.Name, PasswordHash: string(hash)})
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "User registered", "user_id", u.ID)
	jobs.Submit(ctx, s.queue, s.logger, jobs.TypeUserWelcome, u.ID, nil)
	return s.issue(u)
}

// Login fails with the same message whether the email or the password is wrong.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Session{}, errInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.InfoContext(ctx, "Login rejected", "user_id", u.ID)
		return Session{}, errInvalidCredentials
	}
	return s.issue(u)
}

func (s *Service) issue(u core.User) (Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(u.ID, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expires.UTC(), User: ProfileOf(u)}, nil
}

// Authenticate verifies a token and loads its user. Every failure is ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (core.User, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return core.User{}, fmt.Errorf("%w: invalid token", core.ErrUnauthorized)
	}
	// Claims are checked against the service clock, not time.Now.
	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(s.now(), true) || !claims.VerifyIssuer(issuer, true) {
		return core.User{}, fmt.Errorf("%w: token expired", core.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: invalid token subject", core.ErrUnauthorized)
	}
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("%w: unknown user", core.ErrUnauthorized)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}
