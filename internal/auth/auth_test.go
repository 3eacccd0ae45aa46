package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"spendwise/internal/core"
	"spendwise/internal/jobs"
)

type memUsers struct {
	mu    sync.Mutex
	users []core.User
	fail  error
}

func (m *memUsers) CreateUser(_ context.Context, u core.User) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return core.User{}, core.Conflict("email already registered")
		}
	}
	u.ID = int64(len(m.users) + 1)
	u.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m.users = append(m.users, u)
	return u, nil
}

func (m *memUsers) GetUser(_ context.Context, id int64) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return core.User{}, m.fail
	}
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return core.User{}, core.NotFound("user", id)
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

type recordingQueue struct {
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, j jobs.Job) error {
	q.jobs = append(q.jobs, j)
	return nil
}

const testSecret = "0123456789abcdef-test-secret"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T) (*Service, *memUsers, *recordingQueue, *clock) {
	t.Helper()
	users := &memUsers{}
	q := &recordingQueue{}
	c := &clock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	s, err := NewService(users, testSecret, time.Hour, q, nil, WithBcryptCost(bcrypt.MinCost), WithClock(c.now))
	require.NoError(t, err)
	return s, users, q, c
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService(&memUsers{}, "short", time.Hour, nil, nil)
	assert.ErrorIs(t, err, core.ErrFatalConfiguration)
}

func TestRegister(t *testing.T) {
	s, users, q, _ := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, Registration{Email: "  Ada@Example.com ", Name: " Ada ", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, "Ada", sess.User.Name)
	assert.Equal(t, time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC), sess.ExpiresAt)

	require.Len(t, users.users, 1)
	assert.NotEqual(t, "s3cret-pass", users.users[0].PasswordHash)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, jobs.TypeUserWelcome, q.jobs[0].Type)
	assert.Equal(t, sess.User.ID, q.jobs[0].UserID)

	_, err = s.Register(ctx, Registration{Email: "ada@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	s, _, _, _ := newTestService(t)
	tests := []struct {
		name string
		reg  Registration
	}{
		{"bad email", Registration{Email: "not-an-email", Password: "long-enough"}},
		{"empty email", Registration{Password: "long-enough"}},
		{"short password", Registration{Email: "a@b.co", Password: "short"}},
		{"long password", Registration{Email: "a@b.co", Password: strings.Repeat("x", 73)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.reg)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestLogin(t *testing.T) {
	s, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, Registration{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	sess, err := s.Login(ctx, "ADA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	_, wrongPass := s.Login(ctx, "ada@example.com", "nope-nope")
	_, unknown := s.Login(ctx, "bob@example.com", "s3cret-pass")
	assert.ErrorIs(t, wrongPass, core.ErrUnauthorized)
	assert.ErrorIs(t, unknown, core.ErrUnauthorized)
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestAuthenticate(t *testing.T) {
	s, users, _, c := newTestService(t)
	ctx := context.Background()
	sess, err := s.Register(ctx, Registration{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	u, err := s.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)

	_, err = s.Authenticate(ctx, sess.Token+"x")
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = s.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	other, err := NewService(users, "a-completely-different-secret", time.Hour, nil, nil, WithBcryptCost(bcrypt.MinCost), WithClock(c.now))
	require.NoError(t, err)
	_, err = other.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	c.t = c.t.Add(2 * time.Hour)
	_, err = s.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	s, users, _, _ := newTestService(t)
	sess, err := s.issue(core.User{ID: 99, Email: "ghost@example.com"})
	require.NoError(t, err)
	_, err = s.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	users.fail = errors.New("db down")
	_, err = s.Authenticate(context.Background(), sess.Token)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		got, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestMiddleware(t *testing.T) {
	s, _, _, _ := newTestService(t)
	sess, err := s.Register(context.Background(), Registration{Email: "ada@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(u.Email))
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", w.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "missing bearer token", body["error"])
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	_, ok := UserFrom(context.Background())
	assert.False(t, ok)
}
