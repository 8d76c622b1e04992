package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"schoolbus/internal/config"
	"schoolbus/internal/database"
	"schoolbus/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type mockUsers struct {
	accounts map[string]*database.Account
	lookups  int
}

func newMockUsers(t *testing.T) *mockUsers {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return &mockUsers{accounts: map[string]*database.Account{
		"dana@example.com": {
			User:         models.User{ID: "d1", Name: "Dana", Email: "dana@example.com", Role: models.RoleDriver},
			PasswordHash: string(hash),
		},
	}}
}

func (m *mockUsers) GetUserByEmail(ctx context.Context, email string) (*database.Account, error) {
	m.lookups++
	if acc, ok := m.accounts[email]; ok {
		return acc, nil
	}
	return nil, database.ErrNotFound
}

func (m *mockUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	for _, acc := range m.accounts {
		if acc.ID == id {
			u := acc.User
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockUsers) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	return nil, nil
}

func (m *mockUsers) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *mockUsers) {
	users := newMockUsers(t)
	return NewService(users, config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}), users
}

func TestLogin_RoundTripsThroughParseSession(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	resp, err := svc.Login(context.Background(), &models.LoginRequest{Email: "dana@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.User.ID != "d1" {
		t.Errorf("user = %+v", resp.User)
	}

	user, err := ParseSession(resp.Token)
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	want := models.User{ID: "d1", Name: "Dana", Email: "dana@example.com", Role: models.RoleDriver}
	if user != want {
		t.Errorf("ParseSession() = %+v, want %+v", user, want)
	}

	got, err := svc.GetUserFromToken(context.Background(), resp.Token)
	if err != nil || got.ID != "d1" {
		t.Errorf("GetUserFromToken() = %+v, %v", got, err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()
	svc, users := newTestService(t)

	tests := []struct {
		name string
		req  models.LoginRequest
	}{
		{"wrong password", models.LoginRequest{Email: "dana@example.com", Password: "nope"}},
		{"unknown email", models.LoginRequest{Email: "nobody@example.com", Password: "secret"}},
		{"empty", models.LoginRequest{}},
	}
	for _, tc := range tests {
		if _, err := svc.Login(context.Background(), &tc.req); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: error = %v, want ErrInvalidCredentials", tc.name, err)
		}
	}
	if users.lookups != 2 {
		t.Errorf("lookups = %d, want empty request rejected before the store", users.lookups)
	}
}

func TestValidateToken_RejectsForeignAndExpired(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	other := NewService(newMockUsers(t), config.JWTConfig{Secret: []byte("other"), ExpiresIn: time.Hour})
	foreign, _ := other.generateToken(models.User{ID: "d1"})
	if _, err := svc.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: err = %v, want ErrInvalidToken", err)
	}

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _ := svc.generateToken(models.User{ID: "d1"})
	svc.now = time.Now
	if _, err := svc.ValidateToken(stale); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("stale token: err = %v, want ErrTokenExpired", err)
	}
}

func TestParseSession(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)

	sign := func(c jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("any"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	valid := sign(Claims{UserID: "p1", Role: "Parent", Name: "Pat",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}})
	expired := sign(Claims{UserID: "p1", Role: "parent",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}})
	subjectOnly := sign(Claims{Role: "student", RegisteredClaims: jwt.RegisteredClaims{Subject: "s1"}})
	anonymous := sign(Claims{Role: "student"})

	user, err := parseSession("Bearer "+valid, now)
	if err != nil || user.ID != "p1" || user.Role != models.RoleParent || user.Name != "Pat" {
		t.Errorf("valid token = %+v, %v", user, err)
	}
	if user, err := parseSession(subjectOnly, now); err != nil || user.ID != "s1" {
		t.Errorf("subject fallback = %+v, %v", user, err)
	}

	for name, tc := range map[string]struct {
		token string
		want  error
	}{
		"expired":   {expired, ErrTokenExpired},
		"empty":     {"  ", ErrNoToken},
		"garbage":   {"not.a.jwt", ErrInvalidToken},
		"anonymous": {anonymous, ErrInvalidToken},
	} {
		if _, err := parseSession(tc.token, now); !errors.Is(err, tc.want) {
			t.Errorf("%s: error = %v, want %v", name, err, tc.want)
		}
	}
}

func TestStaticToken(t *testing.T) {
	t.Parallel()
	if tok, err := StaticToken("abc").Token(); err != nil || tok != "abc" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
	if _, err := StaticToken("").Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty Token() error = %v", err)
	}
}
