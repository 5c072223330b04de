package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"pharmapos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return errors.New("duplicate")
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, _ := store.ListUsers(context.Background())
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"cashier": {Username: "cashier", Password: mustHashPassword(t, "secret"), Role: domain.RoleCashier, Active: true},
			"retired": {Username: "retired", Password: mustHashPassword(t, "secret"), Role: domain.RoleCashier, Active: false},
		},
	}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "secret"}); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"cashier": {Username: "cashier", Password: mustHashPassword(t, "secret"), Role: domain.RoleCashier, Active: true},
		},
	}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Cashier ", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager(context.Background(), "other-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token from another secret to be rejected, got %v", err)
	}
}

func TestParseTokenRejectsForeignIssuerAndExpiry(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, nil)

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	})
	signed, _ := foreign.SignedString([]byte("test-secret"))
	if _, err := manager.ParseToken(signed); err == nil {
		t.Fatalf("expected foreign issuer to be rejected")
	}

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestEnsureOperatorCreatesOnce(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	created, err := manager.EnsureOperator(context.Background(), " Owner ", "owner-pass-1", domain.RoleAdmin)
	if err != nil || !created {
		t.Fatalf("expected operator to be created, got created=%v err=%v", created, err)
	}
	created, err = manager.EnsureOperator(context.Background(), "owner", "another-pass", domain.RoleAdmin)
	if err != nil || created {
		t.Fatalf("expected existing operator to be kept, got created=%v err=%v", created, err)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "owner-pass-1"})
	if err != nil {
		t.Fatalf("login with original password: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	if _, err := manager.EnsureOperator(context.Background(), "short", "123", domain.RoleCashier); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}
