package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/logger"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
	lists   int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return errors.New("username already exists")
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
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
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", store, logger.Nop())
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", store, logger.Nop())
	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Username: "barista1",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "barista1" {
		t.Fatalf("unexpected username %s", cashier.Username)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "barista1" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected cashier to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected cashier password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(context.Background(), domain.LoginRequest{
		Username: "barista1",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "654321", store, logger.Nop())

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}

	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}

	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestTokenRoundTripCarriesRole(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", nil, logger.Nop())
	token, err := manager.sign("cashier", domain.RoleCashier, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager(context.Background(), "other-secret", time.Hour, "123456", nil, logger.Nop())
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := manager.sign("cashier", domain.RoleCashier, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"retired": {Username: "retired", Password: "pass1234", Role: domain.RoleCashier, Active: false},
		},
	}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", store, logger.Nop())

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "pass1234"}); err != errInactiveAccount {
		t.Fatalf("expected inactive account error, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "retired", Password: "nope"}); err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func (s *userStoreStub) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *userStoreStub) put(user domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
}

func TestLoginReadsUserStoreOnlyWhenNeeded(t *testing.T) {
	hash, err := hashPassword("pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"barista1": {Username: "barista1", Password: hash, Role: domain.RoleCashier, Active: true},
		},
	}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", store, logger.Nop())
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }
	if err := manager.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	base := store.listCalls()

	login := func(username string) error {
		_, err := manager.Login(context.Background(), domain.LoginRequest{Username: username, Password: "pass1234"})
		return err
	}

	for i := 0; i < 5; i++ {
		if err := login("barista1"); err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
	}
	if got := store.listCalls() - base; got != 0 {
		t.Fatalf("fresh cache should not hit the store, saw %d reads", got)
	}

	// An account added by another instance is picked up on the first miss.
	store.put(domain.UserAccount{Username: "barista2", Password: hash, Role: domain.RoleCashier, Active: true})
	if err := login("barista2"); err != nil {
		t.Fatalf("login for new account failed: %v", err)
	}
	if got := store.listCalls() - base; got != 1 {
		t.Fatalf("expected one read on cache miss, saw %d", got)
	}

	// Deactivation elsewhere is seen once the cache goes stale.
	store.put(domain.UserAccount{Username: "barista1", Password: hash, Role: domain.RoleCashier, Active: false})
	if err := login("barista1"); err != nil {
		t.Fatalf("cached login should still pass before expiry: %v", err)
	}
	now = now.Add(credentialTTL)
	if err := login("barista1"); err != errInactiveAccount {
		t.Fatalf("expected inactive account after refresh, got %v", err)
	}
	if got := store.listCalls() - base; got != 2 {
		t.Fatalf("expected a second read after expiry, saw %d", got)
	}
}

func TestCashierListingAndUniquenessFollowTheStore(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", store, logger.Nop())

	store.put(domain.UserAccount{Username: "barista9", Password: "x", Role: domain.RoleCashier, Active: true})
	store.put(domain.UserAccount{Username: "admin", Password: "x", Role: domain.RoleAdmin, Active: true})

	cashiers, err := manager.ListCashiers(context.Background())
	if err != nil {
		t.Fatalf("list cashiers: %v", err)
	}
	if len(cashiers) != 1 || cashiers[0].Username != "barista9" {
		t.Fatalf("expected the stored cashier, got %+v", cashiers)
	}

	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "barista9", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected by the store")
	}
}

func TestCreateCashierWithoutStoreRejectsDuplicates(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "123456", nil, logger.Nop())
	req := domain.CashierCreateRequest{Username: "barista1", Password: "pass1234"}
	if _, err := manager.CreateCashier(context.Background(), req); err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if _, err := manager.CreateCashier(context.Background(), req); err == nil {
		t.Fatalf("expected duplicate username error")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "barista1", Password: "pass1234"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	cashiers, err := manager.ListCashiers(context.Background())
	if err != nil || len(cashiers) != 1 {
		t.Fatalf("expected one cashier, got %+v (%v)", cashiers, err)
	}
}
