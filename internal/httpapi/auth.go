package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"orderdesk/backend/internal/domain"
)

const tokenIssuer = "orderdesk"

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
)

// credentialTTL bounds how long a cached credential is trusted before the
// user store is read again.
const credentialTTL = 30 * time.Second

type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	userStore  UserStore
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	creds    map[string]credential
	loadedAt time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	hash   string
	role   string
	active bool
}

type orderdeskClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager loads the user store once, hashing any plain-text passwords
// left by older deployments. A nil store keeps accounts in memory only.
func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore, logger zerolog.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN == "" {
		managerPIN = "disabled"
	}
	if hashed, err := hashPassword(managerPIN); err == nil {
		managerPIN = hashed
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: managerPIN,
		userStore:  userStore,
		logger:     logger,
		now:        time.Now,
		creds:      make(map[string]credential),
	}
	if err := manager.reload(ctx); err != nil {
		manager.logger.Warn().Err(err).Msg("failed to load users")
	}
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := normalizeUsername(req.Username)
	cred, ok := a.lookup(ctx, username)
	if !ok || !verifyPassword(cred.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// lookup serves from the cache while it is fresh. A stale cache or an unknown
// username triggers one read of the user store.
func (a *AuthManager) lookup(ctx context.Context, username string) (credential, bool) {
	a.mu.RLock()
	cred, ok := a.creds[username]
	fresh := a.now().Sub(a.loadedAt) < credentialTTL
	a.mu.RUnlock()
	if (ok && fresh) || a.userStore == nil {
		return cred, ok
	}

	if err := a.reload(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to refresh users")
		return cred, ok
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	cred, ok = a.creds[username]
	return cred, ok
}

// reload replaces the cache with the user store's accounts.
func (a *AuthManager) reload(ctx context.Context) error {
	if a.userStore == nil {
		return nil
	}
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return err
	}

	creds := make(map[string]credential, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isPasswordHash(hash) {
			hash = a.upgradePassword(ctx, username, hash)
		}
		creds[username] = credential{hash: hash, role: user.Role, active: user.Active}
	}

	a.mu.Lock()
	a.creds = creds
	a.loadedAt = a.now()
	a.mu.Unlock()
	return nil
}

// upgradePassword stores a bcrypt hash in place of a plain-text password and
// returns the hash. Login keeps working from the cache if the write fails.
func (a *AuthManager) upgradePassword(ctx context.Context, username string, plain string) string {
	hashed, err := hashPassword(plain)
	if err != nil {
		return plain
	}
	if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
		a.logger.Warn().Err(err).Str("username", username).Msg("failed to upgrade password hash")
	}
	return hashed
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &orderdeskClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := orderdeskClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateManagerPIN authorizes cancellations. An unset PIN never matches.
func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	username := normalizeUsername(req.Username)
	if len(username) < 4 {
		return domain.CashierUser{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.CashierUser{}, fmt.Errorf("username must not contain spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.CashierUser{}, fmt.Errorf("password must be at least 6 characters")
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("failed to hash password")
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: a.now().UTC(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userStore != nil {
		// The store owns uniqueness; the cache may be stale.
		if err := a.userStore.CreateUser(ctx, account); err != nil {
			return domain.CashierUser{}, err
		}
	} else if _, exists := a.creds[username]; exists {
		return domain.CashierUser{}, fmt.Errorf("username already exists")
	}
	a.creds[username] = credential{hash: passwordHash, role: account.Role, active: true}

	return domain.CashierUser{
		Username:  username,
		Role:      account.Role,
		Active:    true,
		CreatedAt: account.CreatedAt,
	}, nil
}

// ListCashiers reads the user store directly so the listing never lags
// behind accounts created on another instance.
func (a *AuthManager) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	result := make([]domain.CashierUser, 0, 8)
	if a.userStore == nil {
		a.mu.RLock()
		for username, cred := range a.creds {
			if cred.role == domain.RoleCashier {
				result = append(result, domain.CashierUser{Username: username, Role: cred.role, Active: cred.active})
			}
		}
		a.mu.RUnlock()
	} else {
		users, err := a.userStore.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			if user.Role != domain.RoleCashier {
				continue
			}
			result = append(result, domain.CashierUser{
				Username:  normalizeUsername(user.Username),
				Role:      user.Role,
				Active:    user.Active,
				CreatedAt: user.CreatedAt,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
