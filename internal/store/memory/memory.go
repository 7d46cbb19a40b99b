package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/xid"
)

const DefaultStoreID = "main-store"

type Store struct {
	mu                 sync.RWMutex
	menus              map[string][]domain.MenuSnapshotLine
	recipes            map[string][]domain.IngredientRequirement
	ingredients        map[string]map[string]*domain.IngredientStock
	areaBaseline       map[string][]domain.AreaAverage
	areaByMonth        map[string][]domain.AreaAverage
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]*domain.Transaction
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; when
// unset, dev defaults are used and a warning is logged. The postgres store is
// used whenever DATABASE_URL is set, so these never reach production.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small restaurant catalog for DefaultStoreID.
func NewSeeded() *Store {
	menu := []domain.MenuSnapshotLine{
		{MenuID: "menu-kimchi-stew", Name: "김치찌개", UnitPrice: 9000},
		{MenuID: "menu-soybean-stew", Name: "된장찌개", UnitPrice: 8500},
		{MenuID: "menu-spicy-pork", Name: "제육볶음", UnitPrice: 11000},
		{MenuID: "menu-rice", Name: "공기밥", UnitPrice: 1000},
		{MenuID: "menu-americano", Name: "아메리카노", UnitPrice: 4500},
		{MenuID: "menu-latte", Name: "카페라떼", UnitPrice: 5000},
	}

	recipes := map[string][]domain.IngredientRequirement{
		"menu-kimchi-stew":  {{IngredientID: "ing-kimchi", QtyPerUnit: 150}, {IngredientID: "ing-pork", QtyPerUnit: 80}, {IngredientID: "ing-tofu", QtyPerUnit: 60}},
		"menu-soybean-stew": {{IngredientID: "ing-soybean-paste", QtyPerUnit: 40}, {IngredientID: "ing-tofu", QtyPerUnit: 80}},
		"menu-spicy-pork":   {{IngredientID: "ing-pork", QtyPerUnit: 200}, {IngredientID: "ing-kimchi", QtyPerUnit: 30}},
		"menu-rice":         {{IngredientID: "ing-rice", QtyPerUnit: 210}},
		"menu-americano":    {{IngredientID: "ing-coffee-bean", QtyPerUnit: 18}, {IngredientID: "ing-cup", QtyPerUnit: 1}},
		"menu-latte":        {{IngredientID: "ing-coffee-bean", QtyPerUnit: 18}, {IngredientID: "ing-milk", QtyPerUnit: 200}, {IngredientID: "ing-cup", QtyPerUnit: 1}},
	}

	now := time.Now().UTC()
	stock := map[string]*domain.IngredientStock{}
	for _, ing := range []domain.IngredientStock{
		{IngredientID: "ing-kimchi", Name: "김치", Unit: "g", Qty: 20000},
		{IngredientID: "ing-pork", Name: "돼지고기", Unit: "g", Qty: 20000},
		{IngredientID: "ing-tofu", Name: "두부", Unit: "g", Qty: 10000},
		{IngredientID: "ing-soybean-paste", Name: "된장", Unit: "g", Qty: 5000},
		{IngredientID: "ing-rice", Name: "쌀", Unit: "g", Qty: 30000},
		{IngredientID: "ing-coffee-bean", Name: "원두", Unit: "g", Qty: 5000},
		{IngredientID: "ing-milk", Name: "우유", Unit: "ml", Qty: 20000},
		{IngredientID: "ing-cup", Name: "테이크아웃 컵", Unit: "ea", Qty: 500},
	} {
		ing.StoreID = DefaultStoreID
		ing.UpdatedAt = now
		stock[ing.IngredientID] = &ing
	}

	areaWeeks := []domain.AreaAverage{
		{WeekIndex: 1, Amount: 1_850_000},
		{WeekIndex: 2, Amount: 2_100_000},
		{WeekIndex: 3, Amount: 2_050_000},
		{WeekIndex: 4, Amount: 2_300_000},
		{WeekIndex: 5, Amount: 1_400_000},
	}

	return &Store{
		menus:              map[string][]domain.MenuSnapshotLine{DefaultStoreID: menu},
		recipes:            recipes,
		ingredients:        map[string]map[string]*domain.IngredientStock{DefaultStoreID: stock},
		areaBaseline:       map[string][]domain.AreaAverage{DefaultStoreID: areaWeeks},
		areaByMonth:        make(map[string][]domain.AreaAverage),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]*domain.Transaction),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    seedUsers(),
	}
}

// SetIngredientQty overwrites one ingredient's on-hand quantity.
func (s *Store) SetIngredientQty(storeID string, ingredientID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ing, ok := s.ingredients[storeID][ingredientID]
	if !ok {
		return store.ErrNotFound
	}
	ing.Qty = qty
	ing.UpdatedAt = time.Now().UTC()
	return nil
}

// SetAreaAverage overrides the area average series for one month.
func (s *Store) SetAreaAverage(storeID string, year int, month int, weeks []domain.AreaAverage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areaByMonth[areaKey(storeID, year, month)] = slices.Clone(weeks)
}

func (s *Store) ListSellableMenu(_ context.Context, storeID string) ([]domain.MenuSnapshotLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	menu, ok := s.menus[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(menu), nil
}

func (s *Store) GetIngredientRequirements(_ context.Context, menuIDs []string) (map[string][]domain.IngredientRequirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requirementsLocked(menuIDs), nil
}

// requirementsLocked expects s.mu to be held.
func (s *Store) requirementsLocked(menuIDs []string) map[string][]domain.IngredientRequirement {
	result := make(map[string][]domain.IngredientRequirement, len(menuIDs))
	for _, id := range menuIDs {
		if reqs, ok := s.recipes[id]; ok {
			result[id] = slices.Clone(reqs)
		}
	}
	return result
}

func (s *Store) ListIngredientStock(_ context.Context, storeID string) ([]domain.IngredientStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stock, ok := s.ingredients[storeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := make([]domain.IngredientStock, 0, len(stock))
	for _, ing := range stock {
		result = append(result, *ing)
	}
	slices.SortFunc(result, func(a, b domain.IngredientStock) int {
		return strings.Compare(a.IngredientID, b.IngredientID)
	})
	return result, nil
}

func (s *Store) GetAreaAverage(_ context.Context, storeID string, year int, month int) ([]domain.AreaAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if weeks, ok := s.areaByMonth[areaKey(storeID, year, month)]; ok {
		return slices.Clone(weeks), nil
	}
	return slices.Clone(s.areaBaseline[storeID]), nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, storeID string, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByIdem[idemKey(storeID, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.CloneTransaction(tx), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.CloneTransaction(tx), nil
}

// CommitOrder holds the write lock across the idempotency check, the stock
// check and the decrement, so a retried key can never commit twice.
func (s *Store) CommitOrder(_ context.Context, tx domain.Transaction) (store.CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.StoreID == "" {
		return store.CommitResult{}, store.Invalid("store_id", "is required")
	}
	if tx.IdempotencyKey == "" {
		return store.CommitResult{}, store.Invalid("idempotency_key", "is required")
	}

	if existing, ok := s.transactionsByIdem[idemKey(tx.StoreID, tx.IdempotencyKey)]; ok {
		return store.CommitResult{Transaction: store.CloneTransaction(existing), Duplicate: true}, nil
	}

	if len(tx.Items) == 0 {
		return store.CommitResult{}, store.Invalid("items", "must not be empty")
	}
	for i, item := range tx.Items {
		if item.Quantity < 1 {
			return store.CommitResult{}, store.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
	}
	total, err := store.TotalAmount(tx.Items, tx.TotalDiscount)
	if err != nil {
		return store.CommitResult{}, err
	}
	if tx.TotalDiscount < 0 || total < 0 {
		return store.CommitResult{}, store.Invalid("total_discount", "exceeds order subtotal")
	}

	storeStock, ok := s.ingredients[tx.StoreID]
	if !ok {
		return store.CommitResult{}, store.Invalid("store_id", "unknown store")
	}

	menuIDs := make([]string, 0, len(tx.Items))
	for _, item := range tx.Items {
		menuIDs = append(menuIDs, item.MenuID)
	}
	recipes := s.requirementsLocked(menuIDs)
	consumption, err := store.ConsumptionFor(tx.Items, recipes)
	if err != nil {
		return store.CommitResult{}, err
	}
	for _, move := range consumption {
		var available int64
		name := move.IngredientID
		if ing, ok := storeStock[move.IngredientID]; ok {
			available = ing.Qty
			name = ing.Name
		}
		if available < move.Qty {
			return store.CommitResult{}, &store.InsufficientStockError{
				IngredientID:   move.IngredientID,
				IngredientName: name,
				MenuName:       store.FirstMenuUsing(move.IngredientID, tx.Items, recipes),
				Required:       move.Qty,
				Available:      available,
			}
		}
	}

	now := time.Now().UTC()
	for _, move := range consumption {
		ing := storeStock[move.IngredientID]
		ing.Qty -= move.Qty
		ing.UpdatedAt = now
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.TransactionTime.IsZero() {
		tx.TransactionTime = now
	}
	tx.TotalAmount = total
	tx.Status = domain.TxStatusPaid
	tx.Cancellation = nil
	tx.Consumption = consumption

	txCopy := store.CloneTransaction(&tx)
	s.transactionsByID[tx.ID] = txCopy
	s.transactionsByIdem[idemKey(tx.StoreID, tx.IdempotencyKey)] = txCopy

	return store.CommitResult{Transaction: store.CloneTransaction(txCopy)}, nil
}

func (s *Store) CancelTransaction(_ context.Context, id string, cancellation domain.Cancellation) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status == domain.TxStatusCanceled {
		return nil, store.ErrAlreadyCanceled
	}

	if !cancellation.IsWaste {
		storeStock := s.ingredients[tx.StoreID]
		for _, move := range tx.Consumption {
			if _, ok := storeStock[move.IngredientID]; !ok {
				return nil, fmt.Errorf("restock %s: %w", move.IngredientID, store.ErrNotFound)
			}
		}
		for _, move := range tx.Consumption {
			ing := storeStock[move.IngredientID]
			ing.Qty += move.Qty
			ing.UpdatedAt = cancellation.CanceledAt
		}
	}

	tx.Status = domain.TxStatusCanceled
	c := cancellation
	tx.Cancellation = &c

	return store.CloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if tx.StoreID != storeID || !inRange(tx.TransactionTime, from, to) {
			continue
		}
		result = append(result, *store.CloneTransaction(tx))
	}

	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := b.TransactionTime.Compare(a.TransactionTime); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListSalesFacts(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.SalesFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paid := s.paidInRange(storeID, from, to)
	facts := make([]domain.SalesFact, 0, len(paid))
	for _, tx := range paid {
		facts = append(facts, domain.SalesFact{Time: tx.TransactionTime, Amount: tx.TotalAmount})
	}
	return facts, nil
}

func (s *Store) ListSoldLines(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.SoldLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paid := s.paidInRange(storeID, from, to)
	lines := make([]domain.SoldLine, 0, len(paid)*2)
	for _, tx := range paid {
		for _, item := range tx.Items {
			lines = append(lines, domain.SoldLine{
				MenuID:   item.MenuID,
				Name:     item.MenuName,
				Quantity: item.Quantity,
				Revenue:  item.UnitPrice * int64(item.Quantity),
				Time:     tx.TransactionTime,
			})
		}
	}
	return lines, nil
}

// paidInRange returns PAID transactions in ascending time order. Callers hold
// the read lock.
func (s *Store) paidInRange(storeID string, from time.Time, to time.Time) []*domain.Transaction {
	paid := make([]*domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if tx.StoreID != storeID || tx.Status != domain.TxStatusPaid || !inRange(tx.TransactionTime, from, to) {
			continue
		}
		paid = append(paid, tx)
	}
	slices.SortFunc(paid, func(a, b *domain.Transaction) int {
		if c := a.TransactionTime.Compare(b.TransactionTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return paid
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("username", "username and password are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.Invalid("username", "already exists")
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("password", "is required")
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func idemKey(storeID string, key string) string {
	return storeID + "\x00" + key
}

func areaKey(storeID string, year int, month int) string {
	return fmt.Sprintf("%s:%04d-%02d", storeID, year, month)
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
