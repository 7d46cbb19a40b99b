package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"orderdesk/backend/internal/cache"
	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/lock"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultStoreID string
	MenuCache      cache.MenuCache
	MenuCacheTTL   time.Duration
	Locker         lock.Locker
	Location       *time.Location
	Logger         *zerolog.Logger
	Clock          func() time.Time
}

type Service struct {
	repo           store.Repository
	menuCache      cache.MenuCache
	menuCacheTTL   time.Duration
	locker         lock.Locker
	loc            *time.Location
	logger         zerolog.Logger
	now            func() time.Time
	defaultStoreID string
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:           repo,
		menuCache:      opts.MenuCache,
		menuCacheTTL:   opts.MenuCacheTTL,
		locker:         opts.Locker,
		loc:            opts.Location,
		now:            opts.Clock,
		defaultStoreID: opts.DefaultStoreID,
		logger:         zerolog.Nop(),
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "service").Logger()
	}
	if s.defaultStoreID == "" {
		s.defaultStoreID = "main-store"
	}
	if s.menuCache == nil {
		s.menuCache = cache.NoopMenuCache{}
	}
	if s.menuCacheTTL <= 0 {
		s.menuCacheTTL = 30 * time.Second
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// SubmitOrder commits an order exactly once per (store, idempotency key).
// A retry with a key that already committed returns the original
// transaction with Duplicate set and has no further effect.
func (s *Service) SubmitOrder(ctx context.Context, req domain.SubmitOrderRequest) (domain.OrderResponse, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if err := validateRequest(req); err != nil {
		return domain.OrderResponse{}, err
	}

	release, err := s.locker.Acquire(ctx, "submit:"+req.StoreID+":"+req.IdempotencyKey)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	defer release()

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, req.StoreID, req.IdempotencyKey); err == nil {
		return domain.OrderResponse{Transaction: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.OrderResponse{}, err
	}

	menu, err := s.sellableMenu(ctx, req.StoreID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OrderResponse{}, store.Invalid("store_id", "unknown store")
		}
		return domain.OrderResponse{}, err
	}
	byID := make(map[string]domain.MenuSnapshotLine, len(menu))
	for _, line := range menu {
		byID[line.MenuID] = line
	}

	lines := make([]domain.TransactionLine, 0, len(req.Items))
	for i, item := range req.Items {
		snapshot, ok := byID[item.MenuID]
		if !ok {
			return domain.OrderResponse{}, store.Invalid(fmt.Sprintf("items[%d].menu_id", i), "is not sellable in this store")
		}
		lines = append(lines, domain.TransactionLine{
			MenuID:    item.MenuID,
			MenuName:  snapshot.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	total, err := store.TotalAmount(lines, req.TotalDiscount)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	if total < 0 {
		return domain.OrderResponse{}, store.Invalid("total_discount", "exceeds order subtotal")
	}
	if err := s.checkConsumption(ctx, lines); err != nil {
		return domain.OrderResponse{}, err
	}

	result, err := s.repo.CommitOrder(ctx, domain.Transaction{
		ID:              xid.New("tx"),
		StoreID:         req.StoreID,
		IdempotencyKey:  req.IdempotencyKey,
		Items:           lines,
		PaymentMethod:   req.PaymentMethod,
		TotalDiscount:   req.TotalDiscount,
		Status:          domain.TxStatusPaid,
		TransactionTime: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			s.logger.Error().Err(err).Str("store_id", req.StoreID).Str("idempotency_key", req.IdempotencyKey).Msg("idempotency conflict after commit")
		}
		return domain.OrderResponse{}, err
	}

	if !result.Duplicate {
		tx := result.Transaction
		s.logAudit(ctx, tx.StoreID, "order_submit", "transaction", tx.ID,
			fmt.Sprintf("total=%d,payment=%s,discount=%d,lines=%d", tx.TotalAmount, tx.PaymentMethod, tx.TotalDiscount, len(tx.Items)))
	}

	return domain.OrderResponse{Transaction: *result.Transaction, Duplicate: result.Duplicate}, nil
}

// LookupOrderByIdempotency lets a terminal that lost a response learn
// whether its submission committed.
func (s *Service) LookupOrderByIdempotency(ctx context.Context, storeID string, key string) (domain.OrderLookupResponse, error) {
	storeID = s.storeOrDefault(storeID)
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.OrderLookupResponse{}, store.Invalid("idempotency_key", "is required")
	}

	tx, err := s.repo.FindTransactionByIdempotency(ctx, storeID, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OrderLookupResponse{Found: false}, nil
		}
		return domain.OrderLookupResponse{}, err
	}
	return domain.OrderLookupResponse{Found: true, Transaction: tx}, nil
}

func (s *Service) GetOrder(ctx context.Context, transactionID string) (domain.Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Transaction{}, store.Invalid("transaction_id", "is required")
	}
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListOrders(ctx context.Context, storeID string, date string, limit int) (domain.OrderListResponse, error) {
	storeID = s.storeOrDefault(storeID)
	if limit < 1 {
		limit = 100
	}
	day, err := s.parseDayOrToday(date, "date")
	if err != nil {
		return domain.OrderListResponse{}, err
	}

	txs, err := s.repo.ListTransactions(ctx, storeID, day, day.AddDate(0, 0, 1), limit)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	return domain.OrderListResponse{
		StoreID:      storeID,
		Date:         day.Format(dateLayout),
		Transactions: txs,
	}, nil
}

// CancelOrder moves a PAID transaction to CANCELED. Stock consumed at commit
// is restored unless the cancellation is waste.
func (s *Service) CancelOrder(ctx context.Context, req domain.CancelOrderRequest) (domain.Transaction, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := validateRequest(req); err != nil {
		return domain.Transaction{}, err
	}

	release, err := s.locker.Acquire(ctx, "cancel:"+req.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer release()

	tx, err := s.repo.CancelTransaction(ctx, req.TransactionID, domain.Cancellation{
		Reason:     req.Reason,
		IsWaste:    req.IsWaste,
		CanceledAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, tx.StoreID, "order_cancel", "transaction", tx.ID, fmt.Sprintf("waste=%t,reason=%s", req.IsWaste, req.Reason))
	return *tx, nil
}

func (s *Service) GetSellableMenu(ctx context.Context, storeID string) (domain.MenuListResponse, error) {
	storeID = s.storeOrDefault(storeID)
	menu, err := s.sellableMenu(ctx, storeID)
	if err != nil {
		return domain.MenuListResponse{}, err
	}
	return domain.MenuListResponse{StoreID: storeID, Menu: menu}, nil
}

func (s *Service) ListIngredientStock(ctx context.Context, storeID string) (domain.IngredientStockListResponse, error) {
	storeID = s.storeOrDefault(storeID)
	stock, err := s.repo.ListIngredientStock(ctx, storeID)
	if err != nil {
		return domain.IngredientStockListResponse{}, err
	}
	return domain.IngredientStockListResponse{StoreID: storeID, Ingredients: stock}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	storeID = s.storeOrDefault(storeID)
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		day, err := s.parseDay(date, "date")
		if err != nil {
			return nil, err
		}
		from = day
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

// checkConsumption resolves the order's recipes and rejects lines whose
// ingredient totals cannot be represented. Stock itself is checked by the
// store inside the commit.
func (s *Service) checkConsumption(ctx context.Context, lines []domain.TransactionLine) error {
	menuIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		menuIDs = append(menuIDs, line.MenuID)
	}
	recipes, err := s.repo.GetIngredientRequirements(ctx, menuIDs)
	if err != nil {
		return err
	}
	_, err = store.ConsumptionFor(lines, recipes)
	return err
}

// sellableMenu reads through the menu cache. Cache failures fall back to
// the repository.
func (s *Service) sellableMenu(ctx context.Context, storeID string) ([]domain.MenuSnapshotLine, error) {
	if menu, found, err := s.menuCache.Get(ctx, storeID); err != nil {
		s.logger.Warn().Err(err).Str("store_id", storeID).Msg("menu cache read failed")
	} else if found {
		return menu, nil
	}

	menu, err := s.repo.ListSellableMenu(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if err := s.menuCache.Set(ctx, storeID, menu, s.menuCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("store_id", storeID).Msg("menu cache write failed")
	}
	return menu, nil
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	storeID = s.storeOrDefault(storeID)

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

func (s *Service) storeOrDefault(storeID string) string {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return s.defaultStoreID
	}
	return storeID
}
