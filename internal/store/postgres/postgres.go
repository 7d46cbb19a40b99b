package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables and indexes. Existing data is untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) ListSellableMenu(ctx context.Context, storeID string) ([]domain.MenuSnapshotLine, error) {
	if err := s.requireStore(ctx, s.db, storeID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_price
		FROM menus
		WHERE store_id = $1 AND sellable = true
		ORDER BY sort_order ASC, id ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	menu := make([]domain.MenuSnapshotLine, 0, 32)
	for rows.Next() {
		var line domain.MenuSnapshotLine
		if err := rows.Scan(&line.MenuID, &line.Name, &line.UnitPrice); err != nil {
			return nil, err
		}
		menu = append(menu, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return menu, nil
}

func (s *Store) GetIngredientRequirements(ctx context.Context, menuIDs []string) (map[string][]domain.IngredientRequirement, error) {
	return s.loadRecipes(ctx, s.db, menuIDs)
}

func (s *Store) loadRecipes(ctx context.Context, q queryer, menuIDs []string) (map[string][]domain.IngredientRequirement, error) {
	result := make(map[string][]domain.IngredientRequirement, len(menuIDs))
	if len(menuIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT menu_id, ingredient_id, qty_per_unit
		FROM menu_ingredients
		WHERE menu_id = ANY($1)
		ORDER BY menu_id ASC, ingredient_id ASC
	`, menuIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var menuID string
		var req domain.IngredientRequirement
		if err := rows.Scan(&menuID, &req.IngredientID, &req.QtyPerUnit); err != nil {
			return nil, err
		}
		result[menuID] = append(result[menuID], req)
	}
	return result, rows.Err()
}

func (s *Store) ListIngredientStock(ctx context.Context, storeID string) ([]domain.IngredientStock, error) {
	if err := s.requireStore(ctx, s.db, storeID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.ingredient_id, s.store_id, i.name, i.unit, s.qty, s.updated_at
		FROM ingredient_stocks s
		JOIN ingredients i ON i.id = s.ingredient_id
		WHERE s.store_id = $1
		ORDER BY s.ingredient_id ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make([]domain.IngredientStock, 0, 32)
	for rows.Next() {
		var ing domain.IngredientStock
		if err := rows.Scan(&ing.IngredientID, &ing.StoreID, &ing.Name, &ing.Unit, &ing.Qty, &ing.UpdatedAt); err != nil {
			return nil, err
		}
		ing.UpdatedAt = ing.UpdatedAt.UTC()
		stock = append(stock, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *Store) GetAreaAverage(ctx context.Context, storeID string, year int, month int) ([]domain.AreaAverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT week_index, amount
		FROM area_weekly_averages
		WHERE store_id = $1 AND year = $2 AND month = $3
		ORDER BY week_index ASC
	`, storeID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weeks := make([]domain.AreaAverage, 0, 6)
	for rows.Next() {
		var avg domain.AreaAverage
		if err := rows.Scan(&avg.WeekIndex, &avg.Amount); err != nil {
			return nil, err
		}
		weeks = append(weeks, avg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return weeks, nil
}

// CommitOrder runs the idempotency check, stock check, stock decrement and
// inserts in one database transaction. Commits for the same (store, key) are
// serialized by an advisory lock; ingredient rows are locked in id order.
func (s *Store) CommitOrder(ctx context.Context, tx domain.Transaction) (store.CommitResult, error) {
	if strings.TrimSpace(tx.StoreID) == "" {
		return store.CommitResult{}, store.Invalid("store_id", "is required")
	}
	if strings.TrimSpace(tx.IdempotencyKey) == "" {
		return store.CommitResult{}, store.Invalid("idempotency_key", "is required")
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return store.CommitResult{}, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tx.StoreID+":"+tx.IdempotencyKey); err != nil {
		return store.CommitResult{}, err
	}

	existing, err := s.findTransaction(ctx, pgTx, "store_id = $1 AND idempotency_key = $2", tx.StoreID, tx.IdempotencyKey)
	if err == nil {
		return store.CommitResult{Transaction: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.CommitResult{}, err
	}

	if len(tx.Items) == 0 {
		return store.CommitResult{}, store.Invalid("items", "must not be empty")
	}
	menuIDs := make([]string, 0, len(tx.Items))
	for i, item := range tx.Items {
		if item.Quantity < 1 {
			return store.CommitResult{}, store.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		menuIDs = append(menuIDs, item.MenuID)
	}
	total, err := store.TotalAmount(tx.Items, tx.TotalDiscount)
	if err != nil {
		return store.CommitResult{}, err
	}
	if tx.TotalDiscount < 0 || total < 0 {
		return store.CommitResult{}, store.Invalid("total_discount", "exceeds order subtotal")
	}
	if err := s.requireStore(ctx, pgTx, tx.StoreID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CommitResult{}, store.Invalid("store_id", "unknown store")
		}
		return store.CommitResult{}, err
	}

	recipes, err := s.loadRecipes(ctx, pgTx, menuIDs)
	if err != nil {
		return store.CommitResult{}, err
	}
	consumption, err := store.ConsumptionFor(tx.Items, recipes)
	if err != nil {
		return store.CommitResult{}, err
	}

	available, names, err := lockStock(ctx, pgTx, tx.StoreID, consumption)
	if err != nil {
		return store.CommitResult{}, err
	}
	for _, move := range consumption {
		if available[move.IngredientID] < move.Qty {
			name := names[move.IngredientID]
			if name == "" {
				name = move.IngredientID
			}
			return store.CommitResult{}, &store.InsufficientStockError{
				IngredientID:   move.IngredientID,
				IngredientName: name,
				MenuName:       store.FirstMenuUsing(move.IngredientID, tx.Items, recipes),
				Required:       move.Qty,
				Available:      available[move.IngredientID],
			}
		}
	}

	for _, move := range consumption {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE ingredient_stocks
			SET qty = qty - $1, updated_at = now()
			WHERE store_id = $2 AND ingredient_id = $3
		`, move.Qty, tx.StoreID, move.IngredientID); err != nil {
			return store.CommitResult{}, err
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.TransactionTime.IsZero() {
		tx.TransactionTime = time.Now().UTC()
	}
	tx.TotalAmount = total
	tx.Status = domain.TxStatusPaid
	tx.Cancellation = nil
	tx.Consumption = consumption

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, idempotency_key, payment_method, total_discount,
			total_amount, status, transaction_time
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.ID, tx.StoreID, tx.IdempotencyKey, tx.PaymentMethod, tx.TotalDiscount,
		tx.TotalAmount, tx.Status, tx.TransactionTime)
	if err != nil {
		if isUniqueViolation(err) {
			_ = pgTx.Rollback()
			existing, lookupErr := s.FindTransactionByIdempotency(ctx, tx.StoreID, tx.IdempotencyKey)
			if lookupErr == nil {
				return store.CommitResult{Transaction: existing, Duplicate: true}, nil
			}
			return store.CommitResult{}, fmt.Errorf("%w: %v", store.ErrDuplicateIdempotencyKey, lookupErr)
		}
		return store.CommitResult{}, err
	}

	for i, item := range tx.Items {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_lines (transaction_id, line_no, menu_id, menu_name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, i, item.MenuID, item.MenuName, item.Quantity, item.UnitPrice); err != nil {
			return store.CommitResult{}, err
		}
	}
	for _, move := range consumption {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_consumption (transaction_id, ingredient_id, qty)
			VALUES ($1,$2,$3)
		`, tx.ID, move.IngredientID, move.Qty); err != nil {
			return store.CommitResult{}, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return store.CommitResult{}, err
	}
	return store.CommitResult{Transaction: store.CloneTransaction(&tx)}, nil
}

// lockStock locks the ingredient rows an order touches, in id order, and
// returns their quantities and names.
func lockStock(ctx context.Context, pgTx *sql.Tx, storeID string, consumption []domain.StockMovement) (map[string]int64, map[string]string, error) {
	available := make(map[string]int64, len(consumption))
	names := make(map[string]string, len(consumption))
	if len(consumption) == 0 {
		return available, names, nil
	}

	ids := make([]string, 0, len(consumption))
	for _, move := range consumption {
		ids = append(ids, move.IngredientID)
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT s.ingredient_id, i.name, s.qty
		FROM ingredient_stocks s
		JOIN ingredients i ON i.id = s.ingredient_id
		WHERE s.store_id = $1 AND s.ingredient_id = ANY($2)
		ORDER BY s.ingredient_id ASC
		FOR UPDATE OF s
	`, storeID, ids)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		var qty int64
		if err := rows.Scan(&id, &name, &qty); err != nil {
			return nil, nil, err
		}
		available[id] = qty
		names[id] = name
	}
	return available, names, rows.Err()
}

// CancelTransaction flips PAID to CANCELED. A non-waste cancellation adds the
// recorded consumption back to stock in the same database transaction.
func (s *Store) CancelTransaction(ctx context.Context, id string, cancellation domain.Cancellation) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var storeID, status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id, status
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&storeID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.TxStatusCanceled {
		return nil, store.ErrAlreadyCanceled
	}

	if !cancellation.IsWaste {
		consumption, err := loadConsumption(ctx, pgTx, id)
		if err != nil {
			return nil, err
		}
		for _, move := range consumption {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE ingredient_stocks
				SET qty = qty + $1, updated_at = now()
				WHERE store_id = $2 AND ingredient_id = $3
			`, move.Qty, storeID, move.IngredientID)
			if err != nil {
				return nil, err
			}
			if affected, err := res.RowsAffected(); err != nil {
				return nil, err
			} else if affected == 0 {
				return nil, fmt.Errorf("restock %s: %w", move.IngredientID, store.ErrNotFound)
			}
		}
	}

	if cancellation.CanceledAt.IsZero() {
		cancellation.CanceledAt = time.Now().UTC()
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, cancel_reason = $3, cancel_is_waste = $4, canceled_at = $5
		WHERE id = $1
	`, id, domain.TxStatusCanceled, cancellation.Reason, cancellation.IsWaste, cancellation.CanceledAt); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.FindTransactionByID(ctx, id)
}

func loadConsumption(ctx context.Context, q queryer, transactionID string) ([]domain.StockMovement, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ingredient_id, qty
		FROM transaction_consumption
		WHERE transaction_id = $1
		ORDER BY ingredient_id ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := make([]domain.StockMovement, 0, 8)
	for rows.Next() {
		var move domain.StockMovement
		if err := rows.Scan(&move.IngredientID, &move.Qty); err != nil {
			return nil, err
		}
		moves = append(moves, move)
	}
	return moves, rows.Err()
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, storeID string, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, s.db, "store_id = $1 AND idempotency_key = $2", storeID, key)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, s.db, "id = $1", id)
}

const transactionColumns = `id, store_id, idempotency_key, payment_method, total_discount,
	total_amount, status, transaction_time, cancel_reason, cancel_is_waste, canceled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var cancelReason sql.NullString
	var cancelWaste sql.NullBool
	var canceledAt sql.NullTime

	if err := row.Scan(
		&tx.ID,
		&tx.StoreID,
		&tx.IdempotencyKey,
		&tx.PaymentMethod,
		&tx.TotalDiscount,
		&tx.TotalAmount,
		&tx.Status,
		&tx.TransactionTime,
		&cancelReason,
		&cancelWaste,
		&canceledAt,
	); err != nil {
		return nil, err
	}
	tx.TransactionTime = tx.TransactionTime.UTC()
	if canceledAt.Valid {
		tx.Cancellation = &domain.Cancellation{
			Reason:     cancelReason.String,
			IsWaste:    cancelWaste.Bool,
			CanceledAt: canceledAt.Time.UTC(),
		}
	}
	return &tx, nil
}

// findTransaction loads one transaction with its lines and consumption.
// where is a fixed clause chosen by the caller, never user input.
func (s *Store) findTransaction(ctx context.Context, q queryer, where string, args ...any) (*domain.Transaction, error) {
	tx, err := scanTransaction(q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lines, err := loadLines(ctx, q, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = lines[tx.ID]

	tx.Consumption, err = loadConsumption(ctx, q, tx.ID)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func loadLines(ctx context.Context, q queryer, transactionIDs []string) (map[string][]domain.TransactionLine, error) {
	result := make(map[string][]domain.TransactionLine, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT transaction_id, menu_id, menu_name, quantity, unit_price
		FROM transaction_lines
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id ASC, line_no ASC
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var line domain.TransactionLine
		if err := rows.Scan(&txID, &line.MenuID, &line.MenuName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		result[txID] = append(result[txID], line)
	}
	return result, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE store_id = $1 AND transaction_time >= $2 AND transaction_time < $3
		ORDER BY transaction_time DESC, id DESC`
	args := []any{storeID, from, to}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	lines, err := loadLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Items = lines[txs[i].ID]
	}
	return txs, nil
}

func (s *Store) ListSalesFacts(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SalesFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_time, total_amount
		FROM transactions
		WHERE store_id = $1
			AND status = $2
			AND transaction_time >= $3
			AND transaction_time < $4
		ORDER BY transaction_time ASC, id ASC
	`, storeID, domain.TxStatusPaid, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]domain.SalesFact, 0, 256)
	for rows.Next() {
		var fact domain.SalesFact
		if err := rows.Scan(&fact.Time, &fact.Amount); err != nil {
			return nil, err
		}
		fact.Time = fact.Time.UTC()
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *Store) ListSoldLines(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.SoldLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.menu_id, l.menu_name, l.quantity, l.quantity * l.unit_price, t.transaction_time
		FROM transaction_lines l
		JOIN transactions t ON t.id = l.transaction_id
		WHERE t.store_id = $1
			AND t.status = $2
			AND t.transaction_time >= $3
			AND t.transaction_time < $4
		ORDER BY t.transaction_time ASC, t.id ASC, l.line_no ASC
	`, storeID, domain.TxStatusPaid, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SoldLine, 0, 256)
	for rows.Next() {
		var line domain.SoldLine
		if err := rows.Scan(&line.MenuID, &line.Name, &line.Quantity, &line.Revenue, &line.Time); err != nil {
			return nil, err
		}
		line.Time = line.Time.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("username", "username and password are required")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Invalid("username", "already exists")
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("password", "is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) requireStore(ctx context.Context, q queryer, storeID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
