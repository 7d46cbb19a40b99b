package domain

import "time"

type MenuSnapshotLine struct {
	MenuID    string `json:"menu_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

type IngredientRequirement struct {
	IngredientID string `json:"ingredient_id"`
	QtyPerUnit   int64  `json:"qty_per_unit"`
}

type IngredientStock struct {
	IngredientID string    `json:"ingredient_id"`
	StoreID      string    `json:"store_id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	Qty          int64     `json:"qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type IngredientStockListResponse struct {
	StoreID     string            `json:"store_id"`
	Ingredients []IngredientStock `json:"ingredients"`
}

type MenuListResponse struct {
	StoreID string             `json:"store_id"`
	Menu    []MenuSnapshotLine `json:"menu"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderItem struct {
	MenuID    string `json:"menu_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=9999"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=100000000"`
}

type SubmitOrderRequest struct {
	StoreID        string      `json:"store_id" validate:"required"`
	IdempotencyKey string      `json:"idempotency_key" validate:"required,max=128"`
	PaymentMethod  string      `json:"payment_method" validate:"required,oneof=CARD CASH APP"`
	TotalDiscount  int64       `json:"total_discount" validate:"gte=0,lte=1000000000"`
	Items          []OrderItem `json:"items" validate:"required,min=1,dive"`
}

type CancelOrderRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	IsWaste       bool   `json:"is_waste"`
	Reason        string `json:"reason" validate:"required"`
	ManagerPIN    string `json:"manager_pin,omitempty"`
}

type TransactionLine struct {
	MenuID    string `json:"menu_id"`
	MenuName  string `json:"menu_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// StockMovement is one ingredient quantity consumed by a committed transaction.
type StockMovement struct {
	IngredientID string `json:"ingredient_id"`
	Qty          int64  `json:"qty"`
}

type Cancellation struct {
	Reason     string    `json:"reason"`
	IsWaste    bool      `json:"is_waste"`
	CanceledAt time.Time `json:"canceled_at"`
}

type Transaction struct {
	ID              string            `json:"transaction_id"`
	StoreID         string            `json:"store_id"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Items           []TransactionLine `json:"items"`
	PaymentMethod   string            `json:"payment_method"`
	TotalDiscount   int64             `json:"total_discount"`
	TotalAmount     int64             `json:"total_amount"`
	Status          string            `json:"status"`
	TransactionTime time.Time         `json:"transaction_time"`
	Cancellation    *Cancellation     `json:"cancellation,omitempty"`
	Consumption     []StockMovement   `json:"-"`
}

type OrderResponse struct {
	Transaction Transaction `json:"transaction"`
	Duplicate   bool        `json:"duplicate"`
}

type OrderLookupResponse struct {
	Found       bool         `json:"found"`
	Transaction *Transaction `json:"transaction,omitempty"`
}

type OrderListResponse struct {
	StoreID      string        `json:"store_id"`
	Date         string        `json:"date"`
	Transactions []Transaction `json:"transactions"`
}

// SalesFact is the per-transaction projection of a PAID transaction.
type SalesFact struct {
	Time   time.Time `json:"date"`
	Amount int64     `json:"amount"`
}

// SoldLine is one PAID transaction line, used for menu rankings.
type SoldLine struct {
	MenuID   string    `json:"menu_id"`
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
	Revenue  int64     `json:"revenue"`
	Time     time.Time `json:"time"`
}

type DailySales struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
}

type DailySalesResponse struct {
	StoreID string       `json:"store_id"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Days    []DailySales `json:"days"`
}

type PeriodBucket struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Sales int64   `json:"sales"`
	Rate  float64 `json:"rate"`
}

type SalesSeriesResponse struct {
	StoreID string         `json:"store_id"`
	Period  string         `json:"period"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Buckets []PeriodBucket `json:"buckets"`
}

type TopMenu struct {
	MenuID   string  `json:"menu_id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  int64   `json:"revenue"`
	Share    float64 `json:"share"`
}

type TopMenusResponse struct {
	StoreID      string    `json:"store_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	TotalRevenue int64     `json:"total_revenue"`
	Menus        []TopMenu `json:"menus"`
}

type DashboardCard struct {
	Current  int64   `json:"current"`
	Previous int64   `json:"previous"`
	Rate     float64 `json:"rate"`
}

type Dashboard struct {
	StoreID             string        `json:"store_id"`
	Date                string        `json:"date"`
	Today               DashboardCard `json:"today"`
	Week                DashboardCard `json:"week"`
	Month               DashboardCard `json:"month"`
	TodayTransactions   int           `json:"today_transactions"`
	TodayCanceledOrders int           `json:"today_canceled_orders"`
	TodayWasteCanceled  int           `json:"today_waste_canceled"`
}

type AreaAverage struct {
	WeekIndex int   `json:"week_index"`
	Amount    int64 `json:"amount"`
}

type MonthlySummary struct {
	LastMonthTotal int64   `json:"last_month_total"`
	ThisMonthTotal int64   `json:"this_month_total"`
	Diff           int64   `json:"diff"`
	Rate           float64 `json:"rate"`
}

type WeeklySales struct {
	WeekIndex    int    `json:"week_index"`
	Label        string `json:"label"`
	MySales      int64  `json:"my_sales"`
	AreaAvgSales int64  `json:"area_avg_sales"`
}

type ReportTopMenu struct {
	MenuName string  `json:"menu_name"`
	Sales    int64   `json:"sales"`
	Rate     float64 `json:"rate"`
}

type MonthlyReport struct {
	StoreID     string          `json:"store_id"`
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	GeneratedAt time.Time       `json:"generated_at"`
	Summary     MonthlySummary  `json:"summary"`
	WeeklySales []WeeklySales   `json:"weekly_sales"`
	TopMenus    []ReportTopMenu `json:"top_menus"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	TxStatusPaid     = "PAID"
	TxStatusCanceled = "CANCELED"
)

const (
	PaymentCard = "CARD"
	PaymentCash = "CASH"
	PaymentApp  = "APP"
)

const (
	PeriodDay   = "DAY"
	PeriodWeek  = "WEEK"
	PeriodMonth = "MONTH"
	PeriodYear  = "YEAR"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
