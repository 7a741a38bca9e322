package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the currency precision used for every stored amount.
const MoneyPlaces = 2

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

type Account struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Role      Role            `json:"role"`
	Status    AccountStatus   `json:"status"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Actor is whoever triggers an administrative operation.
type Actor struct {
	AccountID int64
	Role      Role
}

func (a Account) Actor() Actor {
	return Actor{AccountID: a.ID, Role: a.Role}
}

type EntryKind string

const (
	Deposit         EntryKind = "DEPOSIT"
	OrderCharge     EntryKind = "ORDER_CHARGE"
	Refund          EntryKind = "REFUND"
	AdminAdjustment EntryKind = "ADMIN_ADJUSTMENT"
)

func (k EntryKind) Valid() bool {
	switch k {
	case Deposit, OrderCharge, Refund, AdminAdjustment:
		return true
	}
	return false
}

// AllowsAmount reports whether a signed amount fits the kind: charges debit,
// deposits and refunds credit, adjustments go either way but never zero.
func (k EntryKind) AllowsAmount(amount decimal.Decimal) bool {
	if !amount.Equal(amount.Round(MoneyPlaces)) {
		return false
	}
	switch k {
	case Deposit, Refund:
		return amount.IsPositive()
	case OrderCharge:
		return amount.IsNegative()
	case AdminAdjustment:
		return !amount.IsZero()
	}
	return false
}

type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      int64           `json:"account_id"`
	Kind           EntryKind       `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Description    string          `json:"description"`
	RelatedOrderID *int64          `json:"related_order_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type OrderStatus string

const (
	Pending    OrderStatus = "PENDING"
	Processing OrderStatus = "PROCESSING"
	Partial    OrderStatus = "PARTIAL"
	Completed  OrderStatus = "COMPLETED"
	Cancelled  OrderStatus = "CANCELLED"
	Refunded   OrderStatus = "REFUNDED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case Pending, Processing, Partial, Completed, Cancelled, Refunded:
		return true
	}
	return false
}

// Refundable orders are the only ones settlement may credit back.
func (s OrderStatus) Refundable() bool {
	return s == Pending || s == Processing
}

// Settled orders accept no further status change or ledger action.
func (s OrderStatus) Settled() bool {
	switch s {
	case Partial, Completed, Cancelled, Refunded:
		return true
	}
	return false
}

// CanAdvanceTo covers provider-driven progress only. Cancel and refund go
// through settlement.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	switch s {
	case Pending:
		return next == Pending || next == Processing || next == Completed || next == Partial
	case Processing:
		return next == Processing || next == Completed || next == Partial
	}
	return false
}

type Order struct {
	ID              int64           `json:"id"`
	AccountID       int64           `json:"account_id"`
	ServiceID       int64           `json:"service_id"`
	Link            string          `json:"link"`
	Quantity        int64           `json:"quantity"`
	Charge          decimal.Decimal `json:"charge"`
	Status          OrderStatus     `json:"status"`
	ProviderOrderID *string         `json:"provider_order_id,omitempty"`
	StartCount      int64           `json:"start_count"`
	Remains         int64           `json:"remains"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderProgress is what an upstream provider reports about an order.
type OrderProgress struct {
	Status          OrderStatus
	StartCount      *int64
	Remains         *int64
	ProviderOrderID *string
}

type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "active"
	ServiceInactive ServiceStatus = "inactive"
)

type Service struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Rate              decimal.Decimal `json:"rate"`
	MinOrder          int64           `json:"min_order"`
	MaxOrder          int64           `json:"max_order"`
	Status            ServiceStatus   `json:"status"`
	ProviderID        *int64          `json:"provider_id,omitempty"`
	ProviderServiceID string          `json:"provider_service_id,omitempty"`
}

// ChargeFor prices quantity units at Rate per thousand, rounded half-up to
// cents.
func (s Service) ChargeFor(quantity int64) decimal.Decimal {
	return decimal.NewFromInt(quantity).
		Mul(s.Rate).
		Div(decimal.NewFromInt(1000)).
		Round(MoneyPlaces)
}

func (s Service) AcceptsQuantity(quantity int64) bool {
	return quantity >= s.MinOrder && quantity <= s.MaxOrder
}

type Provider struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	APIURL string        `json:"api_url"`
	APIKey string        `json:"-"`
	Status ServiceStatus `json:"status"`
}

type EntryFilter struct {
	Kind           *EntryKind
	RelatedOrderID *int64
	Page
}

type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default page size and the hard cap.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	p.Limit = min(p.Limit, MaxPageSize)
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
