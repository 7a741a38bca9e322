package model

import "github.com/shopspring/decimal"

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// NewAccount carries the directory fields of a fresh account. Balance always
// starts at zero.
type NewAccount struct {
	Name  string
	Email string
	Role  Role
}

// ProfileUpdate has no balance field. Balance only moves
// through ledger entries.
type ProfileUpdate struct {
	Name   string        `json:"name" validate:"required,max=100"`
	Email  string        `json:"email" validate:"required,email"`
	Role   Role          `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
	Status AccountStatus `json:"status,omitempty" validate:"omitempty,oneof=active suspended"`
}

type PlaceOrderRequest struct {
	ServiceID int64  `json:"service_id" validate:"required,gt=0"`
	Link      string `json:"link" validate:"required,max=2048"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

type PlaceOrder struct {
	AccountID int64
	ServiceID int64
	Link      string
	Quantity  int64
}

type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

type ProgressRequest struct {
	Status          OrderStatus `json:"status" validate:"required"`
	StartCount      *int64      `json:"start_count,omitempty" validate:"omitempty,gte=0"`
	Remains         *int64      `json:"remains,omitempty" validate:"omitempty,gte=0"`
	ProviderOrderID *string     `json:"provider_order_id,omitempty"`
}

type ServiceRequest struct {
	Name              string          `json:"name" validate:"required,max=255"`
	Rate              decimal.Decimal `json:"rate"`
	MinOrder          int64           `json:"min_order" validate:"gt=0"`
	MaxOrder          int64           `json:"max_order" validate:"gtefield=MinOrder"`
	Status            ServiceStatus   `json:"status" validate:"required,oneof=active inactive"`
	ProviderID        *int64          `json:"provider_id,omitempty"`
	ProviderServiceID string          `json:"provider_service_id,omitempty"`
}

type ProviderRequest struct {
	Name   string        `json:"name" validate:"required,max=255"`
	APIURL string        `json:"api_url" validate:"required,url"`
	APIKey string        `json:"api_key" validate:"required"`
	Status ServiceStatus `json:"status" validate:"required,oneof=active inactive"`
}

type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
