package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a per-user, per-currency balance record as reported by the API.
type Wallet struct {
	ID        int64           `json:"id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Currency is static reference data for a supported currency.
type Currency struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	RateToBase decimal.Decimal `json:"rate_to_base"`
	LogoURL    string          `json:"logo_url"`
}

// TopUpResult is the API response to a wallet top-up.
type TopUpResult struct {
	Message     string          `json:"message"`
	Currency    string          `json:"currency"`
	AddedAmount decimal.Decimal `json:"added_amount"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

// ConvertResult is the API response to a conversion quote.
type ConvertResult struct {
	FromCurrency    string          `json:"from_currency"`
	ToCurrency      string          `json:"to_currency"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
}

// Analytics summarises the current user's transfer activity.
type Analytics struct {
	TotalSent        decimal.Decimal `json:"total_sent"`
	TotalReceived    decimal.Decimal `json:"total_received"`
	TransactionCount int             `json:"transaction_count"`
	NetBalanceChange decimal.Decimal `json:"net_balance_change"`
}
