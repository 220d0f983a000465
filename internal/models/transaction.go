package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types as seen from the current user's side.
const (
	TransactionSent     = "sent"
	TransactionReceived = "received"
)

// Transaction is an immutable transfer record.
type Transaction struct {
	ID             int64           `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	SenderEmail    string          `json:"sender_email"`
	ReceiverEmail  string          `json:"receiver_email"`
	AmountSent     decimal.Decimal `json:"amount_sent"`
	FromCurrency   string          `json:"from_currency"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ToCurrency     string          `json:"to_currency"`
	Type           string          `json:"type"`
}

// IsSent reports whether the current user sent this transaction.
func (t Transaction) IsSent() bool {
	return t.Type == TransactionSent
}

// Amount returns the amount on the current user's side of the transfer.
func (t Transaction) Amount() decimal.Decimal {
	if t.IsSent() {
		return t.AmountSent
	}
	return t.AmountReceived
}

// AmountCurrency returns the currency matching Amount.
func (t Transaction) AmountCurrency() string {
	if t.IsSent() {
		return t.FromCurrency
	}
	return t.ToCurrency
}

// Counterparty returns the email of the other side of the transfer.
func (t Transaction) Counterparty() string {
	if t.IsSent() {
		return t.ReceiverEmail
	}
	return t.SenderEmail
}

// SendMoneyRequest is the payload for a peer-to-peer transfer.
type SendMoneyRequest struct {
	ReceiverEmail string          `json:"receiver_email"`
	FromCurrency  string          `json:"from_currency"`
	ToCurrency    string          `json:"to_currency"`
	Amount        decimal.Decimal `json:"amount"`
}

// SendResult is the API response to a transfer.
type SendResult struct {
	Message  string          `json:"message"`
	Sent     decimal.Decimal `json:"sent"`
	Received decimal.Decimal `json:"received"`
	To       string          `json:"to"`
}
