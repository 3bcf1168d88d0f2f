package models

import "time"

type Transaction struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	SessionID   string    `json:"session_id"`
	AmountCents int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ProductName string    `json:"product_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
