package models

import "time"

type OrderStatus string

const (
	// OrderAwaitingDistribution means the payment was confirmed on-chain and
	// the token transfer has not been sent yet.
	OrderAwaitingDistribution OrderStatus = "awaiting_distribution"
	OrderFulfilled            OrderStatus = "fulfilled"
	OrderFailed               OrderStatus = "failed"
)

type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

type Order struct {
	ID              string
	WalletAddress   string
	OrderType       OrderType
	TokenAmount     string
	PaymentAmount   string
	PaymentCurrency string
	// TransactionHash holds the payment tx hash until distribution, then the
	// distribution tx hash.
	TransactionHash string
	Status          OrderStatus
	LiquidityAdded  bool
	CreatedAt       time.Time
	FulfilledAt     *time.Time
}
