package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"PresaleSettlement/internal/ledger"
	"PresaleSettlement/internal/models"
	"PresaleSettlement/internal/store"

	"github.com/google/uuid"
)

var (
	ErrMissingWalletAddress   = errors.New("missing wallet address")
	ErrMissingTransactionHash = errors.New("missing transaction hash")
	ErrInvalidTokenAmount     = errors.New("token amount must be positive")
	ErrInvalidPaymentAmount   = errors.New("payment amount must be positive")
	ErrInvalidOrderType       = errors.New("order type must be buy or sell")
	// ErrDuplicateTransaction marks the idempotency boundary: the payment tx
	// was already recorded, so the claim must not be recorded twice.
	ErrDuplicateTransaction = errors.New("transaction already processed")
)

// OrderStore is the slice of the order store the recorder writes through.
type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	GetByTransactionHash(ctx context.Context, hash string) (*models.Order, error)
}

type OrderService struct {
	Store           OrderStore
	PaymentCurrency string
}

type RecordPurchaseParams struct {
	WalletAddress   string
	TokenAmount     string
	PaymentAmount   string
	TransactionHash string
	OrderType       models.OrderType
}

// RecordPurchase turns a confirmed on-chain payment into exactly one order
// row awaiting distribution. It moves no funds itself.
func (s *OrderService) RecordPurchase(ctx context.Context, p RecordPurchaseParams) (*models.Order, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	existing, err := s.Store.GetByTransactionHash(ctx, p.TransactionHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateTransaction
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		WalletAddress:   strings.ToLower(p.WalletAddress),
		OrderType:       p.OrderType,
		TokenAmount:     p.TokenAmount,
		PaymentAmount:   p.PaymentAmount,
		PaymentCurrency: s.PaymentCurrency,
		TransactionHash: p.TransactionHash,
		Status:          models.OrderAwaitingDistribution,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.Store.Insert(ctx, order); err != nil {
		// Two concurrent recordings of one payment race past the lookup; the
		// unique constraint decides the winner.
		if store.IsUniqueViolation(err) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}
	return order, nil
}

func validate(p RecordPurchaseParams) error {
	if strings.TrimSpace(p.WalletAddress) == "" {
		return ErrMissingWalletAddress
	}
	if strings.TrimSpace(p.TransactionHash) == "" {
		return ErrMissingTransactionHash
	}
	// The settlement grammar, not a general number parser: amounts a
	// big-number parser would take (1e21, 3/4) but ToBaseUnits cannot scale
	// must be rejected here, or the order sticks in awaiting_distribution.
	if !ledger.IsPositiveAmount(p.TokenAmount) {
		return ErrInvalidTokenAmount
	}
	if !ledger.IsPositiveAmount(p.PaymentAmount) {
		return ErrInvalidPaymentAmount
	}
	if p.OrderType != models.OrderBuy && p.OrderType != models.OrderSell {
		return ErrInvalidOrderType
	}
	return nil
}
