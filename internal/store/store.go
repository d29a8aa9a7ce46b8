package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"PresaleSettlement/internal/events"
	"PresaleSettlement/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, wallet_address, order_type, token_amount::text, payment_amount::text,
		payment_currency, transaction_hash, status, liquidity_added, created_at, fulfilled_at`

type Store struct {
	Pool   *pgxpool.Pool
	Events *events.Bus
}

func New(pool *pgxpool.Pool, bus *events.Bus) *Store {
	return &Store{Pool: pool, Events: bus}
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure, the guard behind idempotent purchase recording.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) Insert(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO token_orders (
			id, wallet_address, order_type, token_amount, payment_amount,
			payment_currency, transaction_hash, status, liquidity_added, created_at
		) VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6,$7,$8,$9,$10)
	`,
		order.ID,
		strings.ToLower(order.WalletAddress),
		order.OrderType,
		order.TokenAmount,
		order.PaymentAmount,
		order.PaymentCurrency,
		order.TransactionHash,
		order.Status,
		order.LiquidityAdded,
		order.CreatedAt,
	)
	if err != nil {
		return err
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{Kind: events.KindInsert, Order: order})
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM token_orders WHERE id=$1
	`, id)
	return scanOrder(row)
}

// GetByTransactionHash returns (nil, nil) when no order holds the hash.
func (s *Store) GetByTransactionHash(ctx context.Context, hash string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM token_orders WHERE transaction_hash=$1
	`, hash)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return order, err
}

func (s *Store) ListAwaitingDistribution(ctx context.Context, orderType models.OrderType, limit int) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM token_orders
		WHERE order_type=$1 AND status=$2 AND fulfilled_at IS NULL
		ORDER BY created_at ASC
		LIMIT $3
	`, orderType, models.OrderAwaitingDistribution, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// MarkFulfilled records a confirmed distribution and reports how many rows
// changed. The status guard keeps an already fulfilled order from being
// rewritten by a late duplicate run.
func (s *Store) MarkFulfilled(ctx context.Context, id string, txHash string, fulfilledAt time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE token_orders
		SET status=$2, fulfilled_at=$3, transaction_hash=$4
		WHERE id=$1 AND status=$5
	`, id, models.OrderFulfilled, fulfilledAt, txHash, models.OrderAwaitingDistribution)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected() > 0 && s.Events != nil {
		if order, err := s.GetOrder(ctx, id); err == nil {
			s.Events.Publish(events.Event{Kind: events.KindUpdate, Order: order})
		}
	}
	return res.RowsAffected(), nil
}

func (s *Store) ListByWallet(ctx context.Context, wallet string) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM token_orders
		WHERE wallet_address=$1 AND order_type=$2
		ORDER BY created_at DESC
	`, strings.ToLower(wallet), models.OrderBuy)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM token_orders
		WHERE order_type=$1
		ORDER BY created_at DESC
	`, models.OrderBuy)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ListLiquidityPending returns fulfilled buy orders whose proceeds have not
// been folded into the liquidity pool yet.
func (s *Store) ListLiquidityPending(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM token_orders
		WHERE order_type=$1 AND status=$2 AND liquidity_added=false
		ORDER BY created_at ASC
	`, models.OrderBuy, models.OrderFulfilled)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) MarkLiquidityAdded(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE token_orders
		SET liquidity_added=true
		WHERE id = ANY($1) AND liquidity_added=false
	`, ids)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var fulfilledAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.WalletAddress,
		&order.OrderType,
		&order.TokenAmount,
		&order.PaymentAmount,
		&order.PaymentCurrency,
		&order.TransactionHash,
		&order.Status,
		&order.LiquidityAdded,
		&order.CreatedAt,
		&fulfilledAt,
	)
	if err != nil {
		return nil, err
	}
	if fulfilledAt.Valid {
		order.FulfilledAt = &fulfilledAt.Time
	}
	return &order, nil
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
