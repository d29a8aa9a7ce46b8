package distributor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"PresaleSettlement/internal/ledger"
	"PresaleSettlement/internal/models"
)

const defaultBatchSize = 10

// ErrInsufficientBalance leaves the order awaiting distribution; the batch
// retries it after the custodial wallet is topped up.
var ErrInsufficientBalance = errors.New("insufficient distribution wallet balance")

// Store is the slice of the order store the distributor settles through.
type Store interface {
	ListAwaitingDistribution(ctx context.Context, orderType models.OrderType, limit int) ([]*models.Order, error)
	MarkFulfilled(ctx context.Context, id string, txHash string, fulfilledAt time.Time) (int64, error)
}

type Distributor struct {
	Store     Store
	Ledger    ledger.Client
	BatchSize int

	// mu serializes batches within the process: the worker ticker and the
	// admin trigger share one Distributor, and the custodial wallet cannot
	// take interleaved submissions.
	mu sync.Mutex
}

type Result struct {
	OrderID string
	Success bool
	// TxHash is set on success, and also on a persistence failure after the
	// transfer confirmed, so an operator can reconcile by hand.
	TxHash string
	Err    error
}

type BatchReport struct {
	Processed int
	Total     int
	Results   []Result
}

// RunBatch settles up to BatchSize buy orders awaiting distribution, oldest
// first. Orders are processed strictly one at a time: the custodial wallet's
// nonce sequencing forbids parallel submission. One order's failure never
// aborts the rest of the batch.
func (d *Distributor) RunBatch(ctx context.Context) (BatchReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	limit := d.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}

	orders, err := d.Store.ListAwaitingDistribution(ctx, models.OrderBuy, limit)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list awaiting orders: %w", err)
	}
	if len(orders) == 0 {
		return BatchReport{}, nil
	}

	decimals, err := d.Ledger.Decimals(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("read token decimals: %w", err)
	}

	report := BatchReport{Total: len(orders)}
	for _, order := range orders {
		if ctx.Err() != nil {
			// Interrupted mid-batch: settled orders stay settled, the rest
			// stay untouched for the next run.
			report.Total = len(report.Results)
			return report, ctx.Err()
		}

		result := d.settle(ctx, order, decimals)
		if result.Success {
			report.Processed++
			log.Printf("order %s fulfilled tx=%s", order.ID, result.TxHash)
		} else {
			log.Printf("order %s not settled: %v", order.ID, result.Err)
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (d *Distributor) settle(ctx context.Context, order *models.Order, decimals uint8) Result {
	res := Result{OrderID: order.ID}

	amount, err := ledger.ToBaseUnits(order.TokenAmount, decimals)
	if err != nil {
		res.Err = err
		return res
	}

	balance, err := d.Ledger.BalanceOf(ctx, d.Ledger.HolderAddress())
	if err != nil {
		res.Err = fmt.Errorf("read custodial balance: %w", err)
		return res
	}
	if balance.Cmp(amount) < 0 {
		log.Printf("order %s needs %s tokens, wallet holds %s",
			order.ID, order.TokenAmount, ledger.FromBaseUnits(balance, decimals))
		res.Err = ErrInsufficientBalance
		return res
	}

	txHash, err := d.Ledger.Transfer(ctx, order.WalletAddress, amount)
	if err != nil {
		res.Err = fmt.Errorf("transfer: %w", err)
		return res
	}
	if err := d.Ledger.WaitConfirmed(ctx, txHash); err != nil {
		res.Err = err
		return res
	}

	affected, err := d.Store.MarkFulfilled(ctx, order.ID, txHash, time.Now().UTC())
	if err != nil {
		// Tokens already moved; surface the hash instead of dropping it.
		res.TxHash = txHash
		res.Err = fmt.Errorf("transfer %s confirmed but status update failed: %w", txHash, err)
		return res
	}
	if affected == 0 {
		res.TxHash = txHash
		res.Err = fmt.Errorf("transfer %s confirmed but order was no longer awaiting distribution", txHash)
		return res
	}

	res.Success = true
	res.TxHash = txHash
	return res
}
