package distributor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"PresaleSettlement/internal/ledger"
	"PresaleSettlement/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	orders      map[string]*models.Order
	markErrFor  map[string]error
	markedCalls int
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	st := &fakeStore{
		orders:     make(map[string]*models.Order),
		markErrFor: make(map[string]error),
	}
	for _, o := range orders {
		st.orders[o.ID] = o
	}
	return st
}

func (f *fakeStore) ListAwaitingDistribution(_ context.Context, orderType models.OrderType, limit int) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if o.OrderType == orderType && o.Status == models.OrderAwaitingDistribution {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MarkFulfilled(_ context.Context, id string, txHash string, fulfilledAt time.Time) (int64, error) {
	f.markedCalls++
	if err := f.markErrFor[id]; err != nil {
		return 0, err
	}
	o, ok := f.orders[id]
	if !ok || o.Status != models.OrderAwaitingDistribution {
		return 0, nil
	}
	o.Status = models.OrderFulfilled
	o.TransactionHash = txHash
	o.FulfilledAt = &fulfilledAt
	return 1, nil
}

type fakeLedger struct {
	holder      string
	decimals    uint8
	balance     *big.Int
	transferErr map[string]error
	confirmErr  map[string]error
	transfers   map[string]int
	onConfirm   func(txHash string)
	seq         int
}

func newFakeLedger(balanceTokens string, decimals uint8) *fakeLedger {
	bal, err := ledger.ToBaseUnits(balanceTokens, decimals)
	if err != nil {
		panic(err)
	}
	return &fakeLedger{
		holder:      "0x00000000000000000000000000000000000000aa",
		decimals:    decimals,
		balance:     bal,
		transferErr: make(map[string]error),
		confirmErr:  make(map[string]error),
		transfers:   make(map[string]int),
	}
}

func (f *fakeLedger) HolderAddress() string { return f.holder }

func (f *fakeLedger) Decimals(context.Context) (uint8, error) { return f.decimals, nil }

func (f *fakeLedger) BalanceOf(_ context.Context, address string) (*big.Int, error) {
	if address != f.holder {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeLedger) Transfer(_ context.Context, to string, amount *big.Int) (string, error) {
	if err := f.transferErr[to]; err != nil {
		return "", err
	}
	f.balance.Sub(f.balance, amount)
	f.transfers[to]++
	f.seq++
	return fmt.Sprintf("0xdist%04d", f.seq), nil
}

func (f *fakeLedger) WaitConfirmed(_ context.Context, txHash string) error {
	if f.onConfirm != nil {
		f.onConfirm(txHash)
	}
	return f.confirmErr[txHash]
}

func buyOrder(id, wallet, tokens string, createdAt time.Time) *models.Order {
	return &models.Order{
		ID:              id,
		WalletAddress:   wallet,
		OrderType:       models.OrderBuy,
		TokenAmount:     tokens,
		PaymentAmount:   "0.01",
		PaymentCurrency: "POL",
		TransactionHash: "0xpay" + id,
		Status:          models.OrderAwaitingDistribution,
		CreatedAt:       createdAt,
	}
}

func TestRunBatchFulfillsOrder(t *testing.T) {
	now := time.Now().UTC()
	order := buyOrder("o1", "0x0000000000000000000000000000000000000001", "1000", now)
	st := newFakeStore(order)
	led := newFakeLedger("5000", 18)
	d := &Distributor{Store: st, Ledger: led}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Total)
	require.True(t, report.Results[0].Success)
	require.NotEmpty(t, report.Results[0].TxHash)

	require.Equal(t, models.OrderFulfilled, order.Status)
	require.NotNil(t, order.FulfilledAt)
	require.Equal(t, report.Results[0].TxHash, order.TransactionHash)

	// 5000 - 1000 tokens left in the custodial wallet.
	want, _ := ledger.ToBaseUnits("4000", 18)
	require.Zero(t, led.balance.Cmp(want))
}

func TestRunBatchInsufficientBalance(t *testing.T) {
	order := buyOrder("o1", "0x0000000000000000000000000000000000000001", "1000", time.Now().UTC())
	st := newFakeStore(order)
	led := newFakeLedger("999.5", 18)
	d := &Distributor{Store: st, Ledger: led}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)
	require.Equal(t, 1, report.Total)
	require.ErrorIs(t, report.Results[0].Err, ErrInsufficientBalance)

	// The order stays awaiting distribution for the next run.
	require.Equal(t, models.OrderAwaitingDistribution, order.Status)
	require.Nil(t, order.FulfilledAt)
	require.Zero(t, st.markedCalls)
}

func TestRunBatchPartialFailureAndRetry(t *testing.T) {
	base := time.Now().UTC()
	o1 := buyOrder("o1", "0x0000000000000000000000000000000000000001", "100", base)
	o2 := buyOrder("o2", "0x0000000000000000000000000000000000000002", "100", base.Add(time.Second))
	o3 := buyOrder("o3", "0x0000000000000000000000000000000000000003", "100", base.Add(2*time.Second))
	st := newFakeStore(o1, o2, o3)
	led := newFakeLedger("1000", 18)
	led.transferErr[o2.WalletAddress] = errors.New("rpc: transaction rejected")
	d := &Distributor{Store: st, Ledger: led}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 3, report.Total)

	// FIFO ordering by created_at.
	require.Equal(t, []string{"o1", "o2", "o3"},
		[]string{report.Results[0].OrderID, report.Results[1].OrderID, report.Results[2].OrderID})
	require.True(t, report.Results[0].Success)
	require.False(t, report.Results[1].Success)
	require.True(t, report.Results[2].Success)

	require.Equal(t, models.OrderFulfilled, o1.Status)
	require.Equal(t, models.OrderAwaitingDistribution, o2.Status)
	require.Equal(t, models.OrderFulfilled, o3.Status)

	// A re-run retries only the failed order.
	led.transferErr = map[string]error{}
	report, err = d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Total)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, "o2", report.Results[0].OrderID)
	require.Equal(t, models.OrderFulfilled, o2.Status)
}

func TestRunBatchEmpty(t *testing.T) {
	d := &Distributor{Store: newFakeStore(), Ledger: newFakeLedger("1000", 18)}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)
	require.Equal(t, 0, report.Total)
	require.Empty(t, report.Results)
}

func TestRunBatchConfirmationFailure(t *testing.T) {
	order := buyOrder("o1", "0x0000000000000000000000000000000000000001", "100", time.Now().UTC())
	st := newFakeStore(order)
	led := newFakeLedger("1000", 18)
	led.confirmErr["0xdist0001"] = errors.New("confirmation attempts exhausted")
	d := &Distributor{Store: st, Ledger: led}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)
	require.False(t, report.Results[0].Success)
	require.Equal(t, models.OrderAwaitingDistribution, order.Status)
}

func TestRunBatchPersistenceFailureSurfacesHash(t *testing.T) {
	order := buyOrder("o1", "0x0000000000000000000000000000000000000001", "100", time.Now().UTC())
	st := newFakeStore(order)
	st.markErrFor["o1"] = errors.New("store unavailable")
	led := newFakeLedger("1000", 18)
	d := &Distributor{Store: st, Ledger: led}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)

	res := report.Results[0]
	require.False(t, res.Success)
	// Tokens moved on chain; the hash must reach the operator.
	require.Equal(t, "0xdist0001", res.TxHash)
	require.ErrorContains(t, res.Err, "status update failed")
}

func TestRunBatchHonorsBatchSize(t *testing.T) {
	base := time.Now().UTC()
	var orders []*models.Order
	for i := 0; i < 4; i++ {
		orders = append(orders, buyOrder(
			fmt.Sprintf("o%d", i+1),
			fmt.Sprintf("0x000000000000000000000000000000000000000%d", i+1),
			"10",
			base.Add(time.Duration(i)*time.Second),
		))
	}
	st := newFakeStore(orders...)
	d := &Distributor{Store: st, Ledger: newFakeLedger("1000", 18), BatchSize: 2}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Total)
	require.Equal(t, []string{"o1", "o2"},
		[]string{report.Results[0].OrderID, report.Results[1].OrderID})
}

func TestRunBatchCancelledMidBatch(t *testing.T) {
	base := time.Now().UTC()
	o1 := buyOrder("o1", "0x0000000000000000000000000000000000000001", "100", base)
	o2 := buyOrder("o2", "0x0000000000000000000000000000000000000002", "100", base.Add(time.Second))
	o3 := buyOrder("o3", "0x0000000000000000000000000000000000000003", "100", base.Add(2*time.Second))
	st := newFakeStore(o1, o2, o3)
	led := newFakeLedger("1000", 18)
	d := &Distributor{Store: st, Ledger: led}

	// Cancel while the first order is confirming: the batch must stop
	// before touching the next order.
	ctx, cancel := context.WithCancel(context.Background())
	led.onConfirm = func(string) { cancel() }

	report, err := d.RunBatch(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The settled order stays settled, the rest stay queued.
	require.Equal(t, models.OrderFulfilled, o1.Status)
	require.Equal(t, models.OrderAwaitingDistribution, o2.Status)
	require.Equal(t, models.OrderAwaitingDistribution, o3.Status)
	require.Equal(t, 1, st.markedCalls)

	// The report covers only what actually ran.
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Total)
	require.Len(t, report.Results, 1)
	require.Equal(t, "o1", report.Results[0].OrderID)

	// The next run picks up exactly where the interrupted one stopped.
	report, err = d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, models.OrderFulfilled, o2.Status)
	require.Equal(t, models.OrderFulfilled, o3.Status)
}

func TestRunBatchSerializesConcurrentCalls(t *testing.T) {
	base := time.Now().UTC()
	var orders []*models.Order
	for i := 0; i < 3; i++ {
		orders = append(orders, buyOrder(
			fmt.Sprintf("o%d", i+1),
			fmt.Sprintf("0x000000000000000000000000000000000000000%d", i+1),
			"100",
			base.Add(time.Duration(i)*time.Second),
		))
	}
	st := newFakeStore(orders...)
	led := newFakeLedger("1000", 18)
	d := &Distributor{Store: st, Ledger: led}

	// The worker ticker and the admin endpoint can fire at the same time;
	// one of the runs must see the queue already drained.
	var wg sync.WaitGroup
	reports := make([]BatchReport, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = d.RunBatch(context.Background())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 3, reports[0].Processed+reports[1].Processed)
	require.Equal(t, 3, st.markedCalls)
	for _, o := range orders {
		require.Equal(t, models.OrderFulfilled, o.Status)
		require.Equal(t, 1, led.transfers[o.WalletAddress], "wallet %s paid once", o.WalletAddress)
	}

	// 1000 - 3*100 tokens left; a doubled batch would have drained 600.
	want, _ := ledger.ToBaseUnits("700", 18)
	require.Zero(t, led.balance.Cmp(want))
}

func TestRunBatchScenario(t *testing.T) {
	// Record a buy of 1000 tokens for 0.01 POL, then distribute with a
	// custodial balance of 5000.
	created := time.Now().UTC()
	order := &models.Order{
		ID:              "scenario",
		WalletAddress:   "0x0000000000000000000000000000000000000009",
		OrderType:       models.OrderBuy,
		TokenAmount:     "1000",
		PaymentAmount:   "0.01",
		PaymentCurrency: "POL",
		TransactionHash: "0xabc",
		Status:          models.OrderAwaitingDistribution,
		CreatedAt:       created,
	}
	st := newFakeStore(order)
	led := newFakeLedger("5000", 6)
	d := &Distributor{Store: st, Ledger: led}

	report, err := d.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)

	require.Equal(t, models.OrderFulfilled, order.Status)
	require.NotNil(t, order.FulfilledAt)
	require.NotEqual(t, "0xabc", order.TransactionHash, "distribution hash replaces the payment hash")

	remaining, err := led.BalanceOf(context.Background(), led.HolderAddress())
	require.NoError(t, err)
	want, _ := ledger.ToBaseUnits("4000", 6)
	require.Zero(t, remaining.Cmp(want))
}
