package http

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"PresaleSettlement/internal/distributor"
	"PresaleSettlement/internal/events"
	"PresaleSettlement/internal/models"
	"PresaleSettlement/internal/pricing"
	"PresaleSettlement/internal/services"
)

// OrderQueries is the read/admin slice of the order store the handlers use.
type OrderQueries interface {
	ListByWallet(ctx context.Context, wallet string) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	ListLiquidityPending(ctx context.Context) ([]*models.Order, error)
	MarkLiquidityAdded(ctx context.Context, ids []string) (int64, error)
}

type Handler struct {
	Orders  *services.OrderService
	Queries OrderQueries
	Pricing pricing.Service
	Events  *events.Bus
	// Distributor is nil when the custodial wallet is not configured; the
	// distribution endpoint then reports a setup failure.
	Distributor *distributor.Distributor
}

type recordPurchaseRequest struct {
	WalletAddress   string      `json:"walletAddress"`
	TokenAmount     json.Number `json:"tokenAmount"`
	PaymentAmount   json.Number `json:"paymentAmount"`
	TransactionHash string      `json:"transactionHash"`
	OrderType       string      `json:"orderType"`
}

type orderResponse struct {
	ID              string `json:"id"`
	WalletAddress   string `json:"walletAddress"`
	OrderType       string `json:"orderType"`
	TokenAmount     string `json:"tokenAmount"`
	PaymentAmount   string `json:"paymentAmount"`
	PaymentCurrency string `json:"paymentCurrency"`
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	LiquidityAdded  bool   `json:"liquidityAdded"`
	CreatedAt       string `json:"createdAt"`
	FulfilledAt     string `json:"fulfilledAt,omitempty"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		WalletAddress:   order.WalletAddress,
		OrderType:       string(order.OrderType),
		TokenAmount:     order.TokenAmount,
		PaymentAmount:   order.PaymentAmount,
		PaymentCurrency: order.PaymentCurrency,
		TransactionHash: order.TransactionHash,
		Status:          string(order.Status),
		LiquidityAdded:  order.LiquidityAdded,
		CreatedAt:       order.CreatedAt.Format(time.RFC3339),
	}
	if order.FulfilledAt != nil {
		resp.FulfilledAt = order.FulfilledAt.Format(time.RFC3339)
	}
	return resp
}

func toOrderResponses(orders []*models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	return out
}

func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req recordPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Orders.RecordPurchase(r.Context(), services.RecordPurchaseParams{
		WalletAddress:   req.WalletAddress,
		TokenAmount:     req.TokenAmount.String(),
		PaymentAmount:   req.PaymentAmount.String(),
		TransactionHash: req.TransactionHash,
		OrderType:       models.OrderType(req.OrderType),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateTransaction):
			writeError(w, http.StatusConflict, "transaction already processed")
		case errors.Is(err, services.ErrMissingWalletAddress),
			errors.Is(err, services.ErrMissingTransactionHash),
			errors.Is(err, services.ErrInvalidTokenAmount),
			errors.Is(err, services.ErrInvalidPaymentAmount),
			errors.Is(err, services.ErrInvalidOrderType):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create order")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   toOrderResponse(order),
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "missing wallet")
		return
	}

	orders, err := h.Queries.ListByWallet(r.Context(), wallet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list orders failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": toOrderResponses(orders)})
}

func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Pricing.Quote(r.URL.Query().Get("tokenAmount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type distributionResult struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) RunDistribution(w http.ResponseWriter, r *http.Request) {
	if h.Distributor == nil {
		writeError(w, http.StatusInternalServerError, "distribution wallet not configured")
		return
	}

	report, err := h.Distributor.RunBatch(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]distributionResult, 0, len(report.Results))
	for _, res := range report.Results {
		out := distributionResult{
			OrderID: res.OrderID,
			Success: res.Success,
			TxHash:  res.TxHash,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		results = append(results, out)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": report.Processed,
		"total":     report.Total,
		"results":   results,
	})
}

func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Queries.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list orders failed")
		return
	}

	counts := map[string]int{}
	for _, order := range orders {
		counts[string(order.Status)]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": toOrderResponses(orders),
		"counts": counts,
	})
}

func (h *Handler) ListLiquidityPending(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Queries.ListLiquidityPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list liquidity pending failed")
		return
	}

	total := new(big.Rat)
	for _, order := range orders {
		if amt, ok := new(big.Rat).SetString(order.PaymentAmount); ok {
			total.Add(total, amt)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders":        toOrderResponses(orders),
		"totalProceeds": total.FloatString(6),
	})
}

type markLiquidityRequest struct {
	OrderIDs []string `json:"orderIds"`
}

func (h *Handler) MarkLiquidityAdded(w http.ResponseWriter, r *http.Request) {
	var req markLiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "missing order ids")
		return
	}

	updated, err := h.Queries.MarkLiquidityAdded(r.Context(), req.OrderIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "mark liquidity failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}
