package pricing

import (
	"errors"
	"math/big"
	"strings"
)

// Service quotes the fixed presale price. TokenPrice is the native-currency
// price of one token, CurrencyUSD the USD reference price of the native
// currency, both decimal strings.
type Service struct {
	TokenPrice  string
	CurrencyUSD string
}

type Quote struct {
	TokenAmount   string `json:"tokenAmount"`
	PaymentAmount string `json:"paymentAmount"`
	PaymentUSD    string `json:"paymentUsd,omitempty"`
}

func (s Service) Quote(tokenAmount string) (Quote, error) {
	amount, ok := new(big.Rat).SetString(strings.TrimSpace(tokenAmount))
	if !ok || amount.Sign() <= 0 {
		return Quote{}, errors.New("token amount must be positive")
	}
	price, ok := new(big.Rat).SetString(s.TokenPrice)
	if !ok || price.Sign() <= 0 {
		return Quote{}, errors.New("token price is not configured")
	}

	payment := new(big.Rat).Mul(amount, price)
	q := Quote{
		TokenAmount:   formatRat(amount),
		PaymentAmount: formatRat(payment),
	}

	if usd, ok := new(big.Rat).SetString(s.CurrencyUSD); ok && usd.Sign() > 0 {
		q.PaymentUSD = formatRat(new(big.Rat).Mul(payment, usd))
	}
	return q, nil
}

// formatRat renders with enough places for presale-scale prices, trimming
// trailing zeros.
func formatRat(r *big.Rat) string {
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
