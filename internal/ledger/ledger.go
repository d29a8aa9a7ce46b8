package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Client is the token-ledger capability the distributor settles against:
// balance and precision reads plus custodial transfer submission.
type Client interface {
	// HolderAddress is the custodial wallet the transfers are funded from.
	HolderAddress() string
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, address string) (*big.Int, error)
	// Transfer submits a token transfer and returns its transaction hash.
	Transfer(ctx context.Context, to string, amount *big.Int) (string, error)
	// WaitConfirmed blocks until the transaction is mined or the retry
	// policy is exhausted.
	WaitConfirmed(ctx context.Context, txHash string) error
}

// RetryPolicy bounds confirmation polling so a stuck transaction leaves the
// order unsettled instead of hanging the batch.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 20
	}
	if p.Interval <= 0 {
		p.Interval = 3 * time.Second
	}
	return p
}

// parseDecimal splits a plain decimal amount ("1000", "1.5", ".5") into its
// whole and fractional digits. This is the one amount grammar in the system:
// what recording accepts, settlement can scale.
func parseDecimal(amount string) (whole, frac string, ok bool) {
	amount = strings.TrimSpace(amount)
	whole, frac, dot := strings.Cut(amount, ".")
	if !isDigits(whole) || (dot && !isDigits(frac)) {
		return "", "", false
	}
	if whole == "" && frac == "" {
		return "", "", false
	}
	return whole, frac, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsPositiveAmount reports whether amount is a strictly positive plain
// decimal. Exponent and rational notations are rejected even though
// big-number parsers take them, so nothing gets recorded that ToBaseUnits
// later refuses to scale.
func IsPositiveAmount(amount string) bool {
	whole, frac, ok := parseDecimal(amount)
	return ok && strings.Trim(whole+frac, "0") != ""
}

// ToBaseUnits scales a decimal token amount to the ledger's base units,
// e.g. ToBaseUnits("1.5", 18) = 1500000000000000000.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	whole, frac, ok := parseDecimal(amount)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", amount)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q exceeds token precision of %d decimals", amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))

	units, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", amount)
	}
	if units.Sign() <= 0 {
		return nil, errors.New("token amount must be positive")
	}
	return units, nil
}

// FromBaseUnits renders base units as a decimal string, for logs and reports.
func FromBaseUnits(units *big.Int, decimals uint8) string {
	s := units.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}
	cut := len(s) - int(decimals)
	out := s[:cut]
	if frac := strings.TrimRight(s[cut:], "0"); frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
