package ledger

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// balanceTolerance absorbs float rounding when comparing ledger amounts.
const balanceTolerance = 1e-8

var toleranceDecimal = decimal.NewFromFloat(balanceTolerance)

// Totals returns the debit and credit sums of lines.
func Totals(lines []LineItem) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		amount := decimal.NewFromFloat(line.Amount)
		if line.Debit {
			debit = debit.Add(amount)
		} else {
			credit = credit.Add(amount)
		}
	}
	return debit, credit
}

// IsBalanced reports whether debit and credit totals agree within tolerance.
func IsBalanced(lines []LineItem) bool {
	debit, credit := Totals(lines)
	return debit.Sub(credit).Abs().LessThanOrEqual(toleranceDecimal)
}

// ValidateBalance returns ErrUnbalanced with both totals when lines do not balance.
func ValidateBalance(lines []LineItem) error {
	debit, credit := Totals(lines)
	if debit.Sub(credit).Abs().GreaterThan(toleranceDecimal) {
		return fmt.Errorf("%w: debit %s != credit %s", ErrUnbalanced, debit.String(), credit.String())
	}
	return nil
}

// ValidateLineItems checks the per-line preconditions of a commit and then
// the balance invariant.
func ValidateLineItems(lines []LineItem) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	for idx, line := range lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", ErrInvalidInput, idx)
		}
		if !isFiniteAmount(line.Amount) || !(line.Amount > 0) {
			return fmt.Errorf("%w: line %d amount %v", ErrNonPositiveAmount, idx, line.Amount)
		}
	}
	return ValidateBalance(lines)
}

// isFiniteAmount rejects NaN and ±Inf, which decimal cannot represent.
func isFiniteAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SumOf computes the Sum view of a voucher: the larger side, which for a
// balanced voucher is the debit total.
func SumOf(lines []LineItem) Sum {
	debit, credit := Totals(lines)
	if debit.GreaterThanOrEqual(credit) {
		return Sum{Debit: true, Amount: debit.InexactFloat64()}
	}
	return Sum{Debit: false, Amount: credit.InexactFloat64()}
}
