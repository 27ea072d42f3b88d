package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ReverseInstruction asks the new voucher's line LineItemIDReverseOther (a
// client correlation id) to settle Amount of line LineItemIDBeReversed on VoucherID.
type ReverseInstruction struct {
	VoucherID              int64   `json:"voucherId"`
	LineItemIDBeReversed   int64   `json:"lineItemIdBeReversed"`
	LineItemIDReverseOther string  `json:"lineItemIdReverseOther"`
	Amount                 float64 `json:"amount"`
}

// LinkReversals builds the REVERT event for reversing voucher against the
// already loaded targets. Each instruction becomes one pair: the target
// carrying only the reversed line, and reversing carrying only the line
// referenced by the correlation id.
func LinkReversals(reversing Voucher, targets map[int64]Voucher, instructions []ReverseInstruction) (Event, error) {
	event := Event{
		CompanyID: reversing.CompanyID,
		Type:      EventTypeRevert,
		Frequency: FrequencyOnce,
		StartDate: reversing.Date,
		EndDate:   reversing.Date,
	}
	for _, in := range instructions {
		target, ok := targets[in.VoucherID]
		if !ok {
			return Event{}, notFound(EntityVoucher, in.VoucherID)
		}
		original, ok := target.LineItemByID(in.LineItemIDBeReversed)
		if !ok {
			return Event{}, notFound(EntityLineItem, in.LineItemIDBeReversed)
		}
		other, ok := reversing.LineItemByCorrelation(in.LineItemIDReverseOther)
		if !ok {
			return Event{}, fmt.Errorf("%w: %q", ErrUnknownCorrelation, in.LineItemIDReverseOther)
		}
		amount := in.Amount
		event.Pairs = append(event.Pairs, AssociateVoucherPair{
			OriginalVoucher: target.WithLineItems(original),
			ResultVoucher:   reversing.WithLineItems(other),
			Amount:          &amount,
		})
	}
	return event, nil
}

// CheckReversalCapacity verifies that no instruction settles more than the
// open amount of its original line, counting links already persisted and
// earlier instructions of the same request, and that no reversing line is
// used beyond its own amount.
func CheckReversalCapacity(reversing Voucher, targets map[int64]Voucher, existing []VoucherLink, instructions []ReverseInstruction) error {
	settled := settledByLine(existing)
	usedByLine := make(map[string]decimal.Decimal)
	for _, in := range instructions {
		if !isFiniteAmount(in.Amount) || !(in.Amount > 0) {
			return fmt.Errorf("%w: reversal of line %d amount %v", ErrNonPositiveAmount, in.LineItemIDBeReversed, in.Amount)
		}
		amount := decimal.NewFromFloat(in.Amount)
		target, ok := targets[in.VoucherID]
		if !ok {
			return notFound(EntityVoucher, in.VoucherID)
		}
		original, ok := target.LineItemByID(in.LineItemIDBeReversed)
		if !ok {
			return notFound(EntityLineItem, in.LineItemIDBeReversed)
		}
		other, ok := reversing.LineItemByCorrelation(in.LineItemIDReverseOther)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCorrelation, in.LineItemIDReverseOther)
		}

		open := decimal.NewFromFloat(original.Amount).Sub(settled[original.ID])
		if amount.Sub(open).GreaterThan(toleranceDecimal) {
			return fmt.Errorf("%w: line %d open %s, requested %s", ErrOverReversal, original.ID, open.String(), amount.String())
		}
		settled[original.ID] = settled[original.ID].Add(amount)

		used := usedByLine[other.Correlation].Add(amount)
		if used.Sub(decimal.NewFromFloat(other.Amount)).GreaterThan(toleranceDecimal) {
			return fmt.Errorf("%w: reversing line %q amount %v, requested %s", ErrOverReversal, other.Correlation, other.Amount, used.String())
		}
		usedByLine[other.Correlation] = used
	}
	return nil
}

// settledByLine sums REVERT link amounts per line item id, counting a link
// for both its original and its result line.
func settledByLine(links []VoucherLink) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, link := range links {
		if link.EventType != EventTypeRevert || link.Amount == nil {
			continue
		}
		amount := decimal.NewFromFloat(*link.Amount)
		if link.OriginalLineItemID != nil {
			out[*link.OriginalLineItemID] = out[*link.OriginalLineItemID].Add(amount)
		}
		if link.ResultLineItemID != nil && (link.OriginalLineItemID == nil || *link.ResultLineItemID != *link.OriginalLineItemID) {
			out[*link.ResultLineItemID] = out[*link.ResultLineItemID].Add(amount)
		}
	}
	return out
}
