package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Aggregator computes payable and receivable roll-ups of vouchers.
type Aggregator struct {
	classifier AccountClassifier
}

// NewAggregator builds an Aggregator using classifier to spot AP/AR lines.
func NewAggregator(classifier AccountClassifier) Aggregator {
	return Aggregator{classifier: classifier}
}

// Aggregate builds the read model of v. links must hold every link in which
// v is the original or the result voucher; others are ignored.
func (a Aggregator) Aggregate(v Voucher, links []VoucherLink) (VoucherAggregate, error) {
	out := VoucherAggregate{
		Voucher:        v,
		Sum:            SumOf(v.LineItems),
		OriginalEvents: []VoucherLink{},
		ResultEvents:   []VoucherLink{},
	}
	var touching []VoucherLink
	for _, link := range links {
		switch {
		case link.OriginalVoucherID == v.ID:
			out.OriginalEvents = append(out.OriginalEvents, link)
		case link.ResultVoucherID == v.ID:
			out.ResultEvents = append(out.ResultEvents, link)
		default:
			continue
		}
		touching = append(touching, link)
	}

	var err error
	out.ReceivingInfo, err = a.settlement(v, touching, func(li LineItem) bool {
		return li.Debit && a.classifier.IsReceivable(li.Account)
	})
	if err != nil {
		return VoucherAggregate{}, err
	}
	out.PayableInfo, err = a.settlement(v, touching, func(li LineItem) bool {
		return !li.Debit && a.classifier.IsPayable(li.Account)
	})
	if err != nil {
		return VoucherAggregate{}, err
	}
	return out, nil
}

// AggregateAll aggregates each voucher against the shared link set.
func (a Aggregator) AggregateAll(vouchers []Voucher, links []VoucherLink) ([]VoucherAggregate, error) {
	byVoucher := make(map[int64][]VoucherLink)
	for _, link := range links {
		byVoucher[link.OriginalVoucherID] = append(byVoucher[link.OriginalVoucherID], link)
		if link.ResultVoucherID != link.OriginalVoucherID {
			byVoucher[link.ResultVoucherID] = append(byVoucher[link.ResultVoucherID], link)
		}
	}
	out := make([]VoucherAggregate, 0, len(vouchers))
	for _, v := range vouchers {
		agg, err := a.Aggregate(v, byVoucher[v.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func (a Aggregator) settlement(v Voucher, links []VoucherLink, qualifies func(LineItem) bool) (SettlementInfo, error) {
	lines := make(map[int64]struct{})
	total := decimal.Zero
	for _, li := range v.LineItems {
		if !qualifies(li) {
			continue
		}
		lines[li.ID] = struct{}{}
		total = total.Add(decimal.NewFromFloat(li.Amount))
	}
	happened := decimal.Zero
	if len(lines) > 0 {
		for _, link := range links {
			if link.EventType != EventTypeRevert || link.Amount == nil {
				continue
			}
			if touchesLine(link, lines) {
				happened = happened.Add(decimal.NewFromFloat(*link.Amount))
			}
		}
	}
	remain := total.Sub(happened)
	if remain.Neg().GreaterThan(toleranceDecimal) {
		return SettlementInfo{}, fmt.Errorf("%w: voucher %d total %s, settled %s", ErrNegativeRemain, v.ID, total.String(), happened.String())
	}
	if remain.Abs().LessThanOrEqual(toleranceDecimal) {
		remain = decimal.Zero
	}
	return SettlementInfo{
		Total:           total.InexactFloat64(),
		AlreadyHappened: happened.InexactFloat64(),
		Remain:          remain.InexactFloat64(),
	}, nil
}

func touchesLine(link VoucherLink, lines map[int64]struct{}) bool {
	if link.OriginalLineItemID != nil {
		if _, ok := lines[*link.OriginalLineItemID]; ok {
			return true
		}
	}
	if link.ResultLineItemID != nil {
		if _, ok := lines[*link.ResultLineItemID]; ok {
			return true
		}
	}
	return false
}
