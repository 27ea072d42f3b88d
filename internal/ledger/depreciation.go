package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/calendar"
)

// DepreciationBuilder turns an asset's depreciation serial into expense vouchers.
type DepreciationBuilder struct {
	loc    *time.Location
	newRef func() string
}

// NewDepreciationBuilder builds period-end dates in loc.
func NewDepreciationBuilder(loc *time.Location) DepreciationBuilder {
	if loc == nil {
		loc = time.UTC
	}
	return DepreciationBuilder{loc: loc, newRef: uuid.NewString}
}

// Build returns one voucher per serial period, dated on the period's last
// day, and the ASSET event pairing each with the acquisition voucher.
func (b DepreciationBuilder) Build(acquisition Voucher, asset Asset) (Event, []Voucher, error) {
	if asset.ExpenseAccountID == 0 || asset.AccumulatedAccountID == 0 {
		return Event{}, nil, fmt.Errorf("%w: asset %d missing depreciation accounts", ErrInvalidDepreciation, asset.ID)
	}
	if len(asset.Serial) == 0 {
		return Event{}, nil, fmt.Errorf("%w: asset %d has no periods", ErrInvalidDepreciation, asset.ID)
	}
	acquiredAt := asset.AcquisitionDate
	if acquiredAt == 0 {
		acquiredAt = acquisition.Date
	}
	event := Event{
		CompanyID: acquisition.CompanyID,
		Type:      EventTypeAsset,
		Frequency: FrequencyOnce,
		StartDate: acquiredAt,
		EndDate:   acquiredAt,
	}
	vouchers := make([]Voucher, 0, len(asset.Serial))
	for idx, period := range asset.Serial {
		if period.Month < 1 || period.Month > 12 || period.Year <= 0 {
			return Event{}, nil, fmt.Errorf("%w: asset %d period %d is %04d-%02d", ErrInvalidDepreciation, asset.ID, idx, period.Year, period.Month)
		}
		if !(period.Amount > 0) {
			return Event{}, nil, fmt.Errorf("%w: asset %d period %d amount %v", ErrInvalidDepreciation, asset.ID, idx, period.Amount)
		}
		day := calendar.LastDayOfMonth(period.Year, time.Month(period.Month), b.loc)
		memo := fmt.Sprintf("Depreciation %s %04d-%02d", asset.Name, period.Year, period.Month)
		v := Voucher{
			Ref:       b.newRef(),
			CompanyID: acquisition.CompanyID,
			IssuerID:  acquisition.IssuerID,
			Type:      VoucherTypeTransfer,
			Status:    VoucherStatusUpcoming,
			Editable:  false,
			Number:    acquisition.Number,
			Date:      calendar.ToEpoch(day),
			LineItems: []LineItem{
				{Ref: b.newRef(), AccountID: asset.ExpenseAccountID, Debit: true, Amount: period.Amount, Description: memo},
				{Ref: b.newRef(), AccountID: asset.AccumulatedAccountID, Debit: false, Amount: period.Amount, Description: memo},
			},
		}
		vouchers = append(vouchers, v)
		event.Pairs = append(event.Pairs, AssociateVoucherPair{OriginalVoucher: acquisition, ResultVoucher: v})
	}
	return event, vouchers, nil
}
