package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func revertLink(pairID, original, originalLine, result, resultLine int64, amount float64) VoucherLink {
	return VoucherLink{
		PairID:             pairID,
		EventType:          EventTypeRevert,
		Frequency:          FrequencyOnce,
		OriginalVoucherID:  original,
		OriginalLineItemID: ptr(originalLine),
		ResultVoucherID:    result,
		ResultLineItemID:   ptr(resultLine),
		Amount:             ptr(amount),
	}
}

func TestAccountClassifierMatchesHierarchy(t *testing.T) {
	c := NewAccountClassifier([]string{"1170", " "}, []string{"2170"})
	assert.True(t, c.IsReceivable(Account{Code: "1170"}))
	assert.True(t, c.IsReceivable(Account{Code: "1171", ParentCode: "1170"}))
	assert.True(t, c.IsReceivable(Account{Code: "1171-01", ParentCode: "1171", RootCode: "1170"}))
	assert.False(t, c.IsReceivable(Account{Code: "2170"}))
	assert.False(t, c.IsReceivable(Account{}))
	assert.True(t, c.IsPayable(Account{Code: "2170"}))
	assert.True(t, DefaultAccountClassifier().IsPayable(Account{Code: "2180"}))
}

func TestAggregateReceivableLifecycle(t *testing.T) {
	agg := NewAggregator(DefaultAccountClassifier())
	v := receivableVoucher()

	fresh, err := agg.Aggregate(v, nil)
	require.NoError(t, err)
	assert.Equal(t, SettlementInfo{Total: 1000, AlreadyHappened: 0, Remain: 1000}, fresh.ReceivingInfo)
	assert.Equal(t, ReverseStatusPending, fresh.ReceivingInfo.Status())
	assert.Equal(t, SettlementInfo{}, fresh.PayableInfo)
	assert.Equal(t, Sum{Debit: true, Amount: 1000}, fresh.Sum)

	links := []VoucherLink{revertLink(1, 1, 11, 2, 22, 400)}
	partial, err := agg.Aggregate(v, links)
	require.NoError(t, err)
	assert.Equal(t, SettlementInfo{Total: 1000, AlreadyHappened: 400, Remain: 600}, partial.ReceivingInfo)
	assert.Equal(t, ReverseStatusPending, partial.ReceivingInfo.Status())
	assert.Len(t, partial.OriginalEvents, 1)
	assert.Empty(t, partial.ResultEvents)

	links = append(links, revertLink(2, 1, 11, 3, 32, 600))
	settled, err := agg.Aggregate(v, links)
	require.NoError(t, err)
	assert.Equal(t, SettlementInfo{Total: 1000, AlreadyHappened: 1000, Remain: 0}, settled.ReceivingInfo)
	assert.Equal(t, ReverseStatusReversed, settled.ReceivingInfo.Status())
}

func TestAggregateCountsResultDirection(t *testing.T) {
	agg := NewAggregator(DefaultAccountClassifier())
	// Voucher 5 is the result of a settlement whose reversing line is its AR debit.
	v := Voucher{ID: 5, LineItems: []LineItem{
		{ID: 51, Debit: true, Amount: 300, Account: Account{Code: "1180"}},
		{ID: 52, Amount: 300, Account: Account{Code: "4000"}},
	}}
	out, err := agg.Aggregate(v, []VoucherLink{revertLink(1, 9, 91, 5, 51, 120)})
	require.NoError(t, err)
	assert.Equal(t, SettlementInfo{Total: 300, AlreadyHappened: 120, Remain: 180}, out.ReceivingInfo)
	assert.Empty(t, out.OriginalEvents)
	assert.Len(t, out.ResultEvents, 1)
}

func TestAggregatePayableSide(t *testing.T) {
	agg := NewAggregator(DefaultAccountClassifier())
	v := Voucher{ID: 8, LineItems: []LineItem{
		{ID: 81, Debit: true, Amount: 250, Account: Account{Code: "6000"}},
		{ID: 82, Amount: 250, Account: Account{Code: "2171", ParentCode: "2170"}},
	}}
	out, err := agg.Aggregate(v, []VoucherLink{
		revertLink(1, 8, 82, 9, 92, 100),
		{EventType: EventTypeRepeat, OriginalVoucherID: 8, ResultVoucherID: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, SettlementInfo{Total: 250, AlreadyHappened: 100, Remain: 150}, out.PayableInfo)
	assert.Equal(t, SettlementInfo{}, out.ReceivingInfo)
	assert.Equal(t, ReverseStatusReversed, out.ReceivingInfo.Status())
	assert.Len(t, out.OriginalEvents, 2)
}

func TestAggregateRejectsNegativeRemain(t *testing.T) {
	agg := NewAggregator(DefaultAccountClassifier())
	_, err := agg.Aggregate(receivableVoucher(), []VoucherLink{
		revertLink(1, 1, 11, 2, 22, 700),
		revertLink(2, 1, 11, 3, 32, 700),
	})
	require.ErrorIs(t, err, ErrNegativeRemain)
	assert.ErrorIs(t, err, shared.ErrInternal)
}

func TestAggregateAbsorbsRounding(t *testing.T) {
	agg := NewAggregator(DefaultAccountClassifier())
	v := Voucher{ID: 1, LineItems: []LineItem{
		{ID: 11, Debit: true, Amount: 0.3, Account: Account{Code: "1170"}},
		{ID: 12, Amount: 0.3, Account: Account{Code: "4000"}},
	}}
	out, err := agg.Aggregate(v, []VoucherLink{revertLink(1, 1, 11, 2, 21, 0.1), revertLink(2, 1, 11, 3, 31, 0.2)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.ReceivingInfo.Remain)
	assert.Equal(t, ReverseStatusReversed, out.ReceivingInfo.Status())
}

func TestAggregateAllSplitsLinksPerVoucher(t *testing.T) {
	agg := NewAggregator(DefaultAccountClassifier())
	first := receivableVoucher()
	second := Voucher{ID: 2, LineItems: []LineItem{
		{ID: 21, Debit: true, Amount: 400, Account: Account{Code: "1110"}},
		{ID: 22, Amount: 400, Account: Account{Code: "1170"}},
	}}
	out, err := agg.AggregateAll([]Voucher{first, second}, []VoucherLink{revertLink(1, 1, 11, 2, 22, 400)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 600.0, out[0].ReceivingInfo.Remain)
	assert.Len(t, out[0].OriginalEvents, 1)
	assert.Equal(t, SettlementInfo{}, out[1].ReceivingInfo)
	assert.Len(t, out[1].ResultEvents, 1)
}
