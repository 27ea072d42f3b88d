package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func ptr[T any](v T) *T { return &v }

func receivableVoucher() Voucher {
	return Voucher{
		ID:        1,
		CompanyID: 1,
		Type:      VoucherTypeReceiving,
		Date:      1704067200,
		LineItems: []LineItem{
			{ID: 11, VoucherID: 1, AccountID: 1170, Debit: true, Amount: 1000, Account: Account{Code: "1170"}},
			{ID: 12, VoucherID: 1, AccountID: 4000, Amount: 1000, Account: Account{Code: "4000"}},
		},
	}
}

func settlingVoucher(amount float64) Voucher {
	return Voucher{
		Ref:       "new",
		CompanyID: 1,
		Type:      VoucherTypeReceiving,
		Date:      1704153600,
		LineItems: []LineItem{
			{Correlation: "cash", AccountID: 1110, Debit: true, Amount: amount},
			{Correlation: "settle", AccountID: 1170, Amount: amount},
		},
	}
}

func TestLinkReversalsBuildsSingleLinePairs(t *testing.T) {
	target := receivableVoucher()
	reversing := settlingVoucher(400)
	event, err := LinkReversals(reversing, map[int64]Voucher{1: target}, []ReverseInstruction{
		{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 400},
	})
	require.NoError(t, err)

	assert.Equal(t, EventTypeRevert, event.Type)
	assert.Equal(t, FrequencyOnce, event.Frequency)
	assert.Equal(t, reversing.Date, event.StartDate)
	assert.Equal(t, reversing.Date, event.EndDate)
	require.Len(t, event.Pairs, 1)
	pair := event.Pairs[0]
	require.Len(t, pair.OriginalVoucher.LineItems, 1)
	assert.Equal(t, int64(11), pair.OriginalVoucher.LineItems[0].ID)
	assert.Equal(t, int64(1), pair.OriginalVoucher.ID)
	require.Len(t, pair.ResultVoucher.LineItems, 1)
	assert.Equal(t, "settle", pair.ResultVoucher.LineItems[0].Correlation)
	require.NotNil(t, pair.Amount)
	assert.Equal(t, 400.0, *pair.Amount)

	assert.Len(t, target.LineItems, 2, "target must not be mutated")
	assert.Len(t, reversing.LineItems, 2, "reversing voucher must not be mutated")
}

func TestLinkReversalsResolvesEachInstruction(t *testing.T) {
	target := receivableVoucher()
	other := Voucher{ID: 2, LineItems: []LineItem{{ID: 21, Debit: true, Amount: 50}, {ID: 22, Amount: 50}}}
	reversing := settlingVoucher(400)
	reversing.LineItems = append(reversing.LineItems, LineItem{Correlation: "extra", Amount: 50})

	event, err := LinkReversals(reversing, map[int64]Voucher{1: target, 2: other}, []ReverseInstruction{
		{VoucherID: 2, LineItemIDBeReversed: 21, LineItemIDReverseOther: "extra", Amount: 50},
		{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 400},
	})
	require.NoError(t, err)
	require.Len(t, event.Pairs, 2)
	assert.Equal(t, int64(2), event.Pairs[0].OriginalVoucher.ID)
	assert.Equal(t, int64(1), event.Pairs[1].OriginalVoucher.ID)
}

func TestLinkReversalsErrors(t *testing.T) {
	targets := map[int64]Voucher{1: receivableVoucher()}
	reversing := settlingVoucher(400)

	_, err := LinkReversals(reversing, targets, []ReverseInstruction{{VoucherID: 5, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 1}})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, EntityVoucher, nf.Entity)
	assert.Equal(t, int64(5), nf.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = LinkReversals(reversing, targets, []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 99, LineItemIDReverseOther: "settle", Amount: 1}})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, EntityLineItem, nf.Entity)

	_, err = LinkReversals(reversing, targets, []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "missing", Amount: 1}})
	require.ErrorIs(t, err, ErrUnknownCorrelation)
}

func TestCheckReversalCapacity(t *testing.T) {
	targets := map[int64]Voucher{1: receivableVoucher()}
	settled := []VoucherLink{{
		EventType:          EventTypeRevert,
		OriginalVoucherID:  1,
		OriginalLineItemID: ptr(int64(11)),
		ResultVoucherID:    2,
		ResultLineItemID:   ptr(int64(22)),
		Amount:             ptr(400.0),
	}}
	repeat := []VoucherLink{{EventType: EventTypeRepeat, OriginalVoucherID: 1, ResultVoucherID: 3}}

	cases := []struct {
		name      string
		reversing Voucher
		existing  []VoucherLink
		in        []ReverseInstruction
		want      error
	}{
		{
			name:      "within open amount",
			reversing: settlingVoucher(600),
			existing:  settled,
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 600}},
		},
		{
			name:      "exceeds open amount",
			reversing: settlingVoucher(700),
			existing:  settled,
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 700}},
			want:      ErrOverReversal,
		},
		{
			name:      "non revert links ignored",
			reversing: settlingVoucher(1000),
			existing:  repeat,
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 1000}},
		},
		{
			name:      "accumulates within request",
			reversing: settlingVoucher(1000),
			existing:  settled,
			in: []ReverseInstruction{
				{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 300},
				{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 301},
			},
			want: ErrOverReversal,
		},
		{
			name:      "exceeds reversing line",
			reversing: settlingVoucher(100),
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 200}},
			want:      ErrOverReversal,
		},
		{
			name:      "non positive",
			reversing: settlingVoucher(100),
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: 0}},
			want:      ErrNonPositiveAmount,
		},
		{
			name:      "infinite amount",
			reversing: settlingVoucher(100),
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "settle", Amount: math.Inf(1)}},
			want:      ErrNonPositiveAmount,
		},
		{
			name:      "unknown correlation",
			reversing: settlingVoucher(100),
			in:        []ReverseInstruction{{VoucherID: 1, LineItemIDBeReversed: 11, LineItemIDReverseOther: "nope", Amount: 10}},
			want:      ErrUnknownCorrelation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckReversalCapacity(tc.reversing, targets, tc.existing, tc.in)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestSettledByLineCountsBothEnds(t *testing.T) {
	got := settledByLine([]VoucherLink{
		{EventType: EventTypeRevert, OriginalLineItemID: ptr(int64(1)), ResultLineItemID: ptr(int64(2)), Amount: ptr(10.0)},
		{EventType: EventTypeRevert, OriginalLineItemID: ptr(int64(1)), ResultLineItemID: ptr(int64(3)), Amount: ptr(5.5)},
		{EventType: EventTypeRevert, OriginalLineItemID: ptr(int64(1))},
		{EventType: EventTypeAsset, OriginalLineItemID: ptr(int64(1)), Amount: ptr(100.0)},
	})
	assert.Equal(t, "15.5", got[1].String())
	assert.Equal(t, "10", got[2].String())
	assert.Equal(t, "5.5", got[3].String())
}
