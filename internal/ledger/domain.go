package ledger

import (
	"fmt"
	"strings"
	"time"
)

// VoucherType enumerates the kinds of vouchers a company can issue.
type VoucherType string

const (
	VoucherTypePayment   VoucherType = "PAYMENT"
	VoucherTypeTransfer  VoucherType = "TRANSFER"
	VoucherTypeReceiving VoucherType = "RECEIVING"
)

// VoucherStatus enumerates voucher lifecycle values.
type VoucherStatus string

const (
	VoucherStatusApproved VoucherStatus = "APPROVED"
	VoucherStatusUpcoming VoucherStatus = "UPCOMING"
)

// EventType classifies the relationship recorded by an Event.
type EventType string

const (
	EventTypeRevert EventType = "REVERT"
	EventTypeRepeat EventType = "REPEAT"
	EventTypeAsset  EventType = "ASSET"
)

// Frequency describes how often an event produces result vouchers.
type Frequency string

const (
	FrequencyOnce    Frequency = "ONCE"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// Tab selects which side of a voucher the list comparator looks at.
type Tab string

const (
	TabPayment   Tab = "PAYMENT"
	TabReceiving Tab = "RECEIVING"
)

// ReverseStatus reports whether an AP/AR voucher still has an open amount.
type ReverseStatus string

const (
	ReverseStatusPending  ReverseStatus = "PENDING"
	ReverseStatusReversed ReverseStatus = "REVERSED"
)

// ParseVoucherType validates a boundary value.
func ParseVoucherType(raw string) (VoucherType, error) {
	switch v := VoucherType(strings.ToUpper(strings.TrimSpace(raw))); v {
	case VoucherTypePayment, VoucherTypeTransfer, VoucherTypeReceiving:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVoucherType, raw)
}

// ParseFrequency validates a boundary value.
func ParseFrequency(raw string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(raw))); f {
	case FrequencyOnce, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFrequency, raw)
}

// ParseTab validates a boundary value. Empty defaults to the receiving tab.
func ParseTab(raw string) (Tab, error) {
	switch t := Tab(strings.ToUpper(strings.TrimSpace(raw))); t {
	case "":
		return TabReceiving, nil
	case TabPayment, TabReceiving:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown tab %q", ErrInvalidInput, raw)
}

// ParseReverseStatus validates a boundary value.
func ParseReverseStatus(raw string) (ReverseStatus, error) {
	switch s := ReverseStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ReverseStatusPending, ReverseStatusReversed:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
}

// Account models a chart of accounts node.
type Account struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"companyId"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	DebitNormal bool   `json:"debit"`
	ParentCode  string `json:"parentCode,omitempty"`
	RootCode    string `json:"rootCode,omitempty"`
	Liquidity   bool   `json:"liquidity"`
}

// LineItem stores one debit or credit entry of a voucher. Ref is a server
// generated UUID assigned before the item has a database id. Correlation is
// the client's id for the line within the creating request and is never
// persisted.
type LineItem struct {
	ID          int64   `json:"id"`
	Ref         string  `json:"ref,omitempty"`
	Correlation string  `json:"correlation,omitempty"`
	VoucherID   int64   `json:"voucherId"`
	AccountID   int64   `json:"accountId"`
	Account     Account `json:"account"`
	Debit       bool    `json:"debit"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// Voucher is one balanced accounting transaction.
type Voucher struct {
	ID             int64         `json:"id"`
	Ref            string        `json:"ref,omitempty"`
	CompanyID      int64         `json:"companyId"`
	IssuerID       int64         `json:"issuerId"`
	CounterpartyID *int64        `json:"counterPartyId,omitempty"`
	Type           VoucherType   `json:"type"`
	Status         VoucherStatus `json:"status"`
	Editable       bool          `json:"editable"`
	HasRead        bool          `json:"hasRead"`
	Number         string        `json:"voucherNo"`
	Date           int64         `json:"voucherDate"`
	LineItems      []LineItem    `json:"lineItems"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// WithLineItems returns a copy of v carrying only the supplied line items.
func (v Voucher) WithLineItems(items ...LineItem) Voucher {
	out := v
	out.LineItems = append([]LineItem(nil), items...)
	return out
}

// LineItemByID finds a persisted line item.
func (v Voucher) LineItemByID(id int64) (LineItem, bool) {
	for _, li := range v.LineItems {
		if li.ID == id {
			return li, true
		}
	}
	return LineItem{}, false
}

// LineItemByCorrelation finds a line item by the client correlation id it
// carried in the creating request.
func (v Voucher) LineItemByCorrelation(correlation string) (LineItem, bool) {
	if correlation == "" {
		return LineItem{}, false
	}
	for _, li := range v.LineItems {
		if li.Correlation == correlation {
			return li, true
		}
	}
	return LineItem{}, false
}

// AssociateVoucherPair links one original voucher to one result voucher.
// Amount is only set for reversals.
type AssociateVoucherPair struct {
	OriginalVoucher Voucher  `json:"originalVoucher"`
	ResultVoucher   Voucher  `json:"resultVoucher"`
	Amount          *float64 `json:"amount,omitempty"`
}

// Event records a revert, repeat or asset relationship between vouchers.
type Event struct {
	ID           int64                  `json:"id"`
	CompanyID    int64                  `json:"companyId"`
	Type         EventType              `json:"type"`
	Frequency    Frequency              `json:"frequency"`
	StartDate    int64                  `json:"startDate"`
	EndDate      int64                  `json:"endDate"`
	DaysOfWeek   []int                  `json:"daysOfWeek,omitempty"`
	MonthsOfYear []int                  `json:"monthsOfYear,omitempty"`
	Pairs        []AssociateVoucherPair `json:"associateVouchers"`
}

// VoucherLink is the persisted, flattened form of one AssociateVoucherPair.
type VoucherLink struct {
	PairID             int64     `json:"pairId"`
	EventID            int64     `json:"eventId"`
	EventType          EventType `json:"eventType"`
	Frequency          Frequency `json:"frequency"`
	OriginalVoucherID  int64     `json:"originalVoucherId"`
	OriginalLineItemID *int64    `json:"originalLineItemId,omitempty"`
	ResultVoucherID    int64     `json:"resultVoucherId"`
	ResultLineItemID   *int64    `json:"resultLineItemId,omitempty"`
	Amount             *float64  `json:"amount,omitempty"`
}

// DepreciationPeriod is one entry of an asset's depreciation serial.
type DepreciationPeriod struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Amount float64 `json:"amount"`
}

// Asset is the part of a fixed asset this ledger consumes.
type Asset struct {
	ID                   int64                `json:"id"`
	CompanyID            int64                `json:"companyId"`
	Name                 string               `json:"name"`
	AcquisitionDate      int64                `json:"acquisitionDate"`
	ExpenseAccountID     int64                `json:"expenseAccountId"`
	AccumulatedAccountID int64                `json:"accumulatedAccountId"`
	Serial               []DepreciationPeriod `json:"depreciationSerial"`
}

// Sum is the debit or credit total of a voucher's line items.
type Sum struct {
	Debit  bool    `json:"debit"`
	Amount float64 `json:"amount"`
}

// Signed returns the sum as a positive debit or a negative credit.
func (s Sum) Signed() float64 {
	if s.Debit {
		return s.Amount
	}
	return -s.Amount
}

// SettlementInfo holds the payable or receivable roll-up of a voucher.
type SettlementInfo struct {
	Total           float64 `json:"total"`
	AlreadyHappened float64 `json:"alreadyHappened"`
	Remain          float64 `json:"remain"`
}

// Status derives PENDING or REVERSED from the remaining amount.
func (i SettlementInfo) Status() ReverseStatus {
	if i.Remain > balanceTolerance {
		return ReverseStatusPending
	}
	return ReverseStatusReversed
}

// VoucherAggregate is the read model returned by list and detail queries.
type VoucherAggregate struct {
	Voucher        Voucher        `json:"voucher"`
	Sum            Sum            `json:"sum"`
	PayableInfo    SettlementInfo `json:"payableInfo"`
	ReceivingInfo  SettlementInfo `json:"receivingInfo"`
	OriginalEvents []VoucherLink  `json:"originalEvents"`
	ResultEvents   []VoucherLink  `json:"resultEvents"`
}

// Info returns the settlement side matching tab.
func (a VoucherAggregate) Info(tab Tab) SettlementInfo {
	if tab == TabPayment {
		return a.PayableInfo
	}
	return a.ReceivingInfo
}
