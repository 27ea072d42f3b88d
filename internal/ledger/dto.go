package ledger

type lineItemRequest struct {
	Ref         string  `json:"ref" validate:"omitempty,max=64"`
	AccountID   int64   `json:"accountId" validate:"required,gt=0"`
	Debit       bool    `json:"debit"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Description string  `json:"description" validate:"max=500"`
}

type reverseRequest struct {
	VoucherID              int64   `json:"voucherId" validate:"required,gt=0"`
	LineItemIDBeReversed   int64   `json:"lineItemIdBeReversed" validate:"required,gt=0"`
	LineItemIDReverseOther string  `json:"lineItemIdReverseOther" validate:"required,max=64"`
	Amount                 float64 `json:"amount" validate:"gt=0"`
}

type recurrenceRequest struct {
	Frequency    string `json:"frequency" validate:"required"`
	StartDate    int64  `json:"startDate" validate:"required,gt=0"`
	EndDate      int64  `json:"endDate" validate:"required,gtefield=StartDate"`
	DaysOfWeek   []int  `json:"daysOfWeek" validate:"omitempty,dive,gte=0,lte=6"`
	MonthsOfYear []int  `json:"monthsOfYear" validate:"omitempty,dive,gte=1,lte=12"`
}

type createVoucherRequest struct {
	IssuerID       int64              `json:"issuerId" validate:"required,gt=0"`
	CounterpartyID *int64             `json:"counterPartyId,omitempty" validate:"omitempty,gt=0"`
	Type           string             `json:"type" validate:"required"`
	Number         string             `json:"voucherNo" validate:"max=64"`
	Date           int64              `json:"voucherDate" validate:"required,gt=0"`
	LineItems      []lineItemRequest  `json:"lineItems" validate:"required,min=2,dive"`
	CertificateIDs []int64            `json:"certificateIds" validate:"omitempty,dive,gt=0"`
	AssetIDs       []int64            `json:"assetIds" validate:"omitempty,dive,gt=0"`
	Reverses       []reverseRequest   `json:"reverses" validate:"omitempty,dive"`
	Recurrence     *recurrenceRequest `json:"recurrence,omitempty"`
}

// toInput converts the request, parsing enums once at the boundary.
func (req createVoucherRequest) toInput(companyID int64) (CreateVoucherInput, error) {
	typ, err := ParseVoucherType(req.Type)
	if err != nil {
		return CreateVoucherInput{}, err
	}
	in := CreateVoucherInput{
		CompanyID:      companyID,
		IssuerID:       req.IssuerID,
		CounterpartyID: req.CounterpartyID,
		Type:           typ,
		Number:         req.Number,
		Date:           req.Date,
		CertificateIDs: req.CertificateIDs,
		AssetIDs:       req.AssetIDs,
	}
	for _, li := range req.LineItems {
		in.LineItems = append(in.LineItems, LineItemInput(li))
	}
	for _, rev := range req.Reverses {
		in.Reverses = append(in.Reverses, ReverseInstruction(rev))
	}
	if req.Recurrence != nil {
		freq, err := ParseFrequency(req.Recurrence.Frequency)
		if err != nil {
			return CreateVoucherInput{}, err
		}
		in.Recurrence = &RecurrenceInput{
			Frequency:    freq,
			StartDate:    req.Recurrence.StartDate,
			EndDate:      req.Recurrence.EndDate,
			DaysOfWeek:   req.Recurrence.DaysOfWeek,
			MonthsOfYear: req.Recurrence.MonthsOfYear,
		}
	}
	return in, nil
}
