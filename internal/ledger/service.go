package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts the persistence collaborator. Reads run on the
// pool and may be called concurrently; writes go through WithTx.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Exists(ctx context.Context, entity Entity, companyID, id int64) (bool, error)
	GetVoucher(ctx context.Context, companyID, id int64) (Voucher, error)
	GetAsset(ctx context.Context, companyID, id int64) (Asset, error)
	ListVoucherLinks(ctx context.Context, voucherIDs []int64) ([]VoucherLink, error)
	ListVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error)
	MarkRead(ctx context.Context, companyID, id int64) error
	ListCompanyIDs(ctx context.Context) ([]int64, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListCache caches listing pages per company until Invalidate is called.
type ListCache interface {
	FetchPage(ctx context.Context, companyID int64, key string, loader func(context.Context) (VoucherPage, error)) (VoucherPage, error)
	Invalidate(ctx context.Context, companyID int64) error
}

// Publisher delivers committed-voucher notifications.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Recorder receives commit outcomes for metrics.
type Recorder interface {
	VoucherCommitted(voucherType string, generated int)
	VoucherRejected(kind string)
}

// Options wires optional collaborators into the Service.
type Options struct {
	Audit      AuditPort
	Cache      ListCache
	Publisher  Publisher
	Metrics    Recorder
	Classifier *AccountClassifier
	Location   *time.Location
	Logger     *slog.Logger
	// MaxOccurrences caps the vouchers one recurrence may generate. Zero
	// uses DefaultMaxOccurrences.
	MaxOccurrences int
}

// Service authors vouchers with their generated siblings and serves the
// aggregated read model.
type Service struct {
	repo         RepositoryPort
	audit        AuditPort
	cache        ListCache
	publisher    Publisher
	metrics      Recorder
	aggregator   Aggregator
	recurrence   RecurrenceGenerator
	depreciation DepreciationBuilder
	logger       *slog.Logger
	now          func() time.Time
	newRef       func() string
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, opts Options) *Service {
	classifier := DefaultAccountClassifier()
	if opts.Classifier != nil {
		classifier = *opts.Classifier
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		audit:        opts.Audit,
		cache:        opts.Cache,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		aggregator:   NewAggregator(classifier),
		recurrence:   NewRecurrenceGenerator(opts.Location).WithMaxOccurrences(opts.MaxOccurrences),
		depreciation: NewDepreciationBuilder(opts.Location),
		logger:       logger,
		now:          time.Now,
		newRef:       uuid.NewString,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// LineItemInput is one raw line item supplied by the API layer. Ref is an
// optional client correlation id used by reversal instructions; it only
// lives for the request and is not stored.
type LineItemInput struct {
	Ref         string
	AccountID   int64
	Debit       bool
	Amount      float64
	Description string
}

// CreateVoucherInput carries a new voucher and the relationships it starts.
type CreateVoucherInput struct {
	CompanyID      int64
	IssuerID       int64
	CounterpartyID *int64
	Type           VoucherType
	Number         string
	Date           int64
	LineItems      []LineItemInput
	CertificateIDs []int64
	AssetIDs       []int64
	Reverses       []ReverseInstruction
	Recurrence     *RecurrenceInput
}

// Validate performs the checks that need no persistence.
func (in CreateVoucherInput) Validate() error {
	if in.CompanyID == 0 {
		return fmt.Errorf("%w: company id required", ErrInvalidInput)
	}
	if in.IssuerID == 0 {
		return fmt.Errorf("%w: issuer id required", ErrInvalidInput)
	}
	if _, err := ParseVoucherType(string(in.Type)); err != nil {
		return err
	}
	if in.Date <= 0 {
		return fmt.Errorf("%w: voucher date required", ErrInvalidInput)
	}
	refs := make(map[string]struct{}, len(in.LineItems))
	lines := make([]LineItem, 0, len(in.LineItems))
	for _, li := range in.LineItems {
		if li.Ref != "" {
			if _, dup := refs[li.Ref]; dup {
				return fmt.Errorf("%w: %q", ErrDuplicateCorrelation, li.Ref)
			}
			refs[li.Ref] = struct{}{}
		}
		lines = append(lines, LineItem{AccountID: li.AccountID, Debit: li.Debit, Amount: li.Amount})
	}
	if err := ValidateLineItems(lines); err != nil {
		return err
	}
	for _, rev := range in.Reverses {
		if rev.VoucherID == 0 || rev.LineItemIDBeReversed == 0 {
			return fmt.Errorf("%w: reversal target required", ErrInvalidInput)
		}
		if _, ok := refs[rev.LineItemIDReverseOther]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCorrelation, rev.LineItemIDReverseOther)
		}
		if !isFiniteAmount(rev.Amount) || !(rev.Amount > 0) {
			return fmt.Errorf("%w: reversal amount %v", ErrNonPositiveAmount, rev.Amount)
		}
	}
	if in.Recurrence != nil {
		if err := in.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CreateVoucherResult reports what was committed.
type CreateVoucherResult struct {
	Voucher   Voucher   `json:"voucher"`
	Generated []Voucher `json:"generated"`
	Events    []Event   `json:"events"`
}

// CommittedNotification is published after a successful commit.
type CommittedNotification struct {
	CompanyID   int64     `json:"companyId"`
	VoucherID   int64     `json:"voucherId"`
	Type        string    `json:"type"`
	Generated   []int64   `json:"generatedVoucherIds"`
	EventIDs    []int64   `json:"eventIds"`
	CommittedAt time.Time `json:"committedAt"`
}

// CreateVoucher validates the voucher, checks every referenced id, builds the
// reversal, recurrence and depreciation siblings and saves them atomically.
func (s *Service) CreateVoucher(ctx context.Context, in CreateVoucherInput) (CreateVoucherResult, error) {
	voucher := s.draft(in)
	if err := in.Validate(); err != nil {
		return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
	}

	loaded, err := s.checkReferences(ctx, in)
	if err != nil {
		return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
	}

	var events []Event
	var generated []Voucher
	var guard func(context.Context, TxRepository) error
	if len(in.Reverses) > 0 {
		if err := CheckReversalCapacity(voucher, loaded.targets, loaded.links, in.Reverses); err != nil {
			return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
		}
		event, err := LinkReversals(voucher, loaded.targets, in.Reverses)
		if err != nil {
			return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
		}
		events = append(events, event)
		guard = reversalGuard(voucher, loaded.targets, in.Reverses)
	}
	if in.Recurrence != nil {
		event, vouchers, err := s.recurrence.Generate(voucher, *in.Recurrence)
		if err != nil {
			return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
		}
		events = append(events, event)
		generated = append(generated, vouchers...)
	}
	for _, assetID := range distinct(in.AssetIDs) {
		event, vouchers, err := s.depreciation.Build(voucher, loaded.assets[assetID])
		if err != nil {
			return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
		}
		events = append(events, event)
		generated = append(generated, vouchers...)
	}

	result, err := s.save(ctx, voucher, generated, events, in.CertificateIDs, guard)
	if err != nil {
		return CreateVoucherResult{}, s.reject(ctx, "voucher.create", in.CompanyID, err)
	}
	s.afterCommit(ctx, in, result)
	return result, nil
}

func (s *Service) draft(in CreateVoucherInput) Voucher {
	lines := make([]LineItem, 0, len(in.LineItems))
	for _, li := range in.LineItems {
		lines = append(lines, LineItem{
			Ref:         s.newRef(),
			Correlation: li.Ref,
			AccountID:   li.AccountID,
			Debit:       li.Debit,
			Amount:      li.Amount,
			Description: li.Description,
		})
	}
	return Voucher{
		Ref:            s.newRef(),
		CompanyID:      in.CompanyID,
		IssuerID:       in.IssuerID,
		CounterpartyID: in.CounterpartyID,
		Type:           in.Type,
		Status:         VoucherStatusApproved,
		Editable:       true,
		Number:         in.Number,
		Date:           in.Date,
		LineItems:      lines,
	}
}

type references struct {
	targets map[int64]Voucher
	assets  map[int64]Asset
	links   []VoucherLink
}

// checkReferences runs one lookup per referenced id concurrently. The first
// failure cancels the remaining lookups.
func (s *Service) checkReferences(ctx context.Context, in CreateVoucherInput) (references, error) {
	type check struct {
		entity Entity
		id     int64
	}
	checks := []check{{EntityCompany, in.CompanyID}, {EntityUser, in.IssuerID}}
	if in.CounterpartyID != nil {
		checks = append(checks, check{EntityCounterparty, *in.CounterpartyID})
	}
	for _, id := range distinct(accountIDs(in.LineItems)) {
		checks = append(checks, check{EntityAccount, id})
	}
	for _, id := range distinct(in.CertificateIDs) {
		checks = append(checks, check{EntityCertificate, id})
	}

	targetIDs := make([]int64, 0, len(in.Reverses))
	for _, rev := range in.Reverses {
		targetIDs = append(targetIDs, rev.VoucherID)
	}
	targetIDs = distinct(targetIDs)
	assetIDs := distinct(in.AssetIDs)
	targets := make([]Voucher, len(targetIDs))
	assets := make([]Asset, len(assetIDs))

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checks {
		c := c
		g.Go(func() error {
			ok, err := s.repo.Exists(gctx, c.entity, in.CompanyID, c.id)
			if err != nil {
				return err
			}
			if !ok {
				return notFound(c.entity, c.id)
			}
			return nil
		})
	}
	for i, id := range targetIDs {
		i, id := i, id
		g.Go(func() error {
			v, err := s.repo.GetVoucher(gctx, in.CompanyID, id)
			if err != nil {
				return err
			}
			targets[i] = v
			return nil
		})
	}
	for i, id := range assetIDs {
		i, id := i, id
		g.Go(func() error {
			a, err := s.repo.GetAsset(gctx, in.CompanyID, id)
			if err != nil {
				return err
			}
			assets[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return references{}, err
	}

	out := references{targets: make(map[int64]Voucher, len(targets)), assets: make(map[int64]Asset, len(assets))}
	for _, v := range targets {
		out.targets[v.ID] = v
	}
	for _, a := range assets {
		out.assets[a.ID] = a
	}
	if len(targetIDs) > 0 {
		links, err := s.repo.ListVoucherLinks(ctx, targetIDs)
		if err != nil {
			return references{}, err
		}
		out.links = links
	}
	return out, nil
}

// reversalGuard re-checks reversal capacity inside the saving transaction,
// after claiming the reversed lines, against the links visible to it.
func reversalGuard(voucher Voucher, targets map[int64]Voucher, instructions []ReverseInstruction) func(context.Context, TxRepository) error {
	lineIDs := make([]int64, 0, len(instructions))
	voucherIDs := make([]int64, 0, len(instructions))
	for _, in := range instructions {
		lineIDs = append(lineIDs, in.LineItemIDBeReversed)
		voucherIDs = append(voucherIDs, in.VoucherID)
	}
	lineIDs = distinct(lineIDs)
	slices.Sort(lineIDs)
	voucherIDs = distinct(voucherIDs)
	return func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockLineItems(ctx, lineIDs); err != nil {
			return err
		}
		links, err := tx.ListVoucherLinks(ctx, voucherIDs)
		if err != nil {
			return err
		}
		return CheckReversalCapacity(voucher, targets, links, instructions)
	}
}

// saveAttempts bounds how often a save that lost a race on a settled line
// is retried.
const saveAttempts = 3

// save persists the voucher, its siblings, events and pairs in one
// transaction. guard, when set, runs first inside the transaction.
func (s *Service) save(ctx context.Context, voucher Voucher, generated []Voucher, events []Event, certificateIDs []int64, guard func(context.Context, TxRepository) error) (CreateVoucherResult, error) {
	var result CreateVoucherResult
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		result, err = s.saveOnce(ctx, voucher, generated, cloneEvents(events), certificateIDs, guard)
		if !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
		s.logger.WarnContext(ctx, "voucher save conflicted",
			slog.Int64("company_id", voucher.CompanyID),
			slog.Int("attempt", attempt),
		)
	}
	return result, err
}

func (s *Service) saveOnce(ctx context.Context, voucher Voucher, generated []Voucher, events []Event, certificateIDs []int64, guard func(context.Context, TxRepository) error) (CreateVoucherResult, error) {
	idx := newRefIndex()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if guard != nil {
			if err := guard(ctx, tx); err != nil {
				return err
			}
		}
		for _, v := range append([]Voucher{voucher}, generated...) {
			saved, err := tx.InsertVoucher(ctx, v)
			if err != nil {
				return err
			}
			if err := idx.record(v, saved); err != nil {
				return err
			}
		}
		if len(certificateIDs) > 0 {
			if err := tx.LinkCertificates(ctx, idx.vouchers[voucher.Ref], distinct(certificateIDs)); err != nil {
				return err
			}
		}
		for i := range events {
			eventID, err := tx.InsertEvent(ctx, events[i])
			if err != nil {
				return err
			}
			if eventID == 0 {
				return fmt.Errorf("%w: event insert returned no id", ErrPersistence)
			}
			events[i].ID = eventID
			for j, pair := range events[i].Pairs {
				pair.OriginalVoucher = idx.apply(pair.OriginalVoucher)
				pair.ResultVoucher = idx.apply(pair.ResultVoucher)
				link := pairLink(events[i], pair)
				pairID, err := tx.InsertPair(ctx, link)
				if err != nil {
					return err
				}
				if pairID == 0 {
					return fmt.Errorf("%w: pair insert returned no id", ErrPersistence)
				}
				events[i].Pairs[j] = pair
			}
		}
		return nil
	})
	if err != nil {
		if errorKind(err) == "internal" && !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return CreateVoucherResult{}, err
	}
	result := CreateVoucherResult{Voucher: idx.apply(voucher), Events: events, Generated: make([]Voucher, 0, len(generated))}
	for _, v := range generated {
		result.Generated = append(result.Generated, idx.apply(v))
	}
	return result, nil
}

func (s *Service) afterCommit(ctx context.Context, in CreateVoucherInput, result CreateVoucherResult) {
	v := result.Voucher
	logger := s.logger.With(slog.Int64("company_id", v.CompanyID), slog.Int64("voucher_id", v.ID))
	logger.InfoContext(ctx, "voucher committed",
		slog.String("type", string(v.Type)),
		slog.Int("generated", len(result.Generated)),
		slog.Int("events", len(result.Events)),
	)
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.IssuerID,
			Action:   "voucher.create",
			Entity:   string(EntityVoucher),
			EntityID: strconv.FormatInt(v.ID, 10),
			Meta: map[string]any{
				"number":    v.Number,
				"generated": len(result.Generated),
				"reversals": len(in.Reverses),
			},
			At: s.now(),
		}); err != nil {
			logger.WarnContext(ctx, "audit record failed", slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, v.CompanyID); err != nil {
			logger.WarnContext(ctx, "list cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.publisher != nil {
		note := CommittedNotification{CompanyID: v.CompanyID, VoucherID: v.ID, Type: string(v.Type), CommittedAt: s.now()}
		for _, g := range result.Generated {
			note.Generated = append(note.Generated, g.ID)
		}
		for _, e := range result.Events {
			note.EventIDs = append(note.EventIDs, e.ID)
		}
		payload, err := json.Marshal(note)
		if err == nil {
			err = s.publisher.Publish(ctx, strconv.FormatInt(v.CompanyID, 10), payload)
		}
		if err != nil {
			logger.WarnContext(ctx, "commit notification failed", slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.VoucherCommitted(string(v.Type), len(result.Generated))
	}
}

// reject logs err with its context and records the rejection.
func (s *Service) reject(ctx context.Context, op string, companyID int64, err error) error {
	kind := errorKind(err)
	attrs := []any{
		slog.String("op", op),
		slog.Int64("company_id", companyID),
		slog.String("kind", kind),
		slog.Any("error", err),
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		attrs = append(attrs, slog.String("entity", string(nf.Entity)), slog.Int64("id", nf.ID))
	}
	if kind == "internal" {
		s.logger.ErrorContext(ctx, "ledger operation failed", attrs...)
	} else {
		s.logger.WarnContext(ctx, "ledger operation rejected", attrs...)
	}
	if s.metrics != nil {
		s.metrics.VoucherRejected(kind)
	}
	return err
}

// GetVoucher returns the aggregate of one voucher.
func (s *Service) GetVoucher(ctx context.Context, companyID, id int64) (VoucherAggregate, error) {
	v, err := s.repo.GetVoucher(ctx, companyID, id)
	if err != nil {
		return VoucherAggregate{}, err
	}
	links, err := s.repo.ListVoucherLinks(ctx, []int64{v.ID})
	if err != nil {
		return VoucherAggregate{}, err
	}
	agg, err := s.aggregator.Aggregate(v, links)
	if err != nil {
		s.logger.ErrorContext(ctx, "voucher aggregate failed", slog.Int64("voucher_id", id), slog.Any("error", err))
		return VoucherAggregate{}, err
	}
	return agg, nil
}

// VoucherFilter narrows the repository list query.
type VoucherFilter struct {
	CompanyID int64
	Type      *VoucherType
	DateFrom  int64
	DateTo    int64
}

// ListVouchersInput selects, orders and pages the aggregates of a company.
type ListVouchersInput struct {
	CompanyID int64
	Tab       Tab
	Type      *VoucherType
	Status    *ReverseStatus
	DateFrom  int64
	DateTo    int64
	Sort      []SortRule
	Page      int
	PerPage   int
}

// VoucherPage is one page of listed aggregates.
type VoucherPage struct {
	Items      []VoucherAggregate `json:"items"`
	Pagination shared.Pagination  `json:"pagination"`
}

func (in ListVouchersInput) cacheKey() string {
	typ, status := "*", "*"
	if in.Type != nil {
		typ = string(*in.Type)
	}
	if in.Status != nil {
		status = string(*in.Status)
	}
	sortKey := ""
	for i, rule := range in.Sort {
		if i > 0 {
			sortKey += ","
		}
		sortKey += string(rule.By) + ":" + string(rule.Order)
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d|%s|%d|%d", in.Tab, typ, status, in.DateFrom, in.DateTo, sortKey, in.Page, in.PerPage)
}

// ListVouchers returns one page of aggregates filtered by status and sorted by
// the composite rule chain.
func (s *Service) ListVouchers(ctx context.Context, in ListVouchersInput) (VoucherPage, error) {
	if in.CompanyID == 0 {
		return VoucherPage{}, fmt.Errorf("%w: company id required", ErrInvalidInput)
	}
	if in.Tab == "" {
		in.Tab = TabReceiving
	}
	for _, rule := range in.Sort {
		if err := rule.Validate(); err != nil {
			return VoucherPage{}, err
		}
	}
	if s.cache == nil {
		return s.loadPage(ctx, in)
	}
	return s.cache.FetchPage(ctx, in.CompanyID, in.cacheKey(), func(ctx context.Context) (VoucherPage, error) {
		return s.loadPage(ctx, in)
	})
}

func (s *Service) loadPage(ctx context.Context, in ListVouchersInput) (VoucherPage, error) {
	vouchers, err := s.repo.ListVouchers(ctx, VoucherFilter{CompanyID: in.CompanyID, Type: in.Type, DateFrom: in.DateFrom, DateTo: in.DateTo})
	if err != nil {
		return VoucherPage{}, err
	}
	ids := make([]int64, 0, len(vouchers))
	for _, v := range vouchers {
		ids = append(ids, v.ID)
	}
	var links []VoucherLink
	if len(ids) > 0 {
		links, err = s.repo.ListVoucherLinks(ctx, ids)
		if err != nil {
			return VoucherPage{}, err
		}
	}
	items, err := s.aggregator.AggregateAll(vouchers, links)
	if err != nil {
		s.logger.ErrorContext(ctx, "voucher list aggregate failed", slog.Int64("company_id", in.CompanyID), slog.Any("error", err))
		return VoucherPage{}, err
	}
	items = FilterByStatus(items, in.Tab, in.Status)
	SortAggregates(items, in.Tab, in.Sort)
	page := shared.NewPagination(in.Page, in.PerPage, len(items))
	start, end := page.Bounds()
	return VoucherPage{Items: append([]VoucherAggregate{}, items[start:end]...), Pagination: page}, nil
}

// MarkRead sets the has-read metadata of a voucher.
func (s *Service) MarkRead(ctx context.Context, companyID, id int64) error {
	if err := s.repo.MarkRead(ctx, companyID, id); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, companyID); err != nil {
			s.logger.WarnContext(ctx, "list cache invalidation failed", slog.Int64("company_id", companyID), slog.Any("error", err))
		}
	}
	return nil
}

// ImportAccounts upserts chart-of-accounts entries for a company.
func (s *Service) ImportAccounts(ctx context.Context, companyID int64, accounts []Account) (int, error) {
	if companyID == 0 {
		return 0, fmt.Errorf("%w: company id required", ErrInvalidInput)
	}
	count := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, a := range accounts {
			if a.Code == "" || a.Name == "" {
				return fmt.Errorf("%w: account code and name required", ErrInvalidInput)
			}
			a.CompanyID = companyID
			if _, err := tx.UpsertAccount(ctx, a); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IntegrityReport lists vouchers that break ledger invariants.
type IntegrityReport struct {
	CompanyID      int64   `json:"companyId"`
	Checked        int     `json:"checked"`
	Unbalanced     []int64 `json:"unbalanced"`
	NegativeRemain []int64 `json:"negativeRemain"`
}

// Anomalies counts the offending vouchers.
func (r IntegrityReport) Anomalies() int {
	return len(r.Unbalanced) + len(r.NegativeRemain)
}

// CheckIntegrity re-reads every voucher of a company and reports broken
// balance or settlement invariants. It never mutates data.
func (s *Service) CheckIntegrity(ctx context.Context, companyID int64) (IntegrityReport, error) {
	report := IntegrityReport{CompanyID: companyID}
	vouchers, err := s.repo.ListVouchers(ctx, VoucherFilter{CompanyID: companyID})
	if err != nil {
		return report, err
	}
	ids := make([]int64, 0, len(vouchers))
	for _, v := range vouchers {
		ids = append(ids, v.ID)
	}
	var links []VoucherLink
	if len(ids) > 0 {
		if links, err = s.repo.ListVoucherLinks(ctx, ids); err != nil {
			return report, err
		}
	}
	byVoucher := make(map[int64][]VoucherLink)
	for _, link := range links {
		byVoucher[link.OriginalVoucherID] = append(byVoucher[link.OriginalVoucherID], link)
		byVoucher[link.ResultVoucherID] = append(byVoucher[link.ResultVoucherID], link)
	}
	for _, v := range vouchers {
		report.Checked++
		if !IsBalanced(v.LineItems) {
			report.Unbalanced = append(report.Unbalanced, v.ID)
		}
		if _, err := s.aggregator.Aggregate(v, byVoucher[v.ID]); err != nil {
			if !errors.Is(err, ErrNegativeRemain) {
				return report, err
			}
			report.NegativeRemain = append(report.NegativeRemain, v.ID)
		}
	}
	if report.Anomalies() > 0 {
		s.logger.WarnContext(ctx, "ledger integrity anomalies",
			slog.Int64("company_id", companyID),
			slog.Any("unbalanced", report.Unbalanced),
			slog.Any("negative_remain", report.NegativeRemain),
		)
	}
	return report, nil
}

// CompanyIDs lists the companies that own vouchers.
func (s *Service) CompanyIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListCompanyIDs(ctx)
}

func pairLink(event Event, pair AssociateVoucherPair) VoucherLink {
	link := VoucherLink{
		EventID:           event.ID,
		EventType:         event.Type,
		Frequency:         event.Frequency,
		OriginalVoucherID: pair.OriginalVoucher.ID,
		ResultVoucherID:   pair.ResultVoucher.ID,
		Amount:            pair.Amount,
	}
	if event.Type == EventTypeRevert {
		if len(pair.OriginalVoucher.LineItems) == 1 {
			id := pair.OriginalVoucher.LineItems[0].ID
			link.OriginalLineItemID = &id
		}
		if len(pair.ResultVoucher.LineItems) == 1 {
			id := pair.ResultVoucher.LineItems[0].ID
			link.ResultLineItemID = &id
		}
	}
	return link
}

// refIndex resolves correlation refs to the ids assigned on insert.
type refIndex struct {
	vouchers map[string]int64
	lines    map[string]int64
}

func newRefIndex() refIndex {
	return refIndex{vouchers: make(map[string]int64), lines: make(map[string]int64)}
}

func (idx refIndex) record(draft, saved Voucher) error {
	if saved.ID == 0 {
		return fmt.Errorf("%w: voucher insert returned no id", ErrPersistence)
	}
	if len(saved.LineItems) != len(draft.LineItems) {
		return fmt.Errorf("%w: voucher %d stored %d of %d line items", ErrPersistence, saved.ID, len(saved.LineItems), len(draft.LineItems))
	}
	idx.vouchers[draft.Ref] = saved.ID
	for i, li := range saved.LineItems {
		if li.ID == 0 {
			return fmt.Errorf("%w: line item insert returned no id", ErrPersistence)
		}
		idx.lines[draft.LineItems[i].Ref] = li.ID
	}
	return nil
}

// apply fills ids of a draft voucher and its lines. Persisted ids are kept.
func (idx refIndex) apply(v Voucher) Voucher {
	out := v
	if out.ID == 0 {
		out.ID = idx.vouchers[v.Ref]
	}
	out.LineItems = make([]LineItem, len(v.LineItems))
	for i, li := range v.LineItems {
		if li.ID == 0 {
			li.ID = idx.lines[li.Ref]
		}
		if li.VoucherID == 0 {
			li.VoucherID = out.ID
		}
		out.LineItems[i] = li
	}
	return out
}

func cloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		e.Pairs = slices.Clone(e.Pairs)
		out[i] = e
	}
	return out
}

func accountIDs(lines []LineItemInput) []int64 {
	out := make([]int64, 0, len(lines))
	for _, li := range lines {
		out = append(out, li.AccountID)
	}
	return out
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
