package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists vouchers, events and their pairs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes of one atomic save.
type TxRepository interface {
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	InsertEvent(ctx context.Context, e Event) (int64, error)
	InsertPair(ctx context.Context, link VoucherLink) (int64, error)
	LinkCertificates(ctx context.Context, voucherID int64, certificateIDs []int64) error
	UpsertAccount(ctx context.Context, a Account) (int64, error)
	// LockLineItems claims the given lines for the rest of the transaction.
	LockLineItems(ctx context.Context, lineItemIDs []int64) error
	// ListVoucherLinks reads pairs as seen by the transaction.
	ListVoucherLinks(ctx context.Context, voucherIDs []int64) ([]VoucherLink, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction. Serialization
// failures and deadlocks are reported as ErrConcurrentUpdate.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	return err
}

var existsQueries = map[Entity]string{
	EntityCompany:      `SELECT EXISTS(SELECT 1 FROM companies WHERE id=$1)`,
	EntityUser:         `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`,
	EntityCounterparty: `SELECT EXISTS(SELECT 1 FROM counterparties WHERE id=$1 AND company_id=$2)`,
	EntityCertificate:  `SELECT EXISTS(SELECT 1 FROM certificates WHERE id=$1 AND company_id=$2)`,
	EntityAccount:      `SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1 AND company_id=$2)`,
	EntityAsset:        `SELECT EXISTS(SELECT 1 FROM assets WHERE id=$1 AND company_id=$2)`,
	EntityVoucher:      `SELECT EXISTS(SELECT 1 FROM vouchers WHERE id=$1 AND company_id=$2)`,
	EntityLineItem: `SELECT EXISTS(SELECT 1 FROM line_items li JOIN vouchers v ON v.id = li.voucher_id
WHERE li.id=$1 AND v.company_id=$2)`,
}

// Exists reports whether id of entity exists. Company and user lookups
// ignore companyID; everything else is scoped to it.
func (r *Repository) Exists(ctx context.Context, entity Entity, companyID, id int64) (bool, error) {
	query, ok := existsQueries[entity]
	if !ok {
		return false, fmt.Errorf("ledger: no existence check for %s", entity)
	}
	args := []any{id}
	if entity != EntityCompany && entity != EntityUser {
		args = append(args, companyID)
	}
	var found bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

const voucherColumns = `id, ref::text, company_id, issuer_id, counterparty_id, type, status, editable, has_read, voucher_no, voucher_date, created_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.Ref, &v.CompanyID, &v.IssuerID, &v.CounterpartyID, &v.Type, &v.Status, &v.Editable, &v.HasRead, &v.Number, &v.Date, &v.CreatedAt)
	return v, err
}

// GetVoucher loads a voucher with its line items and accounts.
func (r *Repository) GetVoucher(ctx context.Context, companyID, id int64) (Voucher, error) {
	v, err := scanVoucher(r.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1 AND company_id=$2`, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, notFound(EntityVoucher, id)
		}
		return Voucher{}, err
	}
	lines, err := loadLineItems(ctx, r.pool, []int64{v.ID})
	if err != nil {
		return Voucher{}, err
	}
	v.LineItems = lines[v.ID]
	return v, nil
}

// ListVouchers loads the vouchers matching filter, newest first.
func (r *Repository) ListVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error) {
	var typ *string
	if filter.Type != nil {
		t := string(*filter.Type)
		typ = &t
	}
	rows, err := r.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers
WHERE company_id=$1
  AND ($2::text IS NULL OR type=$2)
  AND ($3::bigint = 0 OR voucher_date >= $3)
  AND ($4::bigint = 0 OR voucher_date <= $4)
ORDER BY voucher_date DESC, id DESC`, filter.CompanyID, typ, filter.DateFrom, filter.DateTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vouchers []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(vouchers) == 0 {
		return vouchers, nil
	}
	ids := make([]int64, 0, len(vouchers))
	for _, v := range vouchers {
		ids = append(ids, v.ID)
	}
	lines, err := loadLineItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range vouchers {
		vouchers[i].LineItems = lines[vouchers[i].ID]
	}
	return vouchers, nil
}

func loadLineItems(ctx context.Context, q querier, voucherIDs []int64) (map[int64][]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT li.id, li.ref::text, li.voucher_id, li.account_id, li.debit, li.amount::float8, li.description,
       a.id, a.company_id, a.code, a.name, a.debit, a.parent_code, a.root_code, a.liquidity
FROM line_items li
JOIN accounts a ON a.id = li.account_id
WHERE li.voucher_id = ANY($1)
ORDER BY li.voucher_id, li.position`, voucherIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]LineItem, len(voucherIDs))
	for rows.Next() {
		var li LineItem
		a := &li.Account
		if err := rows.Scan(&li.ID, &li.Ref, &li.VoucherID, &li.AccountID, &li.Debit, &li.Amount, &li.Description,
			&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.DebitNormal, &a.ParentCode, &a.RootCode, &a.Liquidity); err != nil {
			return nil, err
		}
		out[li.VoucherID] = append(out[li.VoucherID], li)
	}
	return out, rows.Err()
}

// ListVoucherLinks loads every pair in which one of voucherIDs is the
// original or the result voucher.
func (r *Repository) ListVoucherLinks(ctx context.Context, voucherIDs []int64) ([]VoucherLink, error) {
	return listVoucherLinks(ctx, r.pool, voucherIDs)
}

func listVoucherLinks(ctx context.Context, q querier, voucherIDs []int64) ([]VoucherLink, error) {
	rows, err := q.Query(ctx, `SELECT p.id, p.event_id, e.type, e.frequency, p.original_voucher_id, p.original_line_item_id,
       p.result_voucher_id, p.result_line_item_id, p.amount::float8
FROM associate_voucher_pairs p
JOIN events e ON e.id = p.event_id
WHERE p.original_voucher_id = ANY($1) OR p.result_voucher_id = ANY($1)
ORDER BY p.id`, voucherIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []VoucherLink
	for rows.Next() {
		var l VoucherLink
		if err := rows.Scan(&l.PairID, &l.EventID, &l.EventType, &l.Frequency, &l.OriginalVoucherID, &l.OriginalLineItemID,
			&l.ResultVoucherID, &l.ResultLineItemID, &l.Amount); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetAsset loads an asset with its depreciation serial.
func (r *Repository) GetAsset(ctx context.Context, companyID, id int64) (Asset, error) {
	var a Asset
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, acquisition_date, expense_account_id, accumulated_account_id
FROM assets WHERE id=$1 AND company_id=$2`, id, companyID).
		Scan(&a.ID, &a.CompanyID, &a.Name, &a.AcquisitionDate, &a.ExpenseAccountID, &a.AccumulatedAccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, notFound(EntityAsset, id)
		}
		return Asset{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT period_year, period_month, amount::float8
FROM asset_depreciation_periods WHERE asset_id=$1 ORDER BY seq`, id)
	if err != nil {
		return Asset{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p DepreciationPeriod
		if err := rows.Scan(&p.Year, &p.Month, &p.Amount); err != nil {
			return Asset{}, err
		}
		a.Serial = append(a.Serial, p)
	}
	return a, rows.Err()
}

// MarkRead sets has_read on a voucher.
func (r *Repository) MarkRead(ctx context.Context, companyID, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE vouchers SET has_read=TRUE WHERE id=$1 AND company_id=$2`, id, companyID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return notFound(EntityVoucher, id)
	}
	return nil
}

// ListCompanyIDs returns every company id.
func (r *Repository) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	saved := v
	err := r.tx.QueryRow(ctx, `INSERT INTO vouchers (ref, company_id, issuer_id, counterparty_id, type, status, editable, voucher_no, voucher_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		v.Ref, v.CompanyID, v.IssuerID, nullIntPtr(v.CounterpartyID), string(v.Type), string(v.Status), v.Editable, v.Number, v.Date).
		Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		return Voucher{}, err
	}
	saved.LineItems = make([]LineItem, 0, len(v.LineItems))
	for pos, li := range v.LineItems {
		err := r.tx.QueryRow(ctx, `INSERT INTO line_items (ref, voucher_id, position, account_id, debit, amount, description)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			li.Ref, saved.ID, pos, li.AccountID, li.Debit, toNumeric(li.Amount), li.Description).Scan(&li.ID)
		if err != nil {
			return Voucher{}, err
		}
		li.VoucherID = saved.ID
		saved.LineItems = append(saved.LineItems, li)
	}
	return saved, nil
}

func (r *txRepository) InsertEvent(ctx context.Context, e Event) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO events (company_id, type, frequency, start_date, end_date, days_of_week, months_of_year)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		e.CompanyID, string(e.Type), string(e.Frequency), e.StartDate, e.EndDate, int32s(e.DaysOfWeek), int32s(e.MonthsOfYear)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPair(ctx context.Context, link VoucherLink) (int64, error) {
	var amount any
	if link.Amount != nil {
		amount = toNumeric(*link.Amount)
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO associate_voucher_pairs (event_id, original_voucher_id, original_line_item_id, result_voucher_id, result_line_item_id, amount)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		link.EventID, link.OriginalVoucherID, nullIntPtr(link.OriginalLineItemID), link.ResultVoucherID, nullIntPtr(link.ResultLineItemID), amount).Scan(&id)
	return id, err
}

func (r *txRepository) ListVoucherLinks(ctx context.Context, voucherIDs []int64) ([]VoucherLink, error) {
	return listVoucherLinks(ctx, r.tx, voucherIDs)
}

// LockLineItems writes to each line so that a concurrent repeatable-read
// transaction reversing one of them fails to serialize rather than reading
// links that miss this commit. A bare FOR UPDATE would not abort it.
func (r *txRepository) LockLineItems(ctx context.Context, lineItemIDs []int64) error {
	if len(lineItemIDs) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `UPDATE line_items SET settle_version = settle_version + 1
WHERE id IN (SELECT id FROM line_items WHERE id = ANY($1) ORDER BY id FOR UPDATE)`, lineItemIDs)
	return err
}

func (r *txRepository) LinkCertificates(ctx context.Context, voucherID int64, certificateIDs []int64) error {
	for _, certID := range certificateIDs {
		if _, err := r.tx.Exec(ctx, `INSERT INTO voucher_certificates (voucher_id, certificate_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, voucherID, certID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpsertAccount(ctx context.Context, a Account) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, debit, parent_code, root_code, liquidity)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (company_id, code) DO UPDATE SET name=EXCLUDED.name, debit=EXCLUDED.debit, parent_code=EXCLUDED.parent_code,
    root_code=EXCLUDED.root_code, liquidity=EXCLUDED.liquidity, updated_at=NOW()
RETURNING id`, a.CompanyID, a.Code, a.Name, a.DebitNormal, a.ParentCode, a.RootCode, a.Liquidity).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, notFound(EntityCompany, a.CompanyID)
		}
		return 0, err
	}
	return id, nil
}

func nullIntPtr(val *int64) any {
	if val == nil || *val == 0 {
		return nil
	}
	return *val
}

func toNumeric(v float64) any {
	return decimal.NewFromFloat(v).String()
}

func int32s(values []int) []int32 {
	out := make([]int32, 0, len(values))
	for _, v := range values {
		out = append(out, int32(v))
	}
	return out
}
