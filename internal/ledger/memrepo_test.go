package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory RepositoryPort with transactional staging so tests
// can observe that failed saves leave nothing behind. Transactions run one at
// a time, and refs must be unique UUIDs as in the line_items and vouchers
// tables.
type memRepo struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	refs      map[string]struct{}
	entities  map[Entity]map[int64]int64
	accounts  map[int64]Account
	assets    map[int64]Asset
	vouchers  map[int64]Voucher
	events    []Event
	links     []VoucherLink
	certs     map[int64][]int64
	nextID    int64
	txCalls   int
	readCalls int

	failPair   error
	zeroIDs    bool
	linkErr    error
	listCalled int
	conflicts  int
	locked     [][]int64

	// beforeLinks runs before every pool read of voucher links.
	beforeLinks func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		entities: map[Entity]map[int64]int64{},
		accounts: map[int64]Account{},
		assets:   map[int64]Asset{},
		vouchers: map[int64]Voucher{},
		certs:    map[int64][]int64{},
		refs:     map[string]struct{}{},
		nextID:   1000,
	}
}

func (m *memRepo) add(entity Entity, companyID, id int64) {
	if m.entities[entity] == nil {
		m.entities[entity] = map[int64]int64{}
	}
	m.entities[entity][id] = companyID
}

func (m *memRepo) addAccount(a Account) {
	m.add(EntityAccount, a.CompanyID, a.ID)
	m.accounts[a.ID] = a
}

func (m *memRepo) addAsset(a Asset) {
	m.add(EntityAsset, a.CompanyID, a.ID)
	m.assets[a.ID] = a
}

// seedCompany registers company 1, user 2, counterparty 3, certificate 4 and
// cash, receivable, revenue, payable, expense and accumulated accounts.
func seedCompany() *memRepo {
	m := newMemRepo()
	m.add(EntityCompany, 0, 1)
	m.add(EntityUser, 0, 2)
	m.add(EntityCounterparty, 1, 3)
	m.add(EntityCertificate, 1, 4)
	for _, a := range []Account{
		{ID: 1110, Code: "1110", Name: "Cash", DebitNormal: true, Liquidity: true},
		{ID: 1170, Code: "1170", Name: "Accounts receivable", DebitNormal: true},
		{ID: 2170, Code: "2170", Name: "Accounts payable"},
		{ID: 4000, Code: "4000", Name: "Revenue"},
		{ID: 6100, Code: "6100", Name: "Depreciation expense", DebitNormal: true},
		{ID: 1590, Code: "1590", Name: "Accumulated depreciation"},
	} {
		a.CompanyID = 1
		m.addAccount(a)
	}
	return m
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	m.txCalls++
	if m.conflicts > 0 {
		m.conflicts--
		m.mu.Unlock()
		return fmt.Errorf("%w: could not serialize access", ErrConcurrentUpdate)
	}
	tx := &memTx{repo: m, nextID: m.nextID, vouchers: map[int64]Voucher{}, refs: map[string]struct{}{}}
	m.mu.Unlock()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ref := range tx.refs {
		m.refs[ref] = struct{}{}
	}
	for id, v := range tx.vouchers {
		m.vouchers[id] = v
		m.add(EntityVoucher, v.CompanyID, id)
	}
	m.events = append(m.events, tx.events...)
	m.links = append(m.links, tx.links...)
	for id, certs := range tx.certs {
		m.certs[id] = append(m.certs[id], certs...)
	}
	for _, a := range tx.accounts {
		m.addAccount(a)
	}
	m.nextID = tx.nextID
	return nil
}

func (m *memRepo) Exists(ctx context.Context, entity Entity, companyID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	owner, ok := m.entities[entity][id]
	if !ok {
		return false, nil
	}
	if entity == EntityCompany || entity == EntityUser {
		return true, nil
	}
	return owner == companyID, nil
}

func (m *memRepo) GetVoucher(ctx context.Context, companyID, id int64) (Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	v, ok := m.vouchers[id]
	if !ok || v.CompanyID != companyID {
		return Voucher{}, notFound(EntityVoucher, id)
	}
	return m.withAccounts(v), nil
}

func (m *memRepo) withAccounts(v Voucher) Voucher {
	out := v
	out.LineItems = make([]LineItem, len(v.LineItems))
	for i, li := range v.LineItems {
		li.Account = m.accounts[li.AccountID]
		out.LineItems[i] = li
	}
	return out
}

func (m *memRepo) GetAsset(ctx context.Context, companyID, id int64) (Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	a, ok := m.assets[id]
	if !ok || a.CompanyID != companyID {
		return Asset{}, notFound(EntityAsset, id)
	}
	return a, nil
}

func (m *memRepo) ListVoucherLinks(ctx context.Context, voucherIDs []int64) ([]VoucherLink, error) {
	if m.beforeLinks != nil {
		m.beforeLinks()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	return linksTouching(m.links, voucherIDs), nil
}

func linksTouching(links []VoucherLink, voucherIDs []int64) []VoucherLink {
	var out []VoucherLink
	for _, l := range links {
		if slices.Contains(voucherIDs, l.OriginalVoucherID) || slices.Contains(voucherIDs, l.ResultVoucherID) {
			out = append(out, l)
		}
	}
	return out
}

func (m *memRepo) ListVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalled++
	var out []Voucher
	for _, v := range m.vouchers {
		if v.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Type != nil && v.Type != *filter.Type {
			continue
		}
		if filter.DateFrom != 0 && v.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != 0 && v.Date > filter.DateTo {
			continue
		}
		out = append(out, m.withAccounts(v))
	}
	slices.SortFunc(out, func(a, b Voucher) int {
		if a.Date != b.Date {
			return int(b.Date - a.Date)
		}
		return int(b.ID - a.ID)
	})
	return out, nil
}

func (m *memRepo) MarkRead(ctx context.Context, companyID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[id]
	if !ok || v.CompanyID != companyID {
		return notFound(EntityVoucher, id)
	}
	v.HasRead = true
	m.vouchers[id] = v
	return nil
}

func (m *memRepo) ListCompanyIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for id := range m.entities[EntityCompany] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (m *memRepo) voucherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vouchers)
}

type memTx struct {
	repo     *memRepo
	nextID   int64
	vouchers map[int64]Voucher
	events   []Event
	links    []VoucherLink
	certs    map[int64][]int64
	accounts []Account
	refs     map[string]struct{}
}

// claimRef mirrors the UUID NOT NULL UNIQUE ref columns.
func (tx *memTx) claimRef(ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return fmt.Errorf("invalid input syntax for type uuid: %q", ref)
	}
	tx.repo.mu.Lock()
	_, committed := tx.repo.refs[ref]
	tx.repo.mu.Unlock()
	if _, staged := tx.refs[ref]; committed || staged {
		return fmt.Errorf("duplicate key value violates unique constraint: ref %s", ref)
	}
	tx.refs[ref] = struct{}{}
	return nil
}

func (tx *memTx) id() int64 {
	if tx.repo.zeroIDs {
		return 0
	}
	tx.nextID++
	return tx.nextID
}

func (tx *memTx) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	if err := tx.claimRef(v.Ref); err != nil {
		return Voucher{}, err
	}
	for _, li := range v.LineItems {
		if err := tx.claimRef(li.Ref); err != nil {
			return Voucher{}, err
		}
	}
	saved := v
	saved.ID = tx.id()
	saved.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saved.LineItems = make([]LineItem, len(v.LineItems))
	for i, li := range v.LineItems {
		li.ID = tx.id()
		li.VoucherID = saved.ID
		saved.LineItems[i] = li
	}
	stored := saved
	stored.LineItems = make([]LineItem, len(saved.LineItems))
	for i, li := range saved.LineItems {
		li.Correlation = ""
		stored.LineItems[i] = li
	}
	tx.vouchers[saved.ID] = stored
	return saved, nil
}

func (tx *memTx) InsertEvent(ctx context.Context, e Event) (int64, error) {
	id := tx.id()
	e.ID = id
	tx.events = append(tx.events, e)
	return id, nil
}

func (tx *memTx) InsertPair(ctx context.Context, link VoucherLink) (int64, error) {
	if tx.repo.failPair != nil {
		return 0, tx.repo.failPair
	}
	link.PairID = tx.id()
	tx.links = append(tx.links, link)
	return link.PairID, nil
}

func (tx *memTx) LinkCertificates(ctx context.Context, voucherID int64, certificateIDs []int64) error {
	if tx.certs == nil {
		tx.certs = map[int64][]int64{}
	}
	tx.certs[voucherID] = append(tx.certs[voucherID], certificateIDs...)
	return nil
}

func (tx *memTx) UpsertAccount(ctx context.Context, a Account) (int64, error) {
	if a.CompanyID == 0 {
		return 0, errors.New("company required")
	}
	if a.ID == 0 {
		a.ID = tx.id()
	}
	tx.accounts = append(tx.accounts, a)
	return a.ID, nil
}

func (tx *memTx) LockLineItems(ctx context.Context, lineItemIDs []int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.locked = append(tx.repo.locked, slices.Clone(lineItemIDs))
	return nil
}

func (tx *memTx) ListVoucherLinks(ctx context.Context, voucherIDs []int64) ([]VoucherLink, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	return append(linksTouching(tx.repo.links, voucherIDs), linksTouching(tx.links, voucherIDs)...), nil
}
