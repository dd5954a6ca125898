package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/scheduler"
)

type memHistory struct {
	mu      sync.Mutex
	records []*models.HistoryRecord
}

func (m *memHistory) Create(ctx context.Context, tx *sql.Tx, rec *models.HistoryRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec.ID, nil
}

func (m *memHistory) ListByTenant(ctx context.Context, tenantKey string, limit int) ([]*models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.HistoryRecord
	for _, r := range m.records {
		if r.TenantKey == tenantKey {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memHistory) CountSince(ctx context.Context, tenantKey string, outcome models.Outcome, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.TenantKey == tenantKey && r.Outcome == outcome && !r.ProcessedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memHistory) outcomes() []models.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Outcome
	for _, r := range m.records {
		out = append(out, r.Outcome)
	}
	return out
}

// memQueue mirrors queueRepository on a map, reusing the scheduler
// algorithms the SQL version runs inside its transaction.
type memQueue struct {
	mu      sync.Mutex
	items   map[int64]*models.QueueItem
	nextID  int64
	history *memHistory
	// clock stamps UpdatedAt when an item enters processing.
	clock time.Time
}

func newMemQueue(history *memHistory) *memQueue {
	return &memQueue{items: make(map[int64]*models.QueueItem), history: history}
}

func (m *memQueue) add(item *models.QueueItem) *models.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}
	m.items[item.ID] = item
	return item
}

func (m *memQueue) get(id int64) *models.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memQueue) pending(tenantKey string) []*models.QueueItem {
	var out []*models.QueueItem
	for _, it := range m.items {
		if it.TenantKey == tenantKey && it.Status == models.QueueStatusPending {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out
}

func (m *memQueue) Create(ctx context.Context, tx *sql.Tx, item *models.QueueItem) (int64, error) {
	return m.add(item).ID, nil
}

func (m *memQueue) GetByID(ctx context.Context, tenantKey string, id int64) (*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantKey != tenantKey {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memQueue) GetPending(ctx context.Context, tenantKey string, now time.Time, limit int) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QueueItem
	for _, it := range m.pending(tenantKey) {
		if !it.ScheduledFor.After(now) && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memQueue) ListByTenant(ctx context.Context, tenantKey string) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QueueItem
	for _, it := range m.items {
		if it.TenantKey == tenantKey {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memQueue) LastScheduled(ctx context.Context, tenantKey string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, it := range m.items {
		if it.TenantKey == tenantKey && (last == nil || it.ScheduledFor.After(*last)) {
			t := it.ScheduledFor
			last = &t
		}
	}
	return last, nil
}

func (m *memQueue) MarkProcessing(ctx context.Context, tenantKey string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != models.QueueStatusPending {
		return false, nil
	}
	it.Status = models.QueueStatusProcessing
	it.UpdatedAt = m.clock
	return true, nil
}

func (m *memQueue) GetStaleProcessing(ctx context.Context, tenantKey string, before time.Time) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QueueItem
	for _, it := range m.items {
		if it.TenantKey == tenantKey && it.Status == models.QueueStatusProcessing && it.UpdatedAt.Before(before) {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memQueue) SaveRetryState(ctx context.Context, item *models.QueueItem, prevRetryCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[item.ID]
	if !ok || it.RetryCount != prevRetryCount {
		return apperrors.New(apperrors.ErrInvalidTransition, "save retry state", fmt.Errorf("item %d changed", item.ID))
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memQueue) PromoteRetries(ctx context.Context, tenantKey string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.TenantKey == tenantKey && it.Status == models.QueueStatusRetrying && it.NextRetryAt != nil && !it.NextRetryAt.After(now) {
			it.Status = models.QueueStatusPending
			it.ScheduledFor = *it.NextRetryAt
			it.NextRetryAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memQueue) ShiftSlotsForward(ctx context.Context, tenantKey string, itemID int64) (*scheduler.ShiftPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.pending(tenantKey)
	index := scheduler.IndexOf(pending, itemID)
	if index < 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, "shift slots", fmt.Errorf("pending item %d", itemID))
	}
	plan, err := scheduler.ShiftSlots(pending, index)
	if err != nil {
		return nil, err
	}
	plan.Apply(pending)
	m.items[itemID].Status = models.QueueStatusProcessing
	m.items[itemID].UpdatedAt = m.clock
	return plan, nil
}

func (m *memQueue) DeleteAllPending(ctx context.Context, tenantKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, it := range m.items {
		if it.TenantKey == tenantKey && it.Status == models.QueueStatusPending {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *memQueue) GetOverduePending(ctx context.Context, tenantKey string, now time.Time) ([]*models.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QueueItem
	for _, it := range m.pending(tenantKey) {
		if it.ScheduledFor.Before(now) {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memQueue) RescheduleItems(ctx context.Context, tenantKey string, updates []scheduler.SlotUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		if it, ok := m.items[u.ItemID]; ok {
			it.ScheduledFor = u.ScheduledFor
		}
	}
	return nil
}

func (m *memQueue) Resolve(ctx context.Context, item *models.QueueItem, record *models.HistoryRecord) (int64, error) {
	m.mu.Lock()
	delete(m.items, item.ID)
	m.mu.Unlock()
	return m.history.Create(ctx, nil, record)
}

func (m *memQueue) MarkFailed(ctx context.Context, tenantKey string, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	it.Status = models.QueueStatusFailed
	it.LastError = errMsg
	it.NextRetryAt = nil
	return nil
}

type memLibrary struct {
	items map[int64]*models.LibraryItem
}

func (m *memLibrary) Create(ctx context.Context, item *models.LibraryItem) (int64, error) {
	if m.items == nil {
		m.items = make(map[int64]*models.LibraryItem)
	}
	item.ID = int64(len(m.items) + 1)
	m.items[item.ID] = item
	return item.ID, nil
}

func (m *memLibrary) GetByID(ctx context.Context, tenantKey string, id int64) (*models.LibraryItem, error) {
	it, ok := m.items[id]
	if !ok || it.TenantKey != tenantKey {
		return nil, nil
	}
	return it, nil
}

func (m *memLibrary) GetKnownExternalIDs(ctx context.Context, tenantKey, sourceType string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	for _, it := range m.items {
		if it.TenantKey == tenantKey && it.SourceType == sourceType {
			known[it.ExternalID] = struct{}{}
		}
	}
	return known, nil
}

func (m *memLibrary) ListUnqueued(ctx context.Context, tenantKey, category string, limit int) ([]*models.LibraryItem, error) {
	var out []*models.LibraryItem
	for _, it := range m.items {
		if it.TenantKey == tenantKey && (category == "" || it.Category == category) {
			out = append(out, it)
		}
	}
	return out, nil
}

type memTenants struct {
	mu       sync.Mutex
	settings map[string]*models.TenantSettings
}

func newMemTenants() *memTenants {
	return &memTenants{settings: make(map[string]*models.TenantSettings)}
}

func (m *memTenants) ensure(key string) *models.TenantSettings {
	s, ok := m.settings[key]
	if !ok {
		s = models.DefaultTenantSettings(key)
		m.settings[key] = s
	}
	return s
}

func (m *memTenants) Get(ctx context.Context, tenantKey string) (*models.TenantSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[tenantKey]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memTenants) Upsert(ctx context.Context, s *models.TenantSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings[s.TenantKey] = &cp
	return nil
}

func (m *memTenants) ListByPaused(ctx context.Context, paused bool) ([]*models.TenantSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TenantSettings
	for _, s := range m.settings {
		if s.Paused == paused {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memTenants) SetPaused(ctx context.Context, tenantKey string, paused bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ensure(tenantKey)
	s.Paused = paused
	if paused {
		s.PausedAt = &at
	} else {
		s.PausedAt = nil
	}
	return nil
}

func (m *memTenants) SetActiveAccount(ctx context.Context, tenantKey string, accountID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(tenantKey).ActiveAccountID = accountID
	return nil
}

func (m *memTenants) MarkOverdueSwept(ctx context.Context, tenantKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(tenantKey).LastOverdueSweepAt = &at
	return nil
}

type credKey struct {
	service string
	typ     models.CredentialType
	scope   string
}

type memCreds struct {
	mu    sync.Mutex
	creds map[credKey]*models.Credential
}

func newMemCreds() *memCreds {
	return &memCreds{creds: make(map[credKey]*models.Credential)}
}

func (m *memCreds) GetToken(ctx context.Context, service string, credType models.CredentialType, ownerScope string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[credKey{service, credType, ownerScope}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCreds) CreateOrUpdate(ctx context.Context, cred *models.Credential) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credKey{cred.Service, cred.Type, cred.OwnerScope}
	if existing, ok := m.creds[key]; ok {
		cred.ID = existing.ID
	} else {
		cred.ID = int64(len(m.creds) + 1)
	}
	cp := *cred
	m.creds[key] = &cp
	return cred.ID, nil
}

func (m *memCreds) GetExpiringTokens(ctx context.Context, from, to time.Time) ([]*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Credential
	for _, c := range m.creds {
		if c.Type == models.CredentialAccess && c.ExpiresAt != nil && !c.ExpiresAt.Before(from) && !c.ExpiresAt.After(to) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCreds) DeleteByScope(ctx context.Context, ownerScope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.creds {
		if k.scope == ownerScope {
			delete(m.creds, k)
		}
	}
	return nil
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[int64]*models.Account)}
}

func (m *memAccounts) Upsert(ctx context.Context, tx *sql.Tx, acc *models.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.accounts {
		if a.TenantKey == acc.TenantKey && a.ExternalAccountID == acc.ExternalAccountID {
			acc.ID = id
			m.accounts[id] = acc
			return id, nil
		}
	}
	acc.ID = int64(len(m.accounts) + 1)
	m.accounts[acc.ID] = acc
	return acc.ID, nil
}

func (m *memAccounts) GetByID(ctx context.Context, tenantKey string, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.TenantKey != tenantKey {
		return nil, nil
	}
	return a, nil
}

func (m *memAccounts) ListByTenant(ctx context.Context, tenantKey string) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.accounts {
		if a.TenantKey == tenantKey {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAccounts) Remove(ctx context.Context, tenantKey string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []int64
	err        error
}

func (f *fakeDispatcher) DispatchPost(ctx context.Context, tenantKey string, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, itemID)
	return nil
}
