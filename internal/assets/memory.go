package assets

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/promogate/promogate/internal/tenant"
)

type memKey struct {
	tenantID  string
	accountID string
}

// MemoryStore is the in-memory Store. Tests and single-shot CLI use.
type MemoryStore struct {
	mu         sync.Mutex
	nowFn      func() time.Time
	pages      map[string]map[string]Page // tenant -> page id -> page
	defaults   map[memKey]string
	compliance map[memKey]ComplianceSettings
	degraded   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nowFn:      time.Now,
		pages:      make(map[string]map[string]Page),
		defaults:   make(map[memKey]string),
		compliance: make(map[memKey]ComplianceSettings),
	}
}

// SetDegraded makes every call fail with ErrSchemaMissing, simulating a
// deployment without the asset schema.
func (s *MemoryStore) SetDegraded(v bool) {
	s.mu.Lock()
	s.degraded = v
	s.mu.Unlock()
}

func (s *MemoryStore) PagesForAccount(_ context.Context, tenantID, accountID string) ([]Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return nil, ErrSchemaMissing
	}
	accountID = tenant.NormalizeAccountID(accountID)
	var out []Page
	for _, p := range s.pages[tenantID] {
		if p.AccountID == accountID && p.Confirmed {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertPage(_ context.Context, tenantID string, page Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return ErrSchemaMissing
	}
	page.ID = tenant.NormalizePageID(page.ID)
	page.AccountID = tenant.NormalizeAccountID(page.AccountID)
	byID := s.pages[tenantID]
	if byID == nil {
		byID = make(map[string]Page)
		s.pages[tenantID] = byID
	}
	byID[page.ID] = page
	return nil
}

func (s *MemoryStore) DefaultPage(_ context.Context, tenantID, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return "", ErrSchemaMissing
	}
	return s.defaults[memKey{tenantID, tenant.NormalizeAccountID(accountID)}], nil
}

func (s *MemoryStore) SetDefaultPage(_ context.Context, tenantID, accountID, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return ErrSchemaMissing
	}
	s.defaults[memKey{tenantID, tenant.NormalizeAccountID(accountID)}] = tenant.NormalizePageID(pageID)
	return nil
}

func (s *MemoryStore) Compliance(_ context.Context, tenantID, accountID string) (ComplianceSettings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return ComplianceSettings{}, false, ErrSchemaMissing
	}
	cs, ok := s.compliance[memKey{tenantID, tenant.NormalizeAccountID(accountID)}]
	return cs, ok, nil
}

func (s *MemoryStore) SaveCompliance(_ context.Context, tenantID, accountID string, cs ComplianceSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return ErrSchemaMissing
	}
	cs.UpdatedAt = s.nowFn().UTC()
	s.compliance[memKey{tenantID, tenant.NormalizeAccountID(accountID)}] = cs
	return nil
}

var _ Store = (*MemoryStore)(nil)
