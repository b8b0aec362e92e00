package settlement

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// DeclarationStore persists income-tax declarations and their correction chains.
type DeclarationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Declaration, error)
	// Current returns the newest version filed for the slot, or NotFound.
	Current(ctx context.Context, key domain.PeriodKey) (*domain.Declaration, error)
	History(ctx context.Context, key domain.PeriodKey) ([]domain.Declaration, error)
	Save(ctx context.Context, d *domain.Declaration) error
}

// TransactionStore persists VAT transactions.
type TransactionStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.VatTransaction, error)
	Transactions(ctx context.Context, clientID string, period dateutil.YearMonth) ([]domain.VatTransaction, error)
	Save(ctx context.Context, txs ...domain.VatTransaction) error
}

// SettlementStore persists VAT settlement versions.
type SettlementStore interface {
	// Latest returns the newest settlement version for the period, or NotFound.
	Latest(ctx context.Context, clientID string, period dateutil.YearMonth) (*domain.VatSettlement, error)
	Save(ctx context.Context, s *domain.VatSettlement) error
}

// ProfileProvider supplies client eligibility flags.
type ProfileProvider interface {
	Profile(ctx context.Context, clientID string) (domain.ClientProfile, error)
}

// MemoryDeclarationStore is an in-process DeclarationStore.
type MemoryDeclarationStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]domain.Declaration
}

// NewMemoryDeclarationStore returns an empty store.
func NewMemoryDeclarationStore() *MemoryDeclarationStore {
	return &MemoryDeclarationStore{items: make(map[uuid.UUID]domain.Declaration)}
}

func (s *MemoryDeclarationStore) Get(_ context.Context, id uuid.UUID) (*domain.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.items[id]
	if !ok {
		return nil, domain.NotFound("DECLARATION_NOT_FOUND", "declaration %s not found", id)
	}
	return &d, nil
}

func (s *MemoryDeclarationStore) Current(ctx context.Context, key domain.PeriodKey) (*domain.Declaration, error) {
	history, err := s.History(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, domain.NotFound("DECLARATION_NOT_FOUND", "no declaration for %s %s %d/%d", key.ClientID, key.TaxType, key.TaxYear, key.Period)
	}
	d := history[len(history)-1]
	return &d, nil
}

func (s *MemoryDeclarationStore) History(_ context.Context, key domain.PeriodKey) ([]domain.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Declaration
	for _, d := range s.items {
		if d.Key() == key {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CorrectionNumber < out[j].CorrectionNumber })
	return out, nil
}

func (s *MemoryDeclarationStore) Save(_ context.Context, d *domain.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[d.ID] = *d
	return nil
}

// MemoryTransactionStore is an in-process TransactionStore that keeps insertion order.
type MemoryTransactionStore struct {
	mu    sync.RWMutex
	order []uuid.UUID
	items map[uuid.UUID]domain.VatTransaction
}

// NewMemoryTransactionStore returns an empty store.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{items: make(map[uuid.UUID]domain.VatTransaction)}
}

func (s *MemoryTransactionStore) Get(_ context.Context, id uuid.UUID) (domain.VatTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.items[id]
	if !ok {
		return domain.VatTransaction{}, domain.NotFound("TRANSACTION_NOT_FOUND", "VAT transaction %s not found", id)
	}
	return tx, nil
}

func (s *MemoryTransactionStore) Transactions(_ context.Context, clientID string, period dateutil.YearMonth) ([]domain.VatTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VatTransaction
	for _, id := range s.order {
		tx := s.items[id]
		if tx.ClientID == clientID && tx.Period == period {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryTransactionStore) Save(_ context.Context, txs ...domain.VatTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if _, ok := s.items[tx.ID]; !ok {
			s.order = append(s.order, tx.ID)
		}
		s.items[tx.ID] = tx
	}
	return nil
}

type settlementKey struct {
	clientID string
	period   dateutil.YearMonth
}

// MemorySettlementStore is an in-process SettlementStore.
type MemorySettlementStore struct {
	mu    sync.RWMutex
	items map[settlementKey][]domain.VatSettlement
}

// NewMemorySettlementStore returns an empty store.
func NewMemorySettlementStore() *MemorySettlementStore {
	return &MemorySettlementStore{items: make(map[settlementKey][]domain.VatSettlement)}
}

func (s *MemorySettlementStore) Latest(_ context.Context, clientID string, period dateutil.YearMonth) (*domain.VatSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.items[settlementKey{clientID, period}]
	if len(versions) == 0 {
		return nil, domain.NotFound("SETTLEMENT_NOT_FOUND", "no VAT settlement for %s %s", clientID, period)
	}
	latest := versions[len(versions)-1]
	return &latest, nil
}

func (s *MemorySettlementStore) Save(_ context.Context, st *domain.VatSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := settlementKey{st.ClientID, st.Period}
	versions := s.items[key]
	for i := range versions {
		if versions[i].ID == st.ID {
			versions[i] = *st
			return nil
		}
	}
	versions = append(versions, *st)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	s.items[key] = versions
	return nil
}

// MemoryProfiles is a ProfileProvider backed by a map.
type MemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[string]domain.ClientProfile
}

// NewMemoryProfiles returns a provider holding the given profiles.
func NewMemoryProfiles(profiles ...domain.ClientProfile) *MemoryProfiles {
	p := &MemoryProfiles{profiles: make(map[string]domain.ClientProfile)}
	for _, prof := range profiles {
		p.profiles[prof.ClientID] = prof
	}
	return p
}

// Put adds or replaces a profile.
func (p *MemoryProfiles) Put(prof domain.ClientProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[prof.ClientID] = prof
}

func (p *MemoryProfiles) Profile(_ context.Context, clientID string) (domain.ClientProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[clientID]
	if !ok {
		return domain.ClientProfile{}, domain.NotFound("PROFILE_NOT_FOUND", "client profile %s not found", clientID)
	}
	return prof, nil
}
