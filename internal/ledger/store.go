package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pltax/settlement-engine/internal/domain"
)

// Store persists ledger records. WithTx runs fn atomically: either every
// save inside fn becomes visible or none does.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes the reads and writes available inside a ledger transaction.
// Reads lock the returned rows until the transaction ends.
type Tx interface {
	LossRecords(ctx context.Context, clientID string, taxType domain.TaxType) ([]*domain.LossRecord, error)
	LossRecord(ctx context.Context, id uuid.UUID) (*domain.LossRecord, error)
	SaveLossRecord(ctx context.Context, rec *domain.LossRecord) error

	CarryForwards(ctx context.Context, clientID string) ([]*domain.VatCarryForward, error)
	CarryForward(ctx context.Context, id uuid.UUID) (*domain.VatCarryForward, error)
	SaveCarryForward(ctx context.Context, cf *domain.VatCarryForward) error
}

// MemoryStore keeps ledger records in process. Transactions are serialized
// and staged, so a failing callback leaves the store untouched.
type MemoryStore struct {
	mu      sync.Mutex
	losses  map[uuid.UUID]*domain.LossRecord
	credits map[uuid.UUID]*domain.VatCarryForward
}

// NewMemoryStore returns an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		losses:  make(map[uuid.UUID]*domain.LossRecord),
		credits: make(map[uuid.UUID]*domain.VatCarryForward),
	}
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:   s,
		losses:  make(map[uuid.UUID]*domain.LossRecord),
		credits: make(map[uuid.UUID]*domain.VatCarryForward),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, rec := range tx.losses {
		s.losses[id] = rec
	}
	for id, cf := range tx.credits {
		s.credits[id] = cf
	}
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	losses  map[uuid.UUID]*domain.LossRecord
	credits map[uuid.UUID]*domain.VatCarryForward
}

func (tx *memoryTx) LossRecords(_ context.Context, clientID string, taxType domain.TaxType) ([]*domain.LossRecord, error) {
	var out []*domain.LossRecord
	seen := make(map[uuid.UUID]bool)
	for id, rec := range tx.losses {
		seen[id] = true
		if rec.ClientID == clientID && rec.TaxType == taxType {
			out = append(out, cloneLoss(rec))
		}
	}
	for id, rec := range tx.store.losses {
		if !seen[id] && rec.ClientID == clientID && rec.TaxType == taxType {
			out = append(out, cloneLoss(rec))
		}
	}
	return out, nil
}

func (tx *memoryTx) LossRecord(_ context.Context, id uuid.UUID) (*domain.LossRecord, error) {
	if rec, ok := tx.losses[id]; ok {
		return cloneLoss(rec), nil
	}
	if rec, ok := tx.store.losses[id]; ok {
		return cloneLoss(rec), nil
	}
	return nil, domain.NotFound("LOSS_RECORD_NOT_FOUND", "loss record %s not found", id)
}

func (tx *memoryTx) SaveLossRecord(_ context.Context, rec *domain.LossRecord) error {
	tx.losses[rec.ID] = cloneLoss(rec)
	return nil
}

func (tx *memoryTx) CarryForwards(_ context.Context, clientID string) ([]*domain.VatCarryForward, error) {
	var out []*domain.VatCarryForward
	seen := make(map[uuid.UUID]bool)
	for id, cf := range tx.credits {
		seen[id] = true
		if cf.ClientID == clientID {
			out = append(out, cloneCredit(cf))
		}
	}
	for id, cf := range tx.store.credits {
		if !seen[id] && cf.ClientID == clientID {
			out = append(out, cloneCredit(cf))
		}
	}
	return out, nil
}

func (tx *memoryTx) CarryForward(_ context.Context, id uuid.UUID) (*domain.VatCarryForward, error) {
	if cf, ok := tx.credits[id]; ok {
		return cloneCredit(cf), nil
	}
	if cf, ok := tx.store.credits[id]; ok {
		return cloneCredit(cf), nil
	}
	return nil, domain.NotFound("CARRY_FORWARD_NOT_FOUND", "carry-forward %s not found", id)
}

func (tx *memoryTx) SaveCarryForward(_ context.Context, cf *domain.VatCarryForward) error {
	tx.credits[cf.ID] = cloneCredit(cf)
	return nil
}

func cloneLoss(rec *domain.LossRecord) *domain.LossRecord {
	c := *rec
	c.UsageHistory = append([]domain.LossUsage(nil), rec.UsageHistory...)
	return &c
}

func cloneCredit(cf *domain.VatCarryForward) *domain.VatCarryForward {
	c := *cf
	c.Applications = append([]domain.CarryForwardApplication(nil), cf.Applications...)
	return &c
}
