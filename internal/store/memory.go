package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"round-settlement/internal/game"
)

// Memory keeps rounds in process. Stored values are cloned on the way in and
// out so callers never share a *game.Round with the repository.
type Memory struct {
	mu     sync.RWMutex
	rounds map[string]*game.Round
	proofs map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		rounds: map[string]*game.Round{},
		proofs: map[string]string{},
	}
}

func (m *Memory) Create(_ context.Context, r *game.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rounds[r.ID]; ok {
		return game.ErrVersionConflict
	}
	if err := m.claimProofsLocked(r, 0); err != nil {
		return err
	}
	r.Version = 1
	m.rounds[r.ID] = r.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*game.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Update stores r if nobody else wrote the round since r was loaded.
func (m *Memory) Update(_ context.Context, r *game.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rounds[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != r.Version {
		return game.ErrVersionConflict
	}
	if err := m.claimProofsLocked(r, len(cur.Players)); err != nil {
		return err
	}
	r.Version++
	m.rounds[r.ID] = r.Clone()
	return nil
}

func (m *Memory) claimProofsLocked(r *game.Round, from int) error {
	if from > len(r.Players) {
		from = len(r.Players)
	}
	fresh := r.Players[from:]
	seen := make(map[string]struct{}, len(fresh))
	for _, p := range fresh {
		if p.TransferProof == "" {
			continue
		}
		if _, ok := m.proofs[p.TransferProof]; ok {
			return game.ErrProofReused
		}
		if _, ok := seen[p.TransferProof]; ok {
			return game.ErrProofReused
		}
		seen[p.TransferProof] = struct{}{}
	}
	for proof := range seen {
		m.proofs[proof] = r.ID
	}
	return nil
}

func (m *Memory) ProofConsumed(_ context.Context, proof string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.proofs[proof]
	return ok, nil
}

func (m *Memory) List(_ context.Context, f RoundFilter) ([]*game.Round, error) {
	m.mu.RLock()
	out := make([]*game.Round, 0)
	for _, r := range m.rounds {
		if f.match(r) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return page(out, f.Offset, f.limit()), nil
}

func (m *Memory) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]*game.Round, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	out := make([]*game.Round, 0)
	for _, r := range m.rounds {
		if r.HasPlayer(accountID) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()
	sortNewestFirst(out)
	return page(out, offset, limit), nil
}

// PurgeFinishedBefore drops completed and cancelled rounds that finished before cutoff.
// Consumed transfer proofs are kept so a purged proof still cannot be replayed.
func (m *Memory) PurgeFinishedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.rounds {
		if !r.Status.Finished() {
			continue
		}
		if at := finishedAt(r); at != nil && at.Before(cutoff) {
			delete(m.rounds, id)
			n++
		}
	}
	return n, nil
}

func sortNewestFirst(rounds []*game.Round) {
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].CreatedAt.Equal(rounds[j].CreatedAt) {
			return rounds[i].ID > rounds[j].ID
		}
		return rounds[i].CreatedAt.After(rounds[j].CreatedAt)
	})
}

func page(rounds []*game.Round, offset, limit int) []*game.Round {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rounds) {
		return []*game.Round{}
	}
	end := offset + limit
	if end > len(rounds) {
		end = len(rounds)
	}
	return rounds[offset:end]
}
