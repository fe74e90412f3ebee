package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. Modify holds a per-key lock, so
// chains sharing the store never interleave read-modify-write on the same record.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]*DeploymentRecord

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Key]*DeploymentRecord),
		locks:   make(map[Key]*sync.Mutex),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// Migrate is a no-op
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) keyLock(k Key) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// GetRecord retrieves a record by key
func (s *MemoryStore) GetRecord(ctx context.Context, contractName string, chainID int64) (*DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[Key{ContractName: contractName, ChainID: chainID}]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// UpsertRecord inserts or replaces the record with the same key
func (s *MemoryStore) UpsertRecord(ctx context.Context, r *DeploymentRecord) (*DeploymentRecord, error) {
	return s.Modify(ctx, r.ContractName, r.ChainID, replaceWith(r))
}

// Modify performs a locked read-modify-write of one record
func (s *MemoryStore) Modify(ctx context.Context, contractName string, chainID int64, fn ModifyFunc) (*DeploymentRecord, error) {
	key := Key{ContractName: contractName, ChainID: chainID}
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current := s.records[key].Clone()
	s.mu.RUnlock()

	next, err := applyModify(key, current, fn, s.now())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	s.mu.Lock()
	s.records[key] = next.Clone()
	s.mu.Unlock()
	return next, nil
}

// ListRecords lists records ordered by chain ID then contract name
func (s *MemoryStore) ListRecords(ctx context.Context, filter RecordFilter) ([]DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DeploymentRecord
	for _, r := range s.records {
		if filter.ChainID != 0 && r.ChainID != filter.ChainID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Verified != nil && r.Verified != *filter.Verified {
			continue
		}
		out = append(out, *r.Clone())
	}
	slices.SortFunc(out, func(a, b DeploymentRecord) int {
		return cmp.Or(cmp.Compare(a.ChainID, b.ChainID), cmp.Compare(a.ContractName, b.ContractName))
	})
	return out, nil
}
