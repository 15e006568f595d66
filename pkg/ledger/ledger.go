// Package ledger keeps a bounded, most-recent-first history of submitted transactions.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"oft-bridge/pkg/store"
)

const (
	MaxRecords = 100
	StorageKey = "oft-bridge:transactions"
)

// Ledger is an append-only record list persisted as one JSON array. Index 0 is the
// newest record; inserts past MaxRecords evict from the tail.
//
// Status transitions are not validated: UpdateStatus will move success back to
// pending if asked. Callers own monotonicity.
type Ledger struct {
	store   store.Store
	logger  *zap.Logger
	nowFn   func() time.Time
	mu      sync.Mutex
	records []Record
	lastID  int64
}

// Option configures a Ledger
type Option func(*Ledger)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger.Named("ledger")
		}
	}
}

func WithClock(nowFn func() time.Time) Option {
	return func(l *Ledger) { l.nowFn = nowFn }
}

// New hydrates a ledger from s. A missing key starts an empty ledger; a corrupt value
// is an error rather than silently discarded history.
func New(ctx context.Context, s store.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:   s,
		logger:  zap.NewNop(),
		nowFn:   time.Now,
		records: []Record{},
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, found, err := s.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if found && raw != "" {
		if err := json.Unmarshal([]byte(raw), &l.records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
		}
	}
	for _, r := range l.records {
		if r.ID > l.lastID {
			l.lastID = r.ID
		}
	}
	if len(l.records) > MaxRecords {
		l.records = l.records[:MaxRecords]
	}

	return l, nil
}

// Add assigns an id, prepends the record and persists. The record's ID field is ignored.
func (l *Ledger) Add(ctx context.Context, record Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record.ID = l.nextID()
	if record.TimestampMs == 0 {
		record.TimestampMs = l.nowFn().UnixMilli()
	}

	l.records = append([]Record{record}, l.records...)
	if len(l.records) > MaxRecords {
		evicted := len(l.records) - MaxRecords
		l.records = l.records[:MaxRecords]
		l.logger.Debug("evicted oldest records", zap.Int("count", evicted))
	}

	if err := l.persist(ctx); err != nil {
		return record, err
	}

	l.logger.Debug("recorded transaction",
		zap.Int64("id", record.ID),
		zap.String("hash", record.Hash),
		zap.String("status", string(record.Status)))

	return record, nil
}

// nextID is time-based but never repeats or goes backwards within a process
func (l *Ledger) nextID() int64 {
	id := l.nowFn().UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return id
}

// UpdateStatus sets the status of the first record with the given hash. It returns
// false, without error, if no record matches. Records of sends that never reached the
// chain have no hash and cannot be addressed.
func (l *Ledger) UpdateStatus(ctx context.Context, hash string, status Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown status %q", status)
	}
	if hash == "" {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		if l.records[i].Hash == hash {
			l.records[i].Status = status
			return true, l.persist(ctx)
		}
	}

	return false, nil
}

// FindByHash returns a copy of the first record with the given hash
func (l *Ledger) FindByHash(hash string) (Record, bool) {
	if hash == "" {
		return Record{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.Hash == hash {
			return r, true
		}
	}
	return Record{}, false
}

// GetAll returns every record, newest first
func (l *Ledger) GetAll() []Record {
	return l.filter(func(*Record) bool { return true })
}

// GetByType returns records of one kind
func (l *Ledger) GetByType(kind Kind) []Record {
	return l.filter(func(r *Record) bool { return r.Kind == kind })
}

// GetByWallet returns records sent from or to address
func (l *Ledger) GetByWallet(address string) []Record {
	return l.filter(func(r *Record) bool { return r.Involves(address) })
}

// GetByChain returns records that left from or arrived on chainID
func (l *Ledger) GetByChain(chainID uint64) []Record {
	return l.filter(func(r *Record) bool { return r.OnChain(chainID) })
}

// GetPending returns records still awaiting a terminal status
func (l *Ledger) GetPending() []Record {
	return l.filter(func(r *Record) bool { return r.IsPending() })
}

// GetPendingByType returns pending records of one kind
func (l *Ledger) GetPendingByType(kind Kind) []Record {
	return l.filter(func(r *Record) bool { return r.IsPending() && r.Kind == kind })
}

// Len returns the number of records held
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// ClearAll empties the ledger and its persisted copy
func (l *Ledger) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = []Record{}
	if err := l.store.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	return nil
}

func (l *Ledger) filter(keep func(*Record) bool) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, len(l.records))
	for i := range l.records {
		if keep(&l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	return out
}

// persist must be called with l.mu held
func (l *Ledger) persist(ctx context.Context) error {
	data, err := json.Marshal(l.records)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := l.store.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist ledger: %w", err)
	}
	return nil
}
