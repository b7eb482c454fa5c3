package localstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/zap"
)

// Store is the local RecordStore of one product line. Every method holding
// a read-modify-write takes the per-id lock, so two updates to the same
// record never interleave.
type Store struct {
	line    domain.ProductLine
	backend backend
	clock   clock.Clock
	log     *zap.Logger
	locks   *keyedMutex
	durable bool
}

var _ domain.Store = (*Store)(nil)

// Open returns a ready store backed by an embedded SQLite file under dir.
// Any failure is reported as domain.ErrStorageUnavailable.
func Open(ctx context.Context, dir string, line domain.ProductLine, clk clock.Clock, log *zap.Logger) (*Store, error) {
	b, err := openSQLite(ctx, dir, line.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return newStore(line, b, clk, log, true), nil
}

// OpenMemory returns a store that lives only as long as the process.
func OpenMemory(line domain.ProductLine, clk clock.Clock, log *zap.Logger) *Store {
	return newStore(line, newMemoryBackend(), clk, log, false)
}

// OpenOrMemory degrades to a memory store when the embedded database is
// unavailable. It never fails.
func OpenOrMemory(ctx context.Context, dir string, line domain.ProductLine, clk clock.Clock, log *zap.Logger) *Store {
	s, err := Open(ctx, dir, line, clk, log)
	if err == nil {
		return s
	}
	log.Warn("local store unavailable, using memory",
		zap.String("product_line", line.Name),
		zap.Error(err),
	)
	return OpenMemory(line, clk, log)
}

func newStore(line domain.ProductLine, b backend, clk clock.Clock, log *zap.Logger, durable bool) *Store {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		line:    line,
		backend: b,
		clock:   clk,
		log:     log.Named("record.localstore").With(zap.String("product_line", line.Name)),
		locks:   newKeyedMutex(),
		durable: durable,
	}
}

func (s *Store) Line() domain.ProductLine { return s.line }

// Durable is false for the memory fallback.
func (s *Store) Durable() bool { return s.durable }

func (s *Store) Close() error { return s.backend.close() }

func (s *Store) Create(ctx context.Context, rec *domain.AnalysisRecord) error {
	if rec == nil {
		return domain.ErrInvalidRecordID
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return domain.ErrInvalidRecordID
	}
	if rec.ProductLine != "" && rec.ProductLine != s.line.Name {
		return domain.ErrProductLineMismatch
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.clock.Now().UTC()
	draft := rec.Clone()
	draft.ID = id
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now
	domain.Normalize(draft, s.line)

	payload, err := domain.Encode(draft)
	if err != nil {
		return err
	}
	if err := s.backend.insert(ctx, id, payload, now); err != nil {
		return err
	}
	*rec = *draft
	return nil
}

// Get returns nil, nil for an unknown id. Older shapes are upgraded on read
// and written back in the current shape.
func (s *Store) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	payload, err := s.backend.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	rec, upgraded, err := domain.Decode(payload, s.line)
	if err != nil {
		return nil, err
	}
	if upgraded {
		if err := s.write(ctx, rec); err != nil {
			s.log.Warn("rewrite upgraded record", zap.String("record_id", id), zap.Error(err))
		}
	}
	return rec, nil
}

func (s *Store) write(ctx context.Context, rec *domain.AnalysisRecord) error {
	payload, err := domain.Encode(rec)
	if err != nil {
		return err
	}
	return s.backend.save(ctx, rec.ID, payload, s.clock.Now().UTC())
}

func (s *Store) Update(ctx context.Context, id string, patch domain.Patch) (*domain.AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrRecordNotFound
	}
	if err := domain.ApplyPatch(rec, s.line, patch, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) MarkPaid(ctx context.Context, id string, slot domain.SlotKey, info domain.PaymentInfo) (*domain.AnalysisRecord, error) {
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrRecordNotFound
	}
	applied, err := domain.ApplyPayment(rec, s.line, slot, info, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !applied {
		return rec, nil
	}
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Merge(ctx context.Context, incoming *domain.AnalysisRecord) (*domain.AnalysisRecord, bool, error) {
	if incoming == nil || strings.TrimSpace(incoming.ID) == "" {
		return nil, false, domain.ErrInvalidRecordID
	}
	if incoming.ProductLine != "" && incoming.ProductLine != s.line.Name {
		return nil, false, domain.ErrProductLineMismatch
	}
	id := strings.TrimSpace(incoming.ID)
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	merged, changed := domain.MergeMostUnlocked(current, incoming, s.line)
	merged.ID = id
	if !changed {
		return merged, false, nil
	}

	now := s.clock.Now().UTC()
	merged.UpdatedAt = now
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = now
	}
	payload, err := domain.Encode(merged)
	if err != nil {
		return nil, false, err
	}
	if current == nil {
		err = s.backend.insert(ctx, id, payload, now)
	} else {
		err = s.backend.save(ctx, id, payload, now)
	}
	if err != nil {
		return nil, false, err
	}
	return merged, true, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	unlock := s.locks.Lock(id)
	defer unlock()

	payload, err := s.backend.load(ctx, id)
	if err != nil {
		return err
	}
	if payload == nil {
		return domain.ErrRecordNotFound
	}
	return s.backend.remove(ctx, id, s.clock.Now().UTC())
}
