package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/facesaju/internal/observability/metrics"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DefaultBackgroundTimeout bounds detached work started by Load and Push.
const DefaultBackgroundTimeout = 15 * time.Second

var ErrRemoteUnavailable = errors.New("remote_unavailable")

type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Remote is the authoritative store as seen by the reconciler.
type Remote interface {
	Get(ctx context.Context, line domain.ProductLine, id string) (*domain.AnalysisRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, line domain.ProductLine, rec *domain.AnalysisRecord) (*domain.AnalysisRecord, bool, error)
}

type Result struct {
	Record *domain.AnalysisRecord
	Source Source
}

// NotFoundError is a navigation outcome: nothing is stored for the id on
// either side and the caller should restart from Redirect.
type NotFoundError struct {
	ProductLine string
	ID          string
	Redirect    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s/%s not found", e.ProductLine, e.ID)
}

func (e *NotFoundError) Unwrap() error { return domain.ErrRecordNotFound }

// StartPath is the input screen of a product line.
func StartPath(line string) string {
	return "/" + strings.ReplaceAll(line, "_", "-")
}

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle `optional:"true"`
	Stores     domain.StoreSet
	Lines      *domain.Registry
	Remote     Remote
	Log        *zap.Logger
	Metrics    *metrics.Metrics           `optional:"true"`
	Background *metrics.BackgroundMetrics `optional:"true"`
}

type Service struct {
	stores     domain.StoreSet
	lines      *domain.Registry
	remote     Remote
	log        *zap.Logger
	metrics    *metrics.Metrics
	background *metrics.BackgroundMetrics
	timeout    time.Duration

	wg sync.WaitGroup
}

func New(p Params) *Service {
	s := &Service{
		stores:     p.Stores,
		lines:      p.Lines,
		remote:     p.Remote,
		log:        p.Log.Named("reconcile.service"),
		metrics:    p.Metrics,
		background: p.Background,
		timeout:    DefaultBackgroundTimeout,
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return s.WaitContext(ctx)
			},
		})
	}
	return s
}

// Load answers from whichever store has the record, local first. Remote
// enrichment, local caching and backfill run after Load returns.
func (s *Service) Load(ctx context.Context, lineName, id string) (*Result, error) {
	line, store, err := s.resolve(lineName)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &NotFoundError{ProductLine: line.Name, ID: id, Redirect: StartPath(line.Name)}
	}

	local, err := store.Get(ctx, id)
	if err != nil {
		s.log.Warn("local read failed, trying remote",
			zap.String("product_line", line.Name),
			zap.String("record_id", id),
			zap.Error(err),
		)
		local = nil
	}
	if local != nil {
		s.metrics.RecordReconcile(ctx, line.Name, "local_hit")
		s.detach(ctx, "reconcile.enrich", func(bg context.Context) error {
			return s.enrich(bg, line, store, local)
		})
		return &Result{Record: local, Source: SourceLocal}, nil
	}

	remote, err := s.remote.Get(ctx, line, id)
	if errors.Is(err, domain.ErrProductLineMismatch) {
		// the id belongs to another product line
		s.metrics.RecordReconcile(ctx, line.Name, "line_mismatch")
		return nil, &NotFoundError{ProductLine: line.Name, ID: id, Redirect: StartPath(line.Name)}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if remote == nil {
		s.metrics.RecordReconcile(ctx, line.Name, "not_found")
		return nil, &NotFoundError{ProductLine: line.Name, ID: id, Redirect: StartPath(line.Name)}
	}

	s.metrics.RecordReconcile(ctx, line.Name, "remote_hit")
	cached := remote.Clone()
	s.detach(ctx, "reconcile.cache", func(bg context.Context) error {
		if _, _, err := store.Merge(bg, cached); err != nil {
			s.log.Warn("cache remote record locally",
				zap.String("product_line", line.Name),
				zap.String("record_id", id),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
	return &Result{Record: remote, Source: SourceRemote}, nil
}

// enrich pulls paid facts from the remote copy into the local one, then
// pushes back anything the remote is missing. A remote without the row
// gets a fallback save so shared links keep working.
func (s *Service) enrich(ctx context.Context, line domain.ProductLine, store domain.Store, local *domain.AnalysisRecord) error {
	fields := []zap.Field{zap.String("product_line", line.Name), zap.String("record_id", local.ID)}

	remote, err := s.remote.Get(ctx, line, local.ID)
	if err != nil {
		s.log.Warn("remote lookup failed", append(fields, zap.Error(err))...)
		return err
	}
	if remote == nil {
		if _, _, err := s.remote.Upsert(ctx, line, local); err != nil {
			s.log.Warn("fallback save failed", append(fields, zap.Error(err))...)
			return err
		}
		s.metrics.RecordReconcile(ctx, line.Name, "fallback_saved")
		return nil
	}

	current := local
	if domain.Missing(remote, local, line) {
		// the record may have been deleted while the lookup was in flight
		still, err := store.Get(ctx, local.ID)
		if err != nil {
			s.log.Warn("re-read before merge failed", append(fields, zap.Error(err))...)
			return err
		}
		if still == nil {
			s.log.Info("dropping late remote result for deleted record", fields...)
			return nil
		}
		merged, changed, err := store.Merge(ctx, remote)
		if err != nil {
			s.log.Warn("merge remote into local failed", append(fields, zap.Error(err))...)
			return err
		}
		if changed {
			s.metrics.RecordReconcile(ctx, line.Name, "merged_remote")
		}
		current = merged
	}

	if domain.Missing(current, remote, line) {
		if _, _, err := s.remote.Upsert(ctx, line, current); err != nil {
			s.log.Warn("remote backfill failed", append(fields, zap.Error(err))...)
			return err
		}
		s.metrics.RecordReconcile(ctx, line.Name, "backfilled")
	}
	return nil
}

// Push synchronously upserts the local record to the remote store and
// folds back anything the remote already knew.
func (s *Service) Push(ctx context.Context, lineName, id string) (*domain.AnalysisRecord, error) {
	line, store, err := s.resolve(lineName)
	if err != nil {
		return nil, err
	}
	local, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, domain.ErrRecordNotFound
	}
	merged, _, err := s.remote.Upsert(ctx, line, local)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if !domain.Missing(merged, local, line) {
		return local, nil
	}
	updated, _, err := store.Merge(ctx, merged)
	if err != nil {
		s.log.Warn("fold remote state into local failed",
			zap.String("product_line", line.Name),
			zap.String("record_id", id),
			zap.Error(err),
		)
		return local, nil
	}
	return updated, nil
}

// PushAsync runs Push detached from the caller. Failures are logged.
func (s *Service) PushAsync(ctx context.Context, lineName, id string) {
	s.detach(ctx, "reconcile.push", func(bg context.Context) error {
		_, err := s.Push(bg, lineName, id)
		if err != nil {
			s.log.Warn("background push failed",
				zap.String("product_line", lineName),
				zap.String("record_id", id),
				zap.Error(err),
			)
		}
		return err
	})
}

// Wait blocks until all detached work has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) detach(parent context.Context, task string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
	end := s.background.Start(task)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		end(fn(ctx))
	}()
}

func (s *Service) resolve(lineName string) (domain.ProductLine, domain.Store, error) {
	line, err := s.lines.Line(lineName)
	if err != nil {
		return domain.ProductLine{}, nil, err
	}
	store, err := s.stores.For(line.Name)
	if err != nil {
		return domain.ProductLine{}, nil, err
	}
	return line, store, nil
}
