package localstore

import (
	"context"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Stores holds one opened Store per configured product line.
type Stores struct {
	byLine map[string]*Store
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Lines     *domain.Registry
	Clock     clock.Clock
	Log       *zap.Logger
}

func NewStores(p Params) *Stores {
	stores := OpenAll(context.Background(), p.Cfg.LocalStoreDir, p.Lines, p.Clock, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return stores.Close()
		},
	})
	return stores
}

// OpenAll opens a store for every line in lines, degrading each one to
// memory independently.
func OpenAll(ctx context.Context, dir string, lines *domain.Registry, clk clock.Clock, log *zap.Logger) *Stores {
	stores := &Stores{byLine: make(map[string]*Store)}
	for _, line := range lines.Lines() {
		stores.byLine[line.Name] = OpenOrMemory(ctx, dir, line, clk, log)
	}
	return stores
}

// NewStoresFrom wraps already opened stores.
func NewStoresFrom(stores ...*Store) *Stores {
	out := &Stores{byLine: make(map[string]*Store, len(stores))}
	for _, s := range stores {
		out.byLine[s.line.Name] = s
	}
	return out
}

func (s *Stores) For(line string) (domain.Store, error) {
	store, ok := s.byLine[line]
	if !ok {
		return nil, domain.ErrUnknownProductLine
	}
	return store, nil
}

func (s *Stores) Close() error {
	var firstErr error
	for _, store := range s.byLine {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
