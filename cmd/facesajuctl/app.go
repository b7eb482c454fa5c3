package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/observability"
	"github.com/smallbiznis/facesaju/pkg/db"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const startTimeout = 30 * time.Second

// runWith boots the shared infrastructure plus the given modules, fills
// targets and runs fn before shutting everything down again.
func runWith(ctx context.Context, modules []fx.Option, fn func(ctx context.Context) error, targets ...any) error {
	opts := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		clock.Module,
	}
	opts = append(opts, modules...)
	opts = append(opts, fx.Populate(targets...))

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), startTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func outputJSON() bool {
	return strings.EqualFold(viper.GetString("output"), "json")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
