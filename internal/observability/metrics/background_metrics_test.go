package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestClassifyTaskError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"deadline":  {err: fmt.Errorf("remote get: %w", context.DeadlineExceeded), want: TaskReasonDeadlineExceeded},
		"canceled":  {err: context.Canceled, want: TaskReasonDeadlineExceeded},
		"duplicate": {err: &pgconn.PgError{Code: "23505"}, want: TaskReasonUniqueViolation},
		"lock":      {err: fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "55P03"}), want: TaskReasonDBLockTimeout},
		"other":     {err: errors.New("boom"), want: TaskReasonUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyTaskError(tc.err))
		})
	}
}

func TestBackgroundMetricsCountRunsAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBackgroundMetrics(reg, Config{ServiceName: "facesaju", Environment: "test"})

	m.Start("reconcile.backfill")(nil)
	m.Start("reconcile.backfill")(errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues("reconcile.backfill")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("reconcile.backfill", TaskReasonUnknown)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))

	again := NewBackgroundMetrics(reg, Config{ServiceName: "facesaju", Environment: "test"})
	assert.Equal(t, float64(2), testutil.ToFloat64(again.runs.WithLabelValues("reconcile.backfill")))

	var nilMetrics *BackgroundMetrics
	nilMetrics.Start("noop")(errors.New("ignored"))
}
