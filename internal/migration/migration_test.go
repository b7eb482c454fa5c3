package migration

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreSequential(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	seen := []uint{version}
	for {
		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, version+1, next)
		seen = append(seen, next)
		version = next
	}
	assert.Equal(t, []uint{1, 2, 3, 4}, seen)

	for _, v := range seen {
		up, _, err := src.ReadUp(v)
		require.NoError(t, err)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		_ = up.Close()
		assert.True(t, strings.Contains(string(body), "CREATE TABLE"), "version %d", v)

		down, _, err := src.ReadDown(v)
		require.NoError(t, err)
		_ = down.Close()
	}
}

func TestPaymentEventsAreUniquePerProvider(t *testing.T) {
	body, err := embeddedMigrations.ReadFile("sql/000003_payments.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNIQUE (provider, provider_event_id)")
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
	assert.Error(t, Rollback(nil, 0))
}
