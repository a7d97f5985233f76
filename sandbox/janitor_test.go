package sandbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestJanitor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("InvalidSchedule", func(t *testing.T) {
		_, err := NewJanitor(logger, NewWorkspaceManager(logger, t.TempDir()), "every now and then", time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid janitor schedule")
	})

	t.Run("AcceptsCronAndDescriptors", func(t *testing.T) {
		for _, schedule := range []string{"*/5 * * * *", "@every 30s", "@hourly"} {
			_, err := NewJanitor(logger, NewWorkspaceManager(logger, t.TempDir()), schedule, time.Minute)
			assert.NoError(t, err, schedule)
		}
	})

	t.Run("StartSweepsImmediately", func(t *testing.T) {
		workspaces := NewWorkspaceManager(logger, t.TempDir())
		ws, err := workspaces.Stage("orphan", "py")
		require.NoError(t, err)
		old := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(ws.Path, old, old))

		j, err := NewJanitor(logger, workspaces, "@every 1h", time.Minute)
		require.NoError(t, err)

		j.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.NoError(t, j.Stop(ctx))
		}()

		assert.NoFileExists(t, ws.Path)
	})

	t.Run("FreshFilesSurvive", func(t *testing.T) {
		workspaces := NewWorkspaceManager(logger, t.TempDir())
		ws, err := workspaces.Stage("in flight", "py")
		require.NoError(t, err)

		j, err := NewJanitor(logger, workspaces, "@every 1h", time.Minute)
		require.NoError(t, err)
		j.Sweep()

		assert.FileExists(t, ws.Path)
	})
}
