package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/herald/internal/a2s"
	"github.com/woozymasta/herald/internal/config"
	"github.com/woozymasta/herald/internal/fake"
	"github.com/woozymasta/herald/internal/models"
	"github.com/woozymasta/herald/internal/poller"
	"github.com/woozymasta/herald/internal/storage"
	"github.com/woozymasta/herald/internal/targets"
)

func setup(t *testing.T) (*storage.Repository, *poller.Poller) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "herald.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, poller.New(a2s.New(200*time.Millisecond), store, nil, poller.Options{})
}

func status(t targets.Target) models.ServerStatus {
	return models.ServerStatus{Key: t.Key(), Name: t.Name, Host: t.Host, Port: t.Port, LastChecked: time.Now()}
}

func TestRunNothing(t *testing.T) {
	store, p := setup(t)
	assert.False(t, Run(context.Background(), &config.Config{}, store, p))
}

func TestPrune(t *testing.T) {
	store, p := setup(t)

	known := targets.Target{Name: "known", Host: "10.0.0.1", Port: 27015}
	unknown := targets.Target{Name: "unknown", Host: "10.0.0.2", Port: 27015}
	offline := targets.Target{Name: "offline", Host: "10.0.0.3", Port: 27015}

	require.NoError(t, store.UpsertStatus(status(known)))
	require.NoError(t, store.UpsertStatus(status(unknown)))
	require.NoError(t, store.MarkFailed(status(offline)))
	p.SetTargets([]targets.Target{known, offline})

	cfg := &config.Config{}
	cfg.Storage.PruneOffline = true
	cfg.Storage.PruneUnknown = true
	require.True(t, Run(context.Background(), cfg, store, p))

	all, err := store.GetStatuses()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "known", all[0].Name)
}

func TestCheckAll(t *testing.T) {
	store, p := setup(t)

	r, err := fake.Listen("127.0.0.1:0", fake.Reply(fake.EncodeInfo(fake.RandomInfo())))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	up := targets.Target{Name: "up", Host: r.Host(), Port: r.Port()}
	p.SetTargets([]targets.Target{up})

	cfg := &config.Config{}
	cfg.Storage.CheckAll = true
	require.True(t, Run(context.Background(), cfg, store, p))

	s, err := store.GetStatus(up.Key())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.Online)
}
