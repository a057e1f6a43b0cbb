package registry_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teosibileau/grillgauge/internal/probe"
	"github.com/teosibileau/grillgauge/internal/registry"
)

const (
	addrOne = "AA:BB:CC:DD:EE:01"
	addrTwo = "AA:BB:CC:DD:EE:02"
)

func openTestStore(t *testing.T) *registry.Store {
	t.Helper()

	store, err := registry.Open(registry.Config{
		DBPath: filepath.Join(t.TempDir(), "registry.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := registry.Open(registry.Config{})
	require.Error(t, err)
}

func TestListProbesEmptyDatabase(t *testing.T) {
	store := openTestStore(t)

	probes, err := store.ListProbes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, probes)
}

func TestAddProbeAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddProbe(ctx, addrTwo, "Probe2"))
	require.NoError(t, store.AddProbe(ctx, addrOne, "Probe1"))

	probes, err := store.ListProbes(ctx)
	require.NoError(t, err)
	require.Len(t, probes, 2)

	// Ordered by name, not insertion.
	assert.Equal(t, probe.DeviceID(addrOne), probes[0].Address)
	assert.Equal(t, "Probe1", probes[0].Name)
	assert.Equal(t, probe.DeviceID(addrTwo), probes[1].Address)
	assert.Equal(t, "Probe2", probes[1].Name)
}

func TestAddProbeUpsertsName(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddProbe(ctx, addrOne, "Probe1"))
	require.NoError(t, store.AddProbe(ctx, addrOne, "Left Rack"))

	probes, err := store.ListProbes(ctx)
	require.NoError(t, err)
	require.Len(t, probes, 1)
	assert.Equal(t, "Left Rack", probes[0].Name)
}

func TestRemoveProbe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddProbe(ctx, addrOne, "Probe1"))
	require.NoError(t, store.RemoveProbe(ctx, addrOne))

	probes, err := store.ListProbes(ctx)
	require.NoError(t, err)
	assert.Empty(t, probes)

	require.NoError(t, store.RemoveProbe(ctx, addrOne))
}

func TestIgnoreList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddIgnored(ctx, addrOne))
	require.NoError(t, store.AddIgnored(ctx, addrOne))
	require.NoError(t, store.AddIgnored(ctx, addrTwo))

	ignored, err := store.ListIgnored(ctx)
	require.NoError(t, err)
	assert.Len(t, ignored, 2)

	require.NoError(t, store.RemoveIgnored(ctx, addrOne))
	ignored, err = store.ListIgnored(ctx)
	require.NoError(t, err)
	require.Len(t, ignored, 1)
	assert.Equal(t, probe.DeviceID(addrTwo), ignored[0])
}

func TestProbesAndIgnoredAreIndependent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddProbe(ctx, addrOne, "Probe1"))
	require.NoError(t, store.AddIgnored(ctx, addrTwo))

	probes, err := store.ListProbes(ctx)
	require.NoError(t, err)
	require.Len(t, probes, 1)

	require.NoError(t, store.RemoveIgnored(ctx, addrTwo))
	probes, err = store.ListProbes(ctx)
	require.NoError(t, err)
	assert.Len(t, probes, 1)
}
