package chat

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/docstore"
	"github.com/caioluan/tabchat/internal/presence"
)

type testEnv struct {
	store     *docstore.SQLite
	bus       *bus.Bus
	registry  *Registry
	tabs      *Tabs
	sequencer *Sequencer
	users     *Users
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	store, err := docstore.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	b := bus.New()
	logger := zap.NewNop()
	registry := NewRegistry(store, b, logger)
	tabs := NewTabs(store, b, logger)
	return &testEnv{
		store:     store,
		bus:       b,
		registry:  registry,
		tabs:      tabs,
		sequencer: NewSequencer(store, registry, tabs, b, logger),
		users:     NewUsers(store, presence.NewMemory(), b, logger),
	}
}
