package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/docstore"
)

// Tabs creates, orders, renames, and deletes topic tabs within a
// conversation. The default tab is permanent: delete always refuses it.
type Tabs struct {
	store  docstore.Store
	bus    *bus.Bus
	logger *zap.Logger
	convs  *keyedMutex
}

// NewTabs creates a tab lifecycle manager backed by the store.
func NewTabs(store docstore.Store, b *bus.Bus, logger *zap.Logger) *Tabs {
	return &Tabs{
		store:  store,
		bus:    b,
		logger: logger,
		convs:  newKeyedMutex(),
	}
}

// Get returns a tab by id.
func (t *Tabs) Get(ctx context.Context, tabID string) (*Tab, error) {
	doc, err := t.store.Get(ctx, docstore.CollectionTabs, tabID)
	if err != nil {
		return nil, err
	}
	return tabFromDoc(doc), nil
}

// List returns a conversation's tabs in display order.
func (t *Tabs) List(ctx context.Context, conversationID string) ([]*Tab, error) {
	docs, err := t.store.Query(ctx, docstore.CollectionTabs,
		[]docstore.Filter{docstore.Where("conversationId", docstore.OpEq, conversationID)},
		&docstore.OrderBy{Field: "tabOrder"}, 0)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	out := make([]*Tab, len(docs))
	for i := range docs {
		out[i] = tabFromDoc(&docs[i])
	}
	return out, nil
}

// Create appends a new non-default tab at the end of the display order.
func (t *Tabs) Create(ctx context.Context, conversationID, creatorID, name string) (*Tab, error) {
	if creatorID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := t.store.Get(ctx, docstore.CollectionConversations, conversationID); err != nil {
		return nil, err
	}

	unlock := t.convs.Lock(conversationID)
	defer unlock()

	existing, err := t.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var next int64
	if n := len(existing); n > 0 {
		next = existing[n-1].Order + 1
	}

	tab := &Tab{
		ConversationID: conversationID,
		Name:           name,
		Order:          next,
		IsDefault:      false,
		CreatedBy:      creatorID,
	}
	id, err := t.store.Create(ctx, docstore.CollectionTabs, tabDoc(tab), "")
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	tab.ID = id

	t.bus.Publish(bus.Event{
		Kind:      bus.KindTabCreated,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": conversationID, "tab_id": id},
	})
	return tab, nil
}

// Reorder reassigns orders 0..n-1 to match the given sequence, as a single
// atomic batch so readers never observe a partial or duplicate ordering.
// The id set must exactly cover the conversation's tabs.
func (t *Tabs) Reorder(ctx context.Context, conversationID string, orderedTabIDs []string) error {
	unlock := t.convs.Lock(conversationID)
	defer unlock()

	existing, err := t.List(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(orderedTabIDs) != len(existing) {
		return fmt.Errorf("%w: reorder got %d ids, conversation has %d tabs",
			ErrInvariant, len(orderedTabIDs), len(existing))
	}
	known := make(map[string]bool, len(existing))
	for _, tab := range existing {
		known[tab.ID] = true
	}

	writes := make([]docstore.Write, 0, len(orderedTabIDs))
	for i, id := range orderedTabIDs {
		if !known[id] {
			return fmt.Errorf("%w: tab %s does not belong to conversation %s",
				ErrInvariant, id, conversationID)
		}
		known[id] = false
		writes = append(writes, docstore.Write{
			Kind:       docstore.WriteUpdate,
			Collection: docstore.CollectionTabs,
			ID:         id,
			Data:       map[string]any{"tabOrder": int64(i)},
		})
	}

	if err := t.store.Batch(ctx, writes); err != nil {
		return fmt.Errorf("reorder tabs: %w", err)
	}

	t.bus.Publish(bus.Event{
		Kind:      bus.KindTabReordered,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": conversationID},
	})
	return nil
}

// Rename sets a tab's display name unconditionally. Topic detection enters
// through here as well.
func (t *Tabs) Rename(ctx context.Context, tabID, newName string) error {
	err := t.store.Update(ctx, docstore.CollectionTabs, tabID,
		map[string]any{"name": newName})
	if err != nil {
		return fmt.Errorf("rename tab: %w", err)
	}

	t.bus.Publish(bus.Event{
		Kind:      bus.KindTabRenamed,
		Timestamp: time.Now(),
		Payload:   map[string]string{"tab_id": tabID, "name": newName},
	})
	return nil
}

// Delete removes a tab. It reports ErrDefaultTab for the default tab and
// ErrTabNotEmpty when the tab still holds non-deleted messages; both are
// expected, recoverable conditions the caller must check.
func (t *Tabs) Delete(ctx context.Context, tabID string) error {
	tab, err := t.Get(ctx, tabID)
	if err != nil {
		return err
	}
	if tab.IsDefault {
		return ErrDefaultTab
	}

	live, err := t.store.Query(ctx, docstore.CollectionMessages,
		[]docstore.Filter{
			docstore.Where("tabId", docstore.OpEq, tabID),
			docstore.Where("isDeleted", docstore.OpEq, false),
		}, nil, 1)
	if err != nil {
		return fmt.Errorf("count tab messages: %w", err)
	}
	if len(live) > 0 {
		return fmt.Errorf("%w: %s", ErrTabNotEmpty, tabID)
	}

	if err := t.store.Delete(ctx, docstore.CollectionTabs, tabID); err != nil {
		return fmt.Errorf("delete tab: %w", err)
	}

	t.logger.Info("tab deleted",
		zap.String("tab_id", tabID),
		zap.String("conversation_id", tab.ConversationID))
	t.bus.Publish(bus.Event{
		Kind:      bus.KindTabDeleted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"tab_id": tabID, "conversation_id": tab.ConversationID},
	})
	return nil
}
