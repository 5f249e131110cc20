package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/docstore"
)

// DefaultTabName is the display name of the tab created with every
// conversation.
const DefaultTabName = "General"

// Registry finds-or-creates the single conversation per unordered pair of
// participants and owns the per-slot unread bookkeeping.
type Registry struct {
	store  docstore.Store
	bus    *bus.Bus
	logger *zap.Logger
	pairs  *keyedMutex
	convs  *keyedMutex
}

// NewRegistry creates a conversation registry backed by the store.
func NewRegistry(store docstore.Store, b *bus.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		bus:    b,
		logger: logger,
		pairs:  newKeyedMutex(),
		convs:  newKeyedMutex(),
	}
}

// pairKey returns the canonical sorted pair and its lookup key.
func pairKey(a, b string) (string, string, string) {
	if b < a {
		a, b = b, a
	}
	return a, b, a + "|" + b
}

// Find returns the conversation for the unordered pair, or
// docstore.ErrNotFound.
func (r *Registry) Find(ctx context.Context, userA, userB string) (*Conversation, error) {
	_, _, key := pairKey(userA, userB)
	docs, err := r.store.Query(ctx, docstore.CollectionConversations,
		[]docstore.Filter{docstore.Where("pairKey", docstore.OpEq, key)}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	return conversationFromDoc(&docs[0]), nil
}

// Create finds or creates the conversation for (creatorID, otherID).
// Idempotent: a second call in either participant order returns the
// existing conversation. The conversation and its default tab are written
// in one atomic batch.
func (r *Registry) Create(ctx context.Context, creatorID, otherID string) (*Conversation, error) {
	if creatorID == "" {
		return nil, ErrUnauthenticated
	}
	if otherID == "" || otherID == creatorID {
		return nil, fmt.Errorf("%w: conversation needs two distinct participants", ErrInvariant)
	}

	first, second, key := pairKey(creatorID, otherID)

	// Serialize find-or-create per pair so concurrent calls from both
	// participants cannot create duplicates.
	unlock := r.pairs.Lock(key)
	defer unlock()

	existing, err := r.Find(ctx, creatorID, otherID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}

	conv := &Conversation{
		Participants: [2]string{first, second},
		CreatedBy:    creatorID,
		LastActivity: time.Now(),
	}
	convID := newID()
	tab := &Tab{
		ConversationID: convID,
		Name:           DefaultTabName,
		Order:          0,
		IsDefault:      true,
		CreatedBy:      creatorID,
	}

	err = r.store.Batch(ctx, []docstore.Write{
		{Kind: docstore.WriteCreate, Collection: docstore.CollectionConversations, ID: convID, Data: conversationDoc(conv)},
		{Kind: docstore.WriteCreate, Collection: docstore.CollectionTabs, ID: newID(), Data: tabDoc(tab)},
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv.ID = convID

	r.logger.Info("conversation created",
		zap.String("conversation_id", convID),
		zap.String("pair", key))
	r.bus.Publish(bus.Event{
		Kind:      bus.KindConversationCreated,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": convID},
	})
	return conv, nil
}

// Get returns a conversation by id.
func (r *Registry) Get(ctx context.Context, id string) (*Conversation, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionConversations, id)
	if err != nil {
		return nil, err
	}
	return conversationFromDoc(doc), nil
}

// ListForUser returns the user's conversations, most recently active first.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	docs, err := r.store.Query(ctx, docstore.CollectionConversations,
		[]docstore.Filter{docstore.Where("participants", docstore.OpContains, userID)},
		&docstore.OrderBy{Field: "lastActivity", Desc: true}, 0)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]*Conversation, len(docs))
	for i := range docs {
		out[i] = conversationFromDoc(&docs[i])
	}
	return out, nil
}

// RecordMessageSent updates last-activity bookkeeping and increments the
// unread slot opposite the sender. Slots are positional: if the sender
// occupies slot 0, slot 1 is incremented, and vice versa.
func (r *Registry) RecordMessageSent(ctx context.Context, conversationID, messageID, senderID string) error {
	// The increment is a read-modify-write against the stored document.
	// Sends run their bookkeeping on detached goroutines, so it must be
	// serialized per conversation or concurrent sends lose counts.
	unlock := r.convs.Lock(conversationID)
	defer unlock()

	conv, err := r.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	slot := conv.Slot(senderID)
	if slot < 0 {
		return fmt.Errorf("%w: %s in conversation %s", ErrNotParticipant, senderID, conversationID)
	}
	other := 1 - slot

	partial := map[string]any{
		"lastMessageId":              messageID,
		"lastActivity":               time.Now().UnixMilli(),
		fmt.Sprintf("unread%d", other): conv.Unread[other] + 1,
	}
	if err := r.store.Update(ctx, docstore.CollectionConversations, conversationID, partial); err != nil {
		return fmt.Errorf("record message sent: %w", err)
	}

	r.bus.Publish(bus.Event{
		Kind:      bus.KindConversationUpdated,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": conversationID, "message_id": messageID},
	})
	return nil
}

// MarkRead resets the reader's unread slot to zero. The other slot is
// untouched.
func (r *Registry) MarkRead(ctx context.Context, conversationID, readerID string) error {
	if readerID == "" {
		return ErrUnauthenticated
	}
	unlock := r.convs.Lock(conversationID)
	defer unlock()

	conv, err := r.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	slot := conv.Slot(readerID)
	if slot < 0 {
		return fmt.Errorf("%w: %s in conversation %s", ErrNotParticipant, readerID, conversationID)
	}

	partial := map[string]any{fmt.Sprintf("unread%d", slot): int64(0)}
	if err := r.store.Update(ctx, docstore.CollectionConversations, conversationID, partial); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}

	r.bus.Publish(bus.Event{
		Kind:      bus.KindConversationRead,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": conversationID, "reader_id": readerID},
	})
	return nil
}

// Delete removes a conversation, cascading to all of its tabs and messages
// in a single atomic batch.
func (r *Registry) Delete(ctx context.Context, conversationID string) error {
	if _, err := r.Get(ctx, conversationID); err != nil {
		return err
	}

	tabDocs, err := r.store.Query(ctx, docstore.CollectionTabs,
		[]docstore.Filter{docstore.Where("conversationId", docstore.OpEq, conversationID)}, nil, 0)
	if err != nil {
		return fmt.Errorf("list tabs for delete: %w", err)
	}

	writes := []docstore.Write{
		{Kind: docstore.WriteDelete, Collection: docstore.CollectionConversations, ID: conversationID},
	}
	for _, td := range tabDocs {
		writes = append(writes, docstore.Write{
			Kind: docstore.WriteDelete, Collection: docstore.CollectionTabs, ID: td.ID,
		})
		msgDocs, err := r.store.Query(ctx, docstore.CollectionMessages,
			[]docstore.Filter{docstore.Where("tabId", docstore.OpEq, td.ID)}, nil, 0)
		if err != nil {
			return fmt.Errorf("list messages for delete: %w", err)
		}
		for _, md := range msgDocs {
			writes = append(writes, docstore.Write{
				Kind: docstore.WriteDelete, Collection: docstore.CollectionMessages, ID: md.ID,
			})
		}
	}

	if err := r.store.Batch(ctx, writes); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	r.logger.Info("conversation deleted",
		zap.String("conversation_id", conversationID),
		zap.Int("cascaded_writes", len(writes)-1))
	r.bus.Publish(bus.Event{
		Kind:      bus.KindConversationDeleted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation_id": conversationID},
	})
	return nil
}
