package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/docstore"
)

// Sequencer assigns strictly increasing per-tab order numbers, tracks
// delivered/read timestamps, and performs soft deletes. A message moves
// Sent -> Delivered -> Read, monotonic; the deleted flag is orthogonal.
type Sequencer struct {
	store    docstore.Store
	registry *Registry
	tabs     *Tabs
	bus      *bus.Bus
	logger   *zap.Logger
	perTab   *keyedMutex
}

// NewSequencer creates a message sequencer.
func NewSequencer(store docstore.Store, registry *Registry, tabs *Tabs, b *bus.Bus, logger *zap.Logger) *Sequencer {
	return &Sequencer{
		store:    store,
		registry: registry,
		tabs:     tabs,
		bus:      b,
		logger:   logger,
		perTab:   newKeyedMutex(),
	}
}

// SendInput carries the payload of a send operation. Exactly one of
// Content or MediaURL is expected, matching the message type.
type SendInput struct {
	TabID     string
	SenderID  string
	Type      MessageType
	Content   string
	MediaURL  string
	MediaType string
	ReplyToID string
}

// Send persists a new message with the next order number for its tab and
// immediately transitions it to delivered. Conversation bookkeeping and
// topic detection run detached; they can never block or fail the send.
func (s *Sequencer) Send(ctx context.Context, in SendInput) (*Message, error) {
	if in.SenderID == "" {
		return nil, ErrUnauthenticated
	}
	if in.Type == "" {
		in.Type = MessageText
	}

	tab, err := s.tabs.Get(ctx, in.TabID)
	if err != nil {
		return nil, err
	}
	conv, err := s.registry.Get(ctx, tab.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Slot(in.SenderID) < 0 {
		return nil, fmt.Errorf("%w: %s in conversation %s", ErrNotParticipant, in.SenderID, conv.ID)
	}

	// Order assignment and insert are serialized per tab; the profile
	// flock guarantees no other writer exists.
	unlock := s.perTab.Lock(in.TabID)
	defer unlock()

	next, err := s.nextOrder(ctx, in.TabID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &Message{
		TabID:     in.TabID,
		SenderID:  in.SenderID,
		Type:      in.Type,
		Content:   in.Content,
		MediaURL:  in.MediaURL,
		MediaType: in.MediaType,
		ReplyToID: in.ReplyToID,
		SentAt:    now,
		Order:     next,
	}
	id, err := s.store.Create(ctx, docstore.CollectionMessages, messageDoc(msg), "")
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	msg.ID = id

	// Delivery is modeled as instantaneous: no real transport in scope.
	delivered := time.Now()
	if err := s.store.Update(ctx, docstore.CollectionMessages, id,
		map[string]any{"deliveredAt": delivered.UnixMilli()}); err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	msg.DeliveredAt = &delivered

	go s.afterSend(conv.ID, msg)

	return msg, nil
}

// afterSend runs the post-delivery side effects detached from the caller.
func (s *Sequencer) afterSend(conversationID string, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.registry.RecordMessageSent(ctx, conversationID, msg.ID, msg.SenderID); err != nil {
		s.logger.Error("conversation bookkeeping failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.ID))
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSent,
		Timestamp: time.Now(),
		Payload: bus.MessageSent{
			ConversationID: conversationID,
			TabID:          msg.TabID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
		},
	})
}

// nextOrder computes 1 + max(messageOrder) for the tab, 1 if empty. Orders
// are never reused, so deleted messages count too.
func (s *Sequencer) nextOrder(ctx context.Context, tabID string) (int64, error) {
	docs, err := s.store.Query(ctx, docstore.CollectionMessages,
		[]docstore.Filter{docstore.Where("tabId", docstore.OpEq, tabID)},
		&docstore.OrderBy{Field: "messageOrder", Desc: true}, 1)
	if err != nil {
		return 0, fmt.Errorf("next order: %w", err)
	}
	if len(docs) == 0 {
		return 1, nil
	}
	return messageFromDoc(&docs[0]).Order + 1, nil
}

// Get returns a message by id.
func (s *Sequencer) Get(ctx context.Context, messageID string) (*Message, error) {
	doc, err := s.store.Get(ctx, docstore.CollectionMessages, messageID)
	if err != nil {
		return nil, err
	}
	return messageFromDoc(doc), nil
}

// List returns a tab's messages in order.
func (s *Sequencer) List(ctx context.Context, tabID string, limit int) ([]*Message, error) {
	docs, err := s.store.Query(ctx, docstore.CollectionMessages,
		[]docstore.Filter{docstore.Where("tabId", docstore.OpEq, tabID)},
		&docstore.OrderBy{Field: "messageOrder"}, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]*Message, len(docs))
	for i := range docs {
		out[i] = messageFromDoc(&docs[i])
	}
	return out, nil
}

// MarkRead sets readAt on a single message. Read implies delivered, and
// neither timestamp ever regresses.
func (s *Sequencer) MarkRead(ctx context.Context, messageID string) error {
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReadAt != nil {
		return nil
	}

	now := time.Now().UnixMilli()
	partial := map[string]any{"readAt": now}
	if msg.DeliveredAt == nil {
		partial["deliveredAt"] = now
	}
	if err := s.store.Update(ctx, docstore.CollectionMessages, messageID, partial); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageRead,
		Timestamp: time.Now(),
		Payload:   map[string]string{"message_id": messageID},
	})
	return nil
}

// MarkTabRead sets readAt on every unread message in the tab sent by the
// other participant, as one atomic batch.
func (s *Sequencer) MarkTabRead(ctx context.Context, tabID, readerID string) error {
	if readerID == "" {
		return ErrUnauthenticated
	}
	docs, err := s.store.Query(ctx, docstore.CollectionMessages,
		[]docstore.Filter{
			docstore.Where("tabId", docstore.OpEq, tabID),
			docstore.Where("senderId", docstore.OpNeq, readerID),
		}, nil, 0)
	if err != nil {
		return fmt.Errorf("list unread: %w", err)
	}

	now := time.Now().UnixMilli()
	var writes []docstore.Write
	for i := range docs {
		msg := messageFromDoc(&docs[i])
		if msg.ReadAt != nil {
			continue
		}
		partial := map[string]any{"readAt": now}
		if msg.DeliveredAt == nil {
			partial["deliveredAt"] = now
		}
		writes = append(writes, docstore.Write{
			Kind:       docstore.WriteUpdate,
			Collection: docstore.CollectionMessages,
			ID:         msg.ID,
			Data:       partial,
		})
	}
	if len(writes) == 0 {
		return nil
	}
	if err := s.store.Batch(ctx, writes); err != nil {
		return fmt.Errorf("mark tab read: %w", err)
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageRead,
		Timestamp: time.Now(),
		Payload:   map[string]string{"tab_id": tabID, "reader_id": readerID},
	})
	return nil
}

// SoftDelete clears a message's content and media but keeps its row, order
// slot, and delivery/read state. Only the sender may delete.
func (s *Sequencer) SoftDelete(ctx context.Context, messageID, callerID string) error {
	if callerID == "" {
		return ErrUnauthenticated
	}
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != callerID {
		return fmt.Errorf("%w: only the sender may delete a message", ErrInvariant)
	}
	if msg.Deleted {
		return nil
	}

	err = s.store.Update(ctx, docstore.CollectionMessages, messageID, map[string]any{
		"isDeleted": true,
		"content":   "",
		"mediaUrl":  "",
		"mediaType": "",
	})
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}

	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageDeleted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"message_id": messageID, "tab_id": msg.TabID},
	})
	return nil
}
