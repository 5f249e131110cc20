package chat

import (
	"time"

	"github.com/caioluan/tabchat/internal/docstore"
)

// PresenceStatus is a user's advertised availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// User is a signed-in participant. Created on first sign-in, never
// hard-deleted.
type User struct {
	ID          string
	Phone       string
	DisplayName string
	Status      PresenceStatus
	LastSeen    time.Time
}

// Conversation is the durable 1:1 thread between exactly two users. The
// participant pair is held sorted ascending so lookup is order-independent,
// and the two unread counters are indexed by position in that sorted pair.
type Conversation struct {
	ID            string
	Participants  [2]string
	CreatedBy     string
	LastMessageID string
	LastActivity  time.Time
	Unread        [2]int64
}

// Slot returns the index of userID in the sorted participant pair, or -1.
func (c *Conversation) Slot(userID string) int {
	for i, p := range c.Participants {
		if p == userID {
			return i
		}
	}
	return -1
}

// Tab is a named sub-thread of a conversation with its own strictly-ordered
// message sequence. Exactly one tab per conversation has IsDefault set.
type Tab struct {
	ID             string
	ConversationID string
	Name           string
	Order          int64
	IsDefault      bool
	CreatedBy      string
}

// MessageType discriminates message payloads.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Message is a single tab entry. Order is assigned at send time and never
// renumbered or reused, even after soft delete.
type Message struct {
	ID          string
	TabID       string
	SenderID    string
	Type        MessageType
	Content     string
	MediaURL    string
	MediaType   string
	ReplyToID   string
	SentAt      time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
	Deleted     bool
	Order       int64
}

func userDoc(u *User) map[string]any {
	return map[string]any{
		"phone":       u.Phone,
		"displayName": u.DisplayName,
		"status":      string(u.Status),
		"lastSeen":    u.LastSeen.UnixMilli(),
	}
}

func userFromDoc(d *docstore.Document) *User {
	return &User{
		ID:          d.ID,
		Phone:       docString(d.Data, "phone"),
		DisplayName: docString(d.Data, "displayName"),
		Status:      PresenceStatus(docString(d.Data, "status")),
		LastSeen:    docTime(d.Data, "lastSeen"),
	}
}

func conversationDoc(c *Conversation) map[string]any {
	return map[string]any{
		"participants":  []any{c.Participants[0], c.Participants[1]},
		"pairKey":       c.Participants[0] + "|" + c.Participants[1],
		"createdBy":     c.CreatedBy,
		"lastMessageId": c.LastMessageID,
		"lastActivity":  c.LastActivity.UnixMilli(),
		"unread0":       c.Unread[0],
		"unread1":       c.Unread[1],
	}
}

func conversationFromDoc(d *docstore.Document) *Conversation {
	c := &Conversation{
		ID:            d.ID,
		CreatedBy:     docString(d.Data, "createdBy"),
		LastMessageID: docString(d.Data, "lastMessageId"),
		LastActivity:  docTime(d.Data, "lastActivity"),
		Unread:        [2]int64{docInt(d.Data, "unread0"), docInt(d.Data, "unread1")},
	}
	if parts, ok := d.Data["participants"].([]any); ok && len(parts) == 2 {
		c.Participants[0], _ = parts[0].(string)
		c.Participants[1], _ = parts[1].(string)
	}
	return c
}

func tabDoc(t *Tab) map[string]any {
	return map[string]any{
		"conversationId": t.ConversationID,
		"name":           t.Name,
		"tabOrder":       t.Order,
		"isDefault":      t.IsDefault,
		"createdBy":      t.CreatedBy,
	}
}

func tabFromDoc(d *docstore.Document) *Tab {
	return &Tab{
		ID:             d.ID,
		ConversationID: docString(d.Data, "conversationId"),
		Name:           docString(d.Data, "name"),
		Order:          docInt(d.Data, "tabOrder"),
		IsDefault:      docBool(d.Data, "isDefault"),
		CreatedBy:      docString(d.Data, "createdBy"),
	}
}

func messageDoc(m *Message) map[string]any {
	doc := map[string]any{
		"tabId":        m.TabID,
		"senderId":     m.SenderID,
		"type":         string(m.Type),
		"content":      m.Content,
		"mediaUrl":     m.MediaURL,
		"mediaType":    m.MediaType,
		"replyToId":    m.ReplyToID,
		"sentAt":       m.SentAt.UnixMilli(),
		"isDeleted":    m.Deleted,
		"messageOrder": m.Order,
	}
	if m.DeliveredAt != nil {
		doc["deliveredAt"] = m.DeliveredAt.UnixMilli()
	}
	if m.ReadAt != nil {
		doc["readAt"] = m.ReadAt.UnixMilli()
	}
	return doc
}

func messageFromDoc(d *docstore.Document) *Message {
	m := &Message{
		ID:        d.ID,
		TabID:     docString(d.Data, "tabId"),
		SenderID:  docString(d.Data, "senderId"),
		Type:      MessageType(docString(d.Data, "type")),
		Content:   docString(d.Data, "content"),
		MediaURL:  docString(d.Data, "mediaUrl"),
		MediaType: docString(d.Data, "mediaType"),
		ReplyToID: docString(d.Data, "replyToId"),
		SentAt:    docTime(d.Data, "sentAt"),
		Deleted:   docBool(d.Data, "isDeleted"),
		Order:     docInt(d.Data, "messageOrder"),
	}
	if _, ok := d.Data["deliveredAt"]; ok {
		t := docTime(d.Data, "deliveredAt")
		m.DeliveredAt = &t
	}
	if _, ok := d.Data["readAt"]; ok {
		t := docTime(d.Data, "readAt")
		m.ReadAt = &t
	}
	return m
}

func docString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func docBool(data map[string]any, key string) bool {
	b, _ := data[key].(bool)
	return b
}

// docInt tolerates both int64 (fresh writes) and float64 (JSON round-trip).
func docInt(data map[string]any, key string) int64 {
	switch n := data[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func docTime(data map[string]any, key string) time.Time {
	ms := docInt(data, key)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
