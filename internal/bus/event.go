package bus

import "time"

// Event kinds published by the chat core. Subscribers filter by namespace
// prefix, e.g. "message." for everything the sequencer emits.
const (
	KindConversationCreated = "conversation.created"
	KindConversationUpdated = "conversation.updated"
	KindConversationRead    = "conversation.read"
	KindConversationDeleted = "conversation.deleted"

	KindTabCreated   = "tab.created"
	KindTabRenamed   = "tab.renamed"
	KindTabReordered = "tab.reordered"
	KindTabDeleted   = "tab.deleted"

	KindMessageSent    = "message.sent"
	KindMessageRead    = "message.read"
	KindMessageDeleted = "message.deleted"

	KindTopicRenamed = "topic.renamed"
	KindTopicSkipped = "topic.skipped"

	KindPresenceChanged = "presence.changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageSent is the payload for KindMessageSent. The topic detection
// engine keys off it.
type MessageSent struct {
	ConversationID string
	TabID          string
	MessageID      string
	SenderID       string
}
