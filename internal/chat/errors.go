package chat

import "errors"

// Failure taxonomy. NotFound and StoreUnavailable pass through from the
// document store (docstore.ErrNotFound, docstore.ErrUnavailable); the
// sentinels below cover the domain's own failure modes. Callers distinguish
// them with errors.Is.
var (
	// ErrUnauthenticated means no caller identity was available.
	ErrUnauthenticated = errors.New("chat: unauthenticated")

	// ErrInvariant is the base class for expected, recoverable rule
	// violations. Never retried, never swallowed.
	ErrInvariant = errors.New("chat: invariant violation")

	// ErrDefaultTab is returned by DeleteTab on a conversation's default
	// tab.
	ErrDefaultTab = errors.New("chat: default tab cannot be deleted")

	// ErrTabNotEmpty is returned by DeleteTab when the tab still holds
	// non-deleted messages.
	ErrTabNotEmpty = errors.New("chat: tab has messages")

	// ErrNotParticipant is returned when the acting user is not part of
	// the conversation.
	ErrNotParticipant = errors.New("chat: user is not a participant")
)

// IsInvariant reports whether err is any expected rule violation.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant) ||
		errors.Is(err, ErrDefaultTab) ||
		errors.Is(err, ErrTabNotEmpty) ||
		errors.Is(err, ErrNotParticipant)
}
