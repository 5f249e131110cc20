package docstore

import (
	"context"
	"errors"
	"time"
)

// Collection names used by the chat core.
const (
	CollectionUsers         = "users"
	CollectionConversations = "conversations"
	CollectionTabs          = "tabs"
	CollectionMessages      = "messages"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("docstore: document not found")

// ErrUnavailable is returned once the create retry budget is exhausted on a
// transient failure, or when the underlying database is unreachable.
var ErrUnavailable = errors.New("docstore: store unavailable")

// Op is a query filter operator.
type Op string

const (
	OpEq          Op = "=="
	OpNeq         Op = "!="
	OpLt          Op = "<"
	OpLte         Op = "<="
	OpGt          Op = ">"
	OpGte         Op = ">="
	OpContains    Op = "array-contains"
	OpContainsAny Op = "array-contains-any"
	OpIn          Op = "in"
	OpNotIn       Op = "not-in"
)

// Filter is a single field predicate applied by Query and Subscribe.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for building a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// OrderBy sorts query results by a single field.
type OrderBy struct {
	Field string
	Desc  bool
}

// Document is a stored record plus its store-stamped timestamps.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WriteKind discriminates batched write operations.
type WriteKind string

const (
	WriteCreate WriteKind = "create"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// Write is one operation inside an atomic Batch.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]any // create: full document; update: partial merge
}

// Store is the generic keyed-collection persistence contract the chat core
// is written against. Implementations stamp creation/update times and apply
// Batch as a single atomic unit.
type Store interface {
	// Create inserts a new document. An empty id means the store assigns
	// one. Transient failures are retried with bounded backoff before
	// ErrUnavailable is reported.
	Create(ctx context.Context, collection string, data map[string]any, id string) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters []Filter, orderBy *OrderBy, limit int) ([]Document, error)
	// Update merges partial data into an existing document.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Batch applies all writes atomically: either every operation is
	// visible or none is.
	Batch(ctx context.Context, writes []Write) error
	// Subscribe returns a live stream of full query snapshots. The first
	// snapshot reflects current state; later ones follow writes to the
	// collection. Cancel the context or the subscription to stop.
	Subscribe(ctx context.Context, collection string, filters []Filter, orderBy *OrderBy) (*Subscription, error)
	Close() error
}
