package docstore

import (
	"context"
	"sync"
)

// Subscription is a live stream of full query snapshots. Snapshots() yields
// the current result set on subscribe and again after every write to the
// watched collection. A slow consumer only ever misses intermediate states,
// never the latest one.
type Subscription struct {
	ch     chan []Document
	cancel func()

	closeOnce sync.Once
}

// Snapshots returns the snapshot channel. It is closed when the
// subscription ends.
func (s *Subscription) Snapshots() <-chan []Document {
	return s.ch
}

// Cancel stops the subscription and closes the snapshot channel.
func (s *Subscription) Cancel() {
	s.cancel()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

type subscriber struct {
	sub        *Subscription
	collection string
	wake       chan struct{}
}

func (s *SQLite) Subscribe(ctx context.Context, collection string, filters []Filter, orderBy *OrderBy) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ch:     make(chan []Document, 1),
		cancel: cancel,
	}
	entry := &subscriber{
		sub:        sub,
		collection: collection,
		wake:       make(chan struct{}, 1),
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = entry
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			sub.close()
		}()

		// Initial snapshot, then one per wake-up.
		for {
			docs, err := s.Query(ctx, collection, filters, orderBy, 0)
			if err == nil {
				// Latest-wins delivery: replace a pending snapshot
				// instead of blocking on a slow consumer.
				select {
				case sub.ch <- docs:
				default:
					select {
					case <-sub.ch:
					default:
					}
					select {
					case sub.ch <- docs:
					default:
					}
				}
			}
			select {
			case <-entry.wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// notify wakes every subscriber watching the given collection.
func (s *SQLite) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.subs {
		if entry.collection != collection {
			continue
		}
		select {
		case entry.wake <- struct{}{}:
		default:
		}
	}
}
