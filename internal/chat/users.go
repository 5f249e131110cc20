package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caioluan/tabchat/internal/bus"
	"github.com/caioluan/tabchat/internal/docstore"
	"github.com/caioluan/tabchat/internal/presence"
)

// Users maintains the durable user directory. A user record is created on
// first sign-in and never hard-deleted; live presence is mirrored into the
// presence store.
type Users struct {
	store    docstore.Store
	presence presence.Store
	bus      *bus.Bus
	logger   *zap.Logger
	byPhone  *keyedMutex
}

// NewUsers creates the user directory.
func NewUsers(store docstore.Store, p presence.Store, b *bus.Bus, logger *zap.Logger) *Users {
	return &Users{
		store:    store,
		presence: p,
		bus:      b,
		logger:   logger,
		byPhone:  newKeyedMutex(),
	}
}

// Ensure returns the user for phone, creating the record on first sign-in.
func (u *Users) Ensure(ctx context.Context, phone, displayName string) (*User, error) {
	if phone == "" {
		return nil, fmt.Errorf("%w: empty phone", ErrInvariant)
	}

	unlock := u.byPhone.Lock(phone)
	defer unlock()

	docs, err := u.store.Query(ctx, docstore.CollectionUsers,
		[]docstore.Filter{docstore.Where("phone", docstore.OpEq, phone)}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if len(docs) > 0 {
		return userFromDoc(&docs[0]), nil
	}

	user := &User{
		Phone:       phone,
		DisplayName: displayName,
		Status:      PresenceOffline,
		LastSeen:    time.Now(),
	}
	id, err := u.store.Create(ctx, docstore.CollectionUsers, userDoc(user), "")
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	user.ID = id

	u.logger.Info("user created", zap.String("user_id", id))
	return user, nil
}

// Register records a user under the identity issued at sign-in. Repeat
// sign-ins find the existing record.
func (u *Users) Register(ctx context.Context, userID, phone, displayName string) (*User, error) {
	if userID == "" || phone == "" {
		return nil, fmt.Errorf("%w: empty user id or phone", ErrInvariant)
	}

	unlock := u.byPhone.Lock(phone)
	defer unlock()

	doc, err := u.store.Get(ctx, docstore.CollectionUsers, userID)
	if err == nil {
		return userFromDoc(doc), nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	user := &User{
		ID:          userID,
		Phone:       phone,
		DisplayName: displayName,
		Status:      PresenceOffline,
		LastSeen:    time.Now(),
	}
	if _, err := u.store.Create(ctx, docstore.CollectionUsers, userDoc(user), userID); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	u.logger.Info("user registered", zap.String("user_id", userID))
	return user, nil
}

// Get returns a user by id.
func (u *Users) Get(ctx context.Context, userID string) (*User, error) {
	doc, err := u.store.Get(ctx, docstore.CollectionUsers, userID)
	if err != nil {
		return nil, err
	}
	return userFromDoc(doc), nil
}

// UpdateProfile changes the display name.
func (u *Users) UpdateProfile(ctx context.Context, userID, displayName string) error {
	err := u.store.Update(ctx, docstore.CollectionUsers, userID,
		map[string]any{"displayName": displayName})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// SetPresence records a presence change on the durable record and the live
// presence store.
func (u *Users) SetPresence(ctx context.Context, userID string, status PresenceStatus) error {
	switch status {
	case PresenceOnline, PresenceAway, PresenceOffline:
	default:
		return fmt.Errorf("%w: unknown presence status %q", ErrInvariant, status)
	}

	now := time.Now()
	err := u.store.Update(ctx, docstore.CollectionUsers, userID, map[string]any{
		"status":   string(status),
		"lastSeen": now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	if err := u.presence.SetStatus(ctx, userID, string(status)); err != nil {
		// Live presence is best effort; the durable record is authoritative.
		u.logger.Warn("live presence update failed", zap.Error(err), zap.String("user_id", userID))
	}

	u.bus.Publish(bus.Event{
		Kind:      bus.KindPresenceChanged,
		Timestamp: now,
		Payload:   map[string]string{"user_id": userID, "status": string(status)},
	})
	return nil
}

// Presence returns the live presence when available, falling back to the
// durable record.
func (u *Users) Presence(ctx context.Context, userID string) (*presence.Status, error) {
	if st, err := u.presence.Get(ctx, userID); err == nil {
		return st, nil
	} else if !errors.Is(err, presence.ErrUnknownUser) {
		u.logger.Warn("live presence read failed", zap.Error(err), zap.String("user_id", userID))
	}

	user, err := u.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &presence.Status{Status: string(user.Status), LastSeen: user.LastSeen}, nil
}
