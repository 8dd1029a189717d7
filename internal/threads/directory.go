// Package threads maps customers to their dedicated thread in the
// staff workspace. Creation is idempotent under concurrency, the
// mapping is durable, and sends into a thread recover once from the
// thread having been deleted out from under the cache.
package threads

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattn/go-runewidth"
	"golang.org/x/sync/singleflight"

	"github.com/pandastore/supportbot/internal/gateway"
)

// maxTitleWidth bounds thread titles by display width so CJK names
// don't overflow the workspace sidebar.
const maxTitleWidth = 64

// Store is the durable mapping the directory reads and writes.
type Store interface {
	Get(userID string) (threadID string, ok bool)
	Put(userID, threadID string) error
	Delete(userID string) error
	UserForThread(threadID string) (userID string, ok bool)
}

// Directory resolves customers to staff-workspace threads.
type Directory struct {
	store Store
	gw    gateway.Gateway
	sf    singleflight.Group
}

// New creates a directory over the given store and transport.
func New(store Store, gw gateway.Gateway) *Directory {
	return &Directory{store: store, gw: gw}
}

// ResolveOrCreate returns the user's thread ID, creating the thread if
// none is mapped yet. Concurrent calls for the same user collapse into
// a single creation.
func (d *Directory) ResolveOrCreate(ctx context.Context, userID, displayName string) (string, error) {
	if threadID, ok := d.store.Get(userID); ok {
		return threadID, nil
	}

	v, err, _ := d.sf.Do(userID, func() (any, error) {
		// A concurrent caller may have created the thread while this
		// one waited on the flight group.
		if threadID, ok := d.store.Get(userID); ok {
			return threadID, nil
		}
		return d.create(ctx, userID, displayName)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *Directory) create(ctx context.Context, userID, displayName string) (string, error) {
	title := ThreadTitle(userID, displayName)
	threadID, err := d.gw.CreateThread(ctx, title)
	if err != nil {
		return "", fmt.Errorf("create thread for user %s: %w", userID, err)
	}
	if err := d.store.Put(userID, threadID); err != nil {
		return "", fmt.Errorf("persist thread mapping for user %s: %w", userID, err)
	}

	intro := fmt.Sprintf("New conversation with %s (id %s). Reply here to take over from the bot.", displayName, userID)
	if _, err := d.gw.SendToThread(ctx, threadID, intro); err != nil {
		slog.Warn("threads: intro message failed",
			"user_id", userID, "thread_id", threadID, "error", err)
	}

	slog.Info("threads: created staff thread",
		"user_id", userID, "thread_id", threadID)
	return threadID, nil
}

// Invalidate drops the cached mapping for userID. The next resolve
// creates a fresh thread.
func (d *Directory) Invalidate(userID string) {
	if err := d.store.Delete(userID); err != nil {
		slog.Error("threads: invalidate failed", "user_id", userID, "error", err)
	}
}

// UserForThread attributes a staff-workspace thread back to a customer.
func (d *Directory) UserForThread(threadID string) (string, bool) {
	return d.store.UserForThread(threadID)
}

// MirrorToThread posts text into the user's thread. If the send fails
// because the thread is gone, the mapping is invalidated and the send
// retried exactly once against a freshly created thread; a second
// failure is returned to the caller.
func (d *Directory) MirrorToThread(ctx context.Context, userID, displayName, text string) error {
	threadID, err := d.ResolveOrCreate(ctx, userID, displayName)
	if err != nil {
		return err
	}

	_, err = d.gw.SendToThread(ctx, threadID, text)
	if err == nil {
		return nil
	}
	if !gateway.IsMissing(err) {
		return err
	}

	slog.Warn("threads: thread missing, recreating",
		"user_id", userID, "thread_id", threadID)
	d.Invalidate(userID)

	threadID, rerr := d.ResolveOrCreate(ctx, userID, displayName)
	if rerr != nil {
		return rerr
	}
	if _, rerr := d.gw.SendToThread(ctx, threadID, text); rerr != nil {
		return fmt.Errorf("mirror retry for user %s: %w", userID, rerr)
	}
	return nil
}

// ThreadTitle builds the staff-facing thread title, truncated by
// display width.
func ThreadTitle(userID, displayName string) string {
	title := displayName
	if title == "" {
		title = "customer"
	}
	title = fmt.Sprintf("%s · %s", title, userID)
	return runewidth.Truncate(title, maxTitleWidth, "…")
}
