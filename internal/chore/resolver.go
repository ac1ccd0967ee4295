package chore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/coolive/internal/store"
)

type membershipLookup interface {
	GroupIDForUser(ctx context.Context, userID int64) (*int64, error)
}

type groupCache interface {
	SetGroup(ctx context.Context, sessionID int64, groupID *int64) error
}

// Resolver finds the active group for a signed-in user. The group cached on
// the session is trusted: leaving a group clears that cache in the same
// transaction, and the cache is only written while the membership exists.
type Resolver struct {
	members membershipLookup
	cache   groupCache
	logger  *slog.Logger
	sf      singleflight.Group
}

func NewResolver(members membershipLookup, cache groupCache, logger *slog.Logger) *Resolver {
	return &Resolver{members: members, cache: cache, logger: logger}
}

// Resolve returns the user's group id. cached is the value stored on the
// session, if any. ErrNoGroup means the user has no membership; any other
// error is a lookup failure.
func (r *Resolver) Resolve(ctx context.Context, userID, sessionID int64, cached *int64) (int64, error) {
	if cached != nil {
		return *cached, nil
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := r.sf.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return r.members.GroupIDForUser(shared, userID)
	})
	if err != nil {
		return 0, fmt.Errorf("resolve group: %w", err)
	}
	groupID := v.(*int64)
	if groupID == nil {
		return 0, ErrNoGroup
	}

	err = r.cache.SetGroup(ctx, sessionID, groupID)
	switch {
	case errors.Is(err, store.ErrNotGroupMember):
		// The user left between the lookup and the cache write.
		return 0, ErrNoGroup
	case err != nil:
		// Non-fatal: the next request falls back to the lookup.
		r.logger.Warn("cache session group", "session_id", sessionID, "error", err)
	}
	return *groupID, nil
}
