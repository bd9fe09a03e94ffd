// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package consent waits for the storage platform to grant workspace
// access to the service principal a mount created. It is the only part
// of the bridge that genuinely blocks: it polls the role-assignment
// surface until the grant appears, the caller's deadline expires, or
// an explicit denial is observed.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
	"github.com/curious-bigcat/onelake-snowflake-iceberg/lake"
)

// Poller is the slice of the access-control API the resolver needs.
type Poller interface {
	GetRoleAssignments(ctx context.Context, workspaceID string) ([]lake.RoleAssignment, error)
}

// errNotGranted drives the retry loop; it never escapes Resolve.
var errNotGranted = errors.New("consent not granted yet")

// Resolver polls workspace role assignments until a principal's
// consent resolves. Resolution is mount-scoped: concurrent and later
// callers for the same workspace/principal share one poll loop and its
// cached terminal result.
type Resolver struct {
	poller      Poller
	interval    time.Duration
	maxInterval time.Duration
	minimumRole lake.Role
	logger      *slog.Logger
	onChange    func(old, new bridge.ConsentState)

	group singleflight.Group

	mu     sync.Mutex
	states map[string]bridge.ConsentState
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithInterval sets the initial polling interval.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) { r.interval = d }
}

// WithMaxInterval caps the backed-off polling interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Resolver) { r.maxInterval = d }
}

// WithMinimumRole sets the role that counts as granted. Defaults to
// Contributor, the lowest role that can write lakehouse items.
func WithMinimumRole(role lake.Role) Option {
	return func(r *Resolver) { r.minimumRole = role }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithTransitionHook registers a callback invoked on every state
// transition, in poll order.
func WithTransitionHook(fn func(old, new bridge.ConsentState)) Option {
	return func(r *Resolver) { r.onChange = fn }
}

// NewResolver builds a Resolver polling the given surface.
func NewResolver(poller Poller, opts ...Option) *Resolver {
	r := &Resolver{
		poller:      poller,
		interval:    15 * time.Second,
		maxInterval: 2 * time.Minute,
		minimumRole: lake.RoleContributor,
		logger:      slog.Default(),
		states:      map[string]bridge.ConsentState{},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve blocks until the principal's consent reaches a terminal
// state or ctx expires. The deadline comes from the caller; on expiry
// the state is Denied and the error wraps ErrConsentTimeout so the
// caller may retry with a fresh deadline. principal is updated with
// the final state.
func (r *Resolver) Resolve(ctx context.Context, workspaceID string, principal *bridge.ServicePrincipalRef) (bridge.ConsentState, error) {
	key := workspaceID + "\x1f" + principal.DisplayName

	r.mu.Lock()
	if state, ok := r.states[key]; ok && state.Terminal() {
		r.mu.Unlock()
		principal.ConsentState = state

		return state, nil
	}
	r.mu.Unlock()

	type outcome struct {
		state bridge.ConsentState
		err   error
	}
	v, _, _ := r.group.Do(key, func() (any, error) {
		state, err := r.poll(ctx, workspaceID, principal.DisplayName)
		// A deadline-expiry denial is recoverable with a fresh
		// deadline, so only grants and explicit denials are cached.
		if state == bridge.ConsentGranted ||
			(state == bridge.ConsentDenied && !errors.Is(err, bridge.ErrConsentTimeout)) {
			r.mu.Lock()
			r.states[key] = state
			r.mu.Unlock()
		}

		return outcome{state, err}, nil
	})

	res := v.(outcome)
	principal.ConsentState = res.state

	return res.state, res.err
}

func (r *Resolver) poll(ctx context.Context, workspaceID, displayName string) (bridge.ConsentState, error) {
	state := bridge.ConsentUnknown
	transition := func(next bridge.ConsentState) {
		if next == state {
			return
		}
		r.logger.Info("consent state changed",
			"workspace", workspaceID,
			"principal", displayName,
			"from", state, "to", next)
		if r.onChange != nil {
			r.onChange(state, next)
		}
		state = next
	}

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(r.interval),
		backoff.WithMaxInterval(r.maxInterval),
		backoff.WithMaxElapsedTime(0), // the ctx deadline governs
	)

	op := func() error {
		assignments, err := r.poller.GetRoleAssignments(ctx, workspaceID)
		if err != nil {
			// transient API failures are retried like a pending grant
			r.logger.Debug("role assignment poll failed", "error", err)

			return err
		}

		// First successful observation of the workspace moves the
		// principal out of Unknown: we now know the grant is missing
		// rather than unobserved.
		if state == bridge.ConsentUnknown {
			transition(bridge.ConsentPending)
		}

		for _, a := range assignments {
			if a.DisplayName != displayName {
				continue
			}
			if a.Role == lake.RoleNone {
				return backoff.Permanent(fmt.Errorf("principal %q explicitly denied", displayName))
			}
			if a.Role.AtLeast(r.minimumRole) {
				transition(bridge.ConsentGranted)

				return nil
			}
			// present with an insufficient role: keep waiting
			return errNotGranted
		}

		return errNotGranted
	}

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	switch {
	case err == nil:
		return bridge.ConsentGranted, nil
	case ctx.Err() != nil:
		transition(bridge.ConsentDenied)

		return bridge.ConsentDenied, fmt.Errorf("%w: workspace %s, principal %q",
			bridge.ErrConsentTimeout, workspaceID, displayName)
	default:
		transition(bridge.ConsentDenied)

		return bridge.ConsentDenied, err
	}
}
