/*
Package presence holds the authoritative directory of connected users and their call state.

The Registry maps connection identities to registered display names and owns every call state
transition. All reads and writes go through one mutex, so a multi-user update such as the
disconnect cascade (resolve partner, reset partner, notify partner, remove self) is observed
by other callers either completely or not at all.
*/
package presence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callrelay/internal/app/calllog"
	"callrelay/internal/app/user"
	"callrelay/internal/configs"
	"callrelay/internal/pkg/errs"
	"callrelay/internal/pkg/logx"
)

// TokenVerifier checks resume tokens presented on registration.
type TokenVerifier interface {
	Verify(name, token string) bool
}

// CallRecorder receives call records. Record must not block.
type CallRecorder interface {
	Record(entry calllog.Entry)
}

// Options configures a Registry. Zero values fall back to strict policy, no tokens and no records.
type Options struct {
	// Policy is configs.PolicyStrict or configs.PolicyReplace.
	Policy string

	// StaleAfter is the idle time after which a holder may be displaced in replace mode.
	StaleAfter time.Duration

	Tokens   TokenVerifier
	Recorder CallRecorder

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Registration describes the outcome of a successful Register call.
type Registration struct {
	Name string

	// Released is the name the connection held before, if it registered under a new one.
	Released string

	// Displaced is the connection that lost the name in replace mode; the caller closes it.
	Displaced string
}

// Evicted identifies a user removed by EvictStale.
type Evicted struct {
	Name         string
	ConnectionID string
}

// Registry is the presence directory and call coordinator.
type Registry struct {
	mu sync.RWMutex

	// users is keyed by display name.
	users map[string]*user.User

	// byConn maps a connection identity to the name bound to it.
	byConn map[string]string

	// order keeps names in registration order.
	order []string

	policy     string
	staleAfter time.Duration
	tokens     TokenVerifier
	recorder   CallRecorder
	now        func() time.Time

	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewRegistry returns an empty Registry emitting through dispatcher.
func NewRegistry(dispatcher Dispatcher, opts Options) *Registry {
	r := &Registry{
		users:      make(map[string]*user.User),
		byConn:     make(map[string]string),
		policy:     opts.Policy,
		staleAfter: opts.StaleAfter,
		tokens:     opts.Tokens,
		recorder:   opts.Recorder,
		now:        opts.Now,
		dispatcher: dispatcher,
		logger:     logx.Component("Registry"),
	}

	if r.policy == "" {
		r.policy = configs.PolicyStrict
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Register binds name to connID.
//
// Registering the name the connection already holds succeeds without change. A name held by
// another connection is refused with ErrNameTaken, except in replace mode when the holder is
// stale or token is a valid resume token for name; the holder's call is then ended and its
// connection is reported in Registration.Displaced.
func (r *Registry) Register(name, connID, token string) (Registration, *errs.CustomError) {
	if !user.IsValidName(name) {
		return Registration{}, errs.NewError(errs.ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	reg := Registration{Name: name}

	holder, held := r.users[name]
	if held && holder.ConnectionID == connID {
		holder.LastSeenAt = now
		return reg, nil
	}

	if held && !r.mayDisplaceLocked(holder, token, now) {
		r.logger.Warn().Str("name", name).Str("conn_id", connID).Msg("Registration refused, name taken.")
		return Registration{}, errs.NewError(errs.ErrNameTaken)
	}

	if prev, ok := r.byConn[connID]; ok {
		r.cascadeLocked(r.users[prev], calllog.ReasonDisconnect)
		r.removeLocked(prev)
		reg.Released = prev
	}

	if held {
		reg.Displaced = holder.ConnectionID
		r.cascadeLocked(holder, calllog.ReasonReplaced)
		delete(r.byConn, holder.ConnectionID)

		holder.ConnectionID = connID
		holder.LastSeenAt = now
		r.byConn[connID] = name

		r.logger.Info().Str("name", name).Str("conn_id", connID).Str("displaced", reg.Displaced).Msg("Name rebound to new connection.")
		return reg, nil
	}

	r.users[name] = user.New(name, connID, now)
	r.byConn[connID] = name
	r.order = append(r.order, name)

	r.logger.Info().Str("name", name).Str("conn_id", connID).Int("online", len(r.order)).Msg("User registered.")
	return reg, nil
}

func (r *Registry) mayDisplaceLocked(holder *user.User, token string, now time.Time) bool {
	if r.policy != configs.PolicyReplace {
		return false
	}
	if r.staleAfter > 0 && now.Sub(holder.LastSeenAt) > r.staleAfter {
		return true
	}
	return r.tokens != nil && r.tokens.Verify(holder.Name, token)
}

// Unregister ends the call of the user bound to connID, then removes the user.
// It returns the removed name, or false if the connection never registered.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.byConn[connID]
	if !ok {
		return "", false
	}

	r.cascadeLocked(r.users[name], calllog.ReasonDisconnect)
	r.removeLocked(name)

	r.logger.Info().Str("name", name).Str("conn_id", connID).Int("online", len(r.order)).Msg("User unregistered.")
	return name, true
}

// removeLocked deletes name from every index.
func (r *Registry) removeLocked(name string) {
	u, ok := r.users[name]
	if !ok {
		return
	}

	delete(r.users, name)
	if r.byConn[u.ConnectionID] == name {
		delete(r.byConn, u.ConnectionID)
	}

	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// LookupByName returns a copy of the user registered as name.
func (r *Registry) LookupByName(name string) (user.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[name]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// LookupByConnection returns a copy of the user bound to connID.
func (r *Registry) LookupByConnection(connID string) (user.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byConn[connID]
	if !ok {
		return user.User{}, false
	}
	return *r.users[name], true
}

// ListNames returns the registered names in registration order.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Snapshot returns copies of all registered users in registration order.
func (r *Registry) Snapshot() []user.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]user.User, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, *r.users[name])
	}
	return result
}

// BroadcastNames sends the current name list to every connection as users_updated and update_users.
func (r *Registry) BroadcastNames() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.namesLocked()
	r.dispatcher.Broadcast(EventUsersUpdated, UsersPayload{Users: names})
	r.dispatcher.Broadcast(EventUpdateUsers, names)
}

// Touch refreshes the last activity time of the user bound to connID.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.byConn[connID]; ok {
		r.users[name].LastSeenAt = r.now()
	}
}

// EvictStale runs the disconnect path for every user idle longer than maxIdle and
// returns who was removed. The caller closes the returned connections.
func (r *Registry) EvictStale(maxIdle time.Duration) []Evicted {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var evicted []Evicted

	for _, name := range r.namesLocked() {
		u, ok := r.users[name]
		if !ok || now.Sub(u.LastSeenAt) <= maxIdle {
			continue
		}

		evicted = append(evicted, Evicted{Name: name, ConnectionID: u.ConnectionID})
		r.cascadeLocked(u, calllog.ReasonEvicted)
		r.removeLocked(name)
	}

	if len(evicted) > 0 {
		r.logger.Info().Int("evicted", len(evicted)).Dur("max_idle", maxIdle).Msg("Stale users evicted.")
	}
	return evicted
}
