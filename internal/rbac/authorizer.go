// Package rbac answers "may this principal do that?" from the role grant
// table.  Grants are cached per role in memory; the cache is rebuilt
// lazily after its TTL elapses or after any grant write bumps the
// version counter.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/department-admin/internal/model"
)

// MaxTTL bounds how long a cached grant matrix may be served.
const MaxTTL = 60 * time.Second

var (
	// ErrUnknownRole is returned by grant writes naming a role id that does not exist.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrUnknownPermission is returned by grant writes naming a permission that does not exist.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
)

// GrantStore is the persistence the authorizer needs.  RolePermissions
// returns the full matrix in one read so that a rebuild is a single
// round trip.
type GrantStore interface {
	RolePermissions(ctx context.Context) (map[model.RoleID][]string, error)
	Grant(ctx context.Context, role model.RoleID, permission string) error
	Revoke(ctx context.Context, role model.RoleID, permission string) error
}

// Notifier fans grant changes out to other processes.  Publish announces
// a local change; Subscribe blocks, invoking onChange for every remote
// announcement, until ctx is done.
type Notifier interface {
	Publish(ctx context.Context) error
	Subscribe(ctx context.Context, onChange func()) error
}

// Authorizer is the cached permission predicate.  Reads take the read
// lock; rebuilds take the write lock and re-check freshness so that a
// burst of callers after expiry triggers one load.
type Authorizer struct {
	store    GrantStore
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// version is bumped on every grant write, local or remote.
	version atomic.Int64

	mu       sync.RWMutex
	byRole   map[model.RoleID]map[string]struct{}
	loadedAt time.Time
	built    int64 // version the cache was built from
	loaded   bool
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithTTL sets the cache lifetime; values above MaxTTL are clamped.
func WithTTL(ttl time.Duration) Option { return func(a *Authorizer) { a.ttl = ttl } }

// WithNotifier enables cross-process invalidation.
func WithNotifier(n Notifier) Option { return func(a *Authorizer) { a.notifier = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(a *Authorizer) { a.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Authorizer) { a.logger = l } }

// New constructs an Authorizer over store.
func New(store GrantStore, opts ...Option) *Authorizer {
	a := &Authorizer{store: store, ttl: MaxTTL, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	if a.ttl <= 0 || a.ttl > MaxTTL {
		a.ttl = MaxTTL
	}
	return a
}

// Authorize reports whether principal's role is granted permission.
// Unknown principals, unknown permissions and store failures all deny.
func (a *Authorizer) Authorize(ctx context.Context, p model.Principal, permission string) bool {
	if p.IsZero() || !p.RoleID.Valid() || permission == "" {
		return false
	}
	perms, err := a.rolePermissions(ctx, p.RoleID)
	if err != nil {
		a.logger.ErrorContext(ctx, "permission check failed",
			"user_id", p.UserID, "permission", permission, "error", err)
		return false
	}
	_, ok := perms[permission]
	return ok
}

// Permissions returns the sorted permission names granted to role.
func (a *Authorizer) Permissions(ctx context.Context, role model.RoleID) ([]string, error) {
	perms, err := a.rolePermissions(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(perms))
	for name := range perms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Matrix returns every role with its sorted permissions.
func (a *Authorizer) Matrix(ctx context.Context) (map[model.RoleID][]string, error) {
	out := make(map[model.RoleID][]string, len(model.AllRoles()))
	for _, r := range model.AllRoles() {
		perms, err := a.Permissions(ctx, r)
		if err != nil {
			return nil, err
		}
		out[r] = perms
	}
	return out, nil
}

// Grant adds a grant and invalidates the cache.
func (a *Authorizer) Grant(ctx context.Context, role model.RoleID, permission string) error {
	if !role.Valid() {
		return ErrUnknownRole
	}
	if err := a.store.Grant(ctx, role, permission); err != nil {
		return err
	}
	a.Invalidate(ctx)
	return nil
}

// Revoke removes a grant and invalidates the cache.  Revoking a grant
// that does not exist is not an error.
func (a *Authorizer) Revoke(ctx context.Context, role model.RoleID, permission string) error {
	if !role.Valid() {
		return ErrUnknownRole
	}
	if err := a.store.Revoke(ctx, role, permission); err != nil {
		return err
	}
	a.Invalidate(ctx)
	return nil
}

// Invalidate bumps the version so that the next check rebuilds, and
// announces the change to other processes when a notifier is set.
func (a *Authorizer) Invalidate(ctx context.Context) {
	a.version.Add(1)
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Publish(ctx); err != nil {
		a.logger.WarnContext(ctx, "grant change not broadcast", "error", err)
	}
}

// Watch applies remote invalidations until ctx is cancelled.  It is a
// no-op without a notifier.
func (a *Authorizer) Watch(ctx context.Context) error {
	if a.notifier == nil {
		<-ctx.Done()
		return nil
	}
	return a.notifier.Subscribe(ctx, func() { a.version.Add(1) })
}

func (a *Authorizer) rolePermissions(ctx context.Context, role model.RoleID) (map[string]struct{}, error) {
	a.mu.RLock()
	if a.freshLocked() {
		perms := a.byRole[role]
		a.mu.RUnlock()
		return perms, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.freshLocked() {
		if err := a.reloadLocked(ctx); err != nil {
			return nil, err
		}
	}
	return a.byRole[role], nil
}

func (a *Authorizer) freshLocked() bool {
	return a.loaded &&
		a.built == a.version.Load() &&
		a.now().Sub(a.loadedAt) < a.ttl
}

func (a *Authorizer) reloadLocked(ctx context.Context) error {
	// Read the version before the store so that a write racing with the
	// load leaves the cache stale rather than silently current.
	v := a.version.Load()
	matrix, err := a.store.RolePermissions(ctx)
	if err != nil {
		a.loaded = false
		return err
	}
	byRole := make(map[model.RoleID]map[string]struct{}, len(matrix))
	for role, names := range matrix {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		byRole[role] = set
	}
	a.byRole = byRole
	a.loadedAt = a.now()
	a.built = v
	a.loaded = true
	return nil
}
