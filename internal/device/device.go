// Package device derives device identifiers and enforces time-limited
// device-to-account bindings.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"classattend/internal/metrics"
)

// FingerprintHeader carries the browser-computed visitor id.
const FingerprintHeader = "X-Device-Fingerprint"

// DefaultTTL is how long a binding holds a device to one account.
const DefaultTTL = 4 * time.Hour

// ErrNotFound is returned by a BindingStore when no binding exists for a device.
var ErrNotFound = errors.New("device binding not found")

// Binding ties a device id to an account email until ExpireAt.
type Binding struct {
	DeviceID  string
	Email     string
	CreatedAt time.Time
	ExpireAt  time.Time
}

// BindingStore persists bindings keyed by device id.
type BindingStore interface {
	Get(ctx context.Context, deviceID string) (Binding, error)
	Upsert(ctx context.Context, b Binding) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Policy decides what an expired binding means.
type Policy string

const (
	// PolicyDeny rejects a device whose binding has lapsed until a sweep removes it.
	PolicyDeny Policy = "deny"
	// PolicyAllow treats a lapsed binding as absent.
	PolicyAllow Policy = "allow"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	ReasonNoDevice   = "no device id"
	ReasonUnbound    = "device not bound"
	ReasonSameOwner  = "bound to this account"
	ReasonOtherOwner = "bound to another account"
	ReasonExpired    = "binding expired"
)

// Identify derives a stable device id from the request. It prefers the
// fingerprint header and falls back to a hash of browser traits. An empty
// result means the device could not be identified and is not restricted.
func Identify(r *http.Request, salt string) string {
	if r == nil {
		return ""
	}
	if fp := strings.TrimSpace(r.Header.Get(FingerprintHeader)); fp != "" {
		return hash(salt, "fp", fp)
	}
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return ""
	}
	return hash(salt, "ua", ua, r.Header.Get("Accept-Language"), r.Header.Get("Sec-CH-UA-Platform"))
}

func hash(salt string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Registry binds devices to accounts and answers admission checks.
type Registry struct {
	store  BindingStore
	ttl    time.Duration
	policy Policy
	log    *zap.Logger
	now    func() time.Time

	// onBind runs after every successful Bind. It defaults to an asynchronous sweep.
	onBind func(ctx context.Context)
}

// Option customises a Registry.
type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(r *Registry) {
		if p == PolicyAllow || p == PolicyDeny {
			r.policy = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSweepTrigger replaces the in-process sweep after Bind, e.g. with a queue publish.
func WithSweepTrigger(fn func(ctx context.Context)) Option {
	return func(r *Registry) { r.onBind = fn }
}

func NewRegistry(store BindingStore, log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{store: store, ttl: DefaultTTL, policy: PolicyDeny, log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.onBind == nil {
		r.onBind = func(context.Context) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := r.Sweep(ctx); err != nil {
					r.log.Warn("device sweep failed", zap.Error(err))
				}
			}()
		}
	}
	return r
}

// Bind upserts the binding for deviceID and returns its expiry. When
// windowStart is set the binding lapses TTL after the window opened, but
// never before now.
func (r *Registry) Bind(ctx context.Context, deviceID, email string, windowStart *time.Time) (time.Time, error) {
	if deviceID == "" {
		return time.Time{}, nil
	}
	if email == "" {
		return time.Time{}, errors.New("email required")
	}
	now := r.now().UTC()
	expireAt := now.Add(r.ttl)
	if windowStart != nil {
		expireAt = windowStart.UTC().Add(r.ttl)
		if expireAt.Before(now) {
			expireAt = now
		}
	}
	b := Binding{DeviceID: deviceID, Email: email, CreatedAt: now, ExpireAt: expireAt}
	if err := r.store.Upsert(ctx, b); err != nil {
		return time.Time{}, err
	}
	r.onBind(ctx)
	return expireAt, nil
}

// Check reports whether email may use deviceID.
func (r *Registry) Check(ctx context.Context, deviceID, email string) (Decision, error) {
	d, err := r.check(ctx, deviceID, email)
	if err != nil {
		return Decision{}, err
	}
	if d.Allowed {
		metrics.DeviceChecks.WithLabelValues("allowed").Inc()
	} else {
		metrics.DeviceChecks.WithLabelValues("denied").Inc()
	}
	return d, nil
}

func (r *Registry) check(ctx context.Context, deviceID, email string) (Decision, error) {
	if deviceID == "" {
		return Decision{Allowed: true, Reason: ReasonNoDevice}, nil
	}
	b, err := r.store.Get(ctx, deviceID)
	if errors.Is(err, ErrNotFound) {
		return Decision{Allowed: true, Reason: ReasonUnbound}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	if b.ExpireAt.Before(r.now()) {
		if r.policy == PolicyAllow {
			return Decision{Allowed: true, Reason: ReasonExpired}, nil
		}
		return Decision{Allowed: false, Reason: ReasonExpired}, nil
	}
	if b.Email != email {
		return Decision{Allowed: false, Reason: ReasonOtherOwner}, nil
	}
	return Decision{Allowed: true, Reason: ReasonSameOwner}, nil
}

// Sweep deletes every binding that expired before now.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, r.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.DeviceSwept.Add(float64(n))
		r.log.Debug("swept device bindings", zap.Int64("deleted", n))
	}
	return n, nil
}
