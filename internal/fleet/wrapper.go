package fleet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/melbridge/melbridge/internal/melcloud"
)

// MinRefreshInterval is the minimum spacing between effective refreshes of
// the same wrapper. Calls inside the window are no-ops, not queued.
const MinRefreshInterval = 5 * time.Minute

// throttle is an explicit per-wrapper rate limiter: a single
// check-and-update of the last effective invocation time.
type throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
}

func (t *throttle) allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() && now.Sub(t.last) < t.minInterval {
		return false
	}
	t.last = now
	return true
}

// Wrapper mediates all reads and writes between the presentation layer and
// one remote device, converting remote failures into a binary availability
// signal while the accessor keeps the most recent known-good state.
//
// A refresh and a write on the same wrapper may race; the availability flag
// then reflects whichever outcome was observed last. This is an accepted
// limitation of the polling model, not something the wrapper locks against.
type Wrapper struct {
	accessor Accessor
	name     string
	log      *slog.Logger

	throttle  throttle
	available atomic.Bool
}

// NewWrapper wraps one device accessor. The display name is captured at
// construction and not re-synced afterwards.
func NewWrapper(accessor Accessor, logger *slog.Logger) *Wrapper {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wrapper{
		accessor: accessor,
		name:     accessor.Name(),
		log:      logger,
		throttle: throttle{minInterval: MinRefreshInterval},
	}
	w.available.Store(true)
	return w
}

// Name returns the device display name captured at construction.
func (w *Wrapper) Name() string { return w.name }

// Kind returns the device class name ("ata", "atw", "erv").
func (w *Wrapper) Kind() string { return w.accessor.Kind() }

// Available reports the outcome of the last refresh or write that could
// determine connectivity.
func (w *Wrapper) Available() bool { return w.available.Load() }

// Zones returns the device's sub-zones, empty for single-zone classes.
func (w *Wrapper) Zones() []ZoneInfo { return w.accessor.Zones() }

// Refresh pulls the latest state from the cloud, rate-limited so rapid
// re-invocations collapse to a single underlying call. Only an auth
// failure crosses this boundary as an error; it leaves availability
// untouched because the caller is expected to abort and re-authenticate.
func (w *Wrapper) Refresh(ctx context.Context) error {
	if !w.throttle.allow(time.Now()) {
		return nil
	}

	err := w.accessor.Update(ctx)
	if err == nil {
		w.available.Store(true)
		return nil
	}

	var failure *Failure
	if !errors.As(err, &failure) {
		failure = &Failure{Kind: FailureConnectivity, Err: err}
	}

	switch failure.Kind {
	case FailureAuth:
		return err
	case FailurePartialFeed:
		// A secondary feed errored after device state was already fetched
		// successfully; the state data is still valid.
		w.log.Debug("api error during update, device may still be functional",
			"device", w.name, "error", failure.Err)
		w.available.Store(true)
	case FailureShape:
		w.log.Warn("device update failed due to api incompatibility",
			"device", w.name, "error", failure.Err)
		w.available.Store(false)
	default:
		w.log.Warn("connection failed", "device", w.name, "error", failure.Err)
		w.available.Store(false)
	}
	return nil
}

// Write pushes a partial property update. Writes are not throttled.
// Connectivity failures are absorbed into the availability flag; any other
// failure is returned to the caller under the accessor's own contract.
func (w *Wrapper) Write(ctx context.Context, properties map[string]any) error {
	err := w.accessor.Set(ctx, properties)
	if err == nil {
		w.available.Store(true)
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) && failure.Kind == FailureConnectivity {
		w.log.Warn("connection failed", "device", w.name, "error", failure.Err)
		w.available.Store(false)
		return nil
	}
	return err
}

// Device returns the underlying concrete device when the accessor wraps
// one, for entity adapters needing class-specific reads. Nil for synthetic
// accessors.
func (w *Wrapper) Device() melcloud.Device {
	if h, ok := w.accessor.(interface{ Device() melcloud.Device }); ok {
		return h.Device()
	}
	return nil
}
