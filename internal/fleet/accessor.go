package fleet

import (
	"context"
	"errors"

	"github.com/melbridge/melbridge/internal/melcloud"
)

// FailureKind classifies accessor errors at the adapter boundary so the
// wrapper can branch without knowing concrete client error types.
type FailureKind int

const (
	// FailureConnectivity is a transient transport fault. The device is
	// marked unavailable and polling continues.
	FailureConnectivity FailureKind = iota
	// FailureAuth means the credentials were rejected. Always propagated,
	// never swallowed.
	FailureAuth
	// FailurePartialFeed means a secondary data source failed after the
	// primary state was already fetched. The device stays available.
	FailurePartialFeed
	// FailureShape is an accessor contract mismatch, e.g. version skew
	// between this bridge and the remote API.
	FailureShape
)

func (k FailureKind) String() string {
	switch k {
	case FailureConnectivity:
		return "connectivity"
	case FailureAuth:
		return "auth"
	case FailurePartialFeed:
		return "partial-feed"
	case FailureShape:
		return "shape"
	default:
		return "unknown"
	}
}

// Failure is a classified accessor error.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// UnitInfo is the identity-relevant slice of a physical unit.
type UnitInfo struct {
	Model string
}

// ZoneInfo identifies one sub-zone of a multi-zone device.
type ZoneInfo struct {
	Index int
	Name  string
}

// Accessor is the narrow capability surface the wrapper depends on. Both
// methods return *Failure-classified errors; the concrete client never
// leaks through.
type Accessor interface {
	Update(ctx context.Context) error
	Set(ctx context.Context, properties map[string]any) error

	Name() string
	Mac() string
	Serial() string
	DeviceID() int
	BuildingID() int
	Kind() string
	Units() []UnitInfo
	Zones() []ZoneInfo
}

// deviceAccessor adapts a melcloud.Device to the Accessor interface,
// classifying client errors into failure kinds on the way out.
type deviceAccessor struct {
	dev melcloud.Device
}

func newDeviceAccessor(dev melcloud.Device) *deviceAccessor {
	return &deviceAccessor{dev: dev}
}

func (a *deviceAccessor) Update(ctx context.Context) error {
	return classify(a.dev.Update(ctx))
}

func (a *deviceAccessor) Set(ctx context.Context, properties map[string]any) error {
	return classify(a.dev.Set(ctx, properties))
}

func (a *deviceAccessor) Name() string    { return a.dev.Name() }
func (a *deviceAccessor) Mac() string     { return a.dev.Mac() }
func (a *deviceAccessor) Serial() string  { return a.dev.Serial() }
func (a *deviceAccessor) DeviceID() int   { return a.dev.DeviceID() }
func (a *deviceAccessor) BuildingID() int { return a.dev.BuildingID() }
func (a *deviceAccessor) Kind() string    { return a.dev.Kind() }

func (a *deviceAccessor) Units() []UnitInfo {
	units := a.dev.Units()
	infos := make([]UnitInfo, 0, len(units))
	for _, u := range units {
		infos = append(infos, UnitInfo{Model: u.Model})
	}
	return infos
}

func (a *deviceAccessor) Zones() []ZoneInfo {
	atw, ok := a.dev.(*melcloud.AtwDevice)
	if !ok {
		return nil
	}
	zones := atw.Zones()
	infos := make([]ZoneInfo, 0, len(zones))
	for _, z := range zones {
		infos = append(infos, ZoneInfo{Index: z.Index(), Name: z.Name()})
	}
	return infos
}

// Device returns the wrapped concrete device for entity adapters that need
// class-specific reads.
func (a *deviceAccessor) Device() melcloud.Device { return a.dev }

// classify maps melcloud client errors onto failure kinds. A rejection
// with a 401 is an auth failure; any other rejection status is treated as
// a partial-feed error because the API reports secondary-feed problems
// through ordinary status codes after primary state has been served.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *melcloud.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Unauthorized() {
			return &Failure{Kind: FailureAuth, Err: err}
		}
		return &Failure{Kind: FailurePartialFeed, Err: err}
	}

	var shapeErr *melcloud.ShapeError
	if errors.As(err, &shapeErr) {
		return &Failure{Kind: FailureShape, Err: err}
	}

	return &Failure{Kind: FailureConnectivity, Err: err}
}
