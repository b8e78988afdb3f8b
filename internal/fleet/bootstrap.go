package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/melbridge/melbridge/internal/credstore"
	"github.com/melbridge/melbridge/internal/melcloud"
)

// SetupTimeout bounds inventory retrieval during bootstrap. Exceeding it
// surfaces ErrNotReady rather than a partial fleet.
const SetupTimeout = 10 * time.Second

// Distinguishable bootstrap failures: the hub demands new credentials on
// ErrAuthFailed and retries later on ErrNotReady.
var (
	ErrAuthFailed = errors.New("melcloud authentication failed")
	ErrNotReady   = errors.New("melcloud not ready")
)

// Fleet maps device class name to the wrappers of that class. Wrapper
// identity within a class is stable for the session.
type Fleet map[string][]*Wrapper

// Devices flattens the fleet in class-grouped order.
func (f Fleet) Devices() []*Wrapper {
	var all []*Wrapper
	for _, class := range []string{melcloud.DeviceTypeAta, melcloud.DeviceTypeAtw, melcloud.DeviceTypeErv} {
		all = append(all, f[class]...)
	}
	return all
}

// Setup queries the connected devices and wraps each one, grouped by device
// class. Wrapping is uniform; no class gets special treatment here. The
// accessor's own polling knobs (conf refresh cadence, write debounce) are
// configured at this layer via opts.
func Setup(ctx context.Context, token string, httpClient *http.Client, logger *slog.Logger, opts ...melcloud.Option) (Fleet, error) {
	ctx, cancel := context.WithTimeout(ctx, SetupTimeout)
	defer cancel()

	client := melcloud.NewClient(token, httpClient, opts...)
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return nil, setupError(err)
	}

	wrapped := make(Fleet, len(devices))
	for class, devs := range devices {
		for _, dev := range devs {
			wrapped[class] = append(wrapped[class], NewWrapper(newDeviceAccessor(dev), logger))
		}
	}
	return wrapped, nil
}

// ResolveToken returns a usable context-key token: the stored one when the
// credential store has it, otherwise a fresh login whose result is
// persisted for the next run.
func ResolveToken(ctx context.Context, store credstore.Store, email, password string, httpClient *http.Client, opts ...melcloud.Option) (string, error) {
	data, err := store.Load(ctx)
	switch {
	case err == nil:
		state, err := credstore.DecodeState(data)
		if err == nil && state.Token != "" {
			return state.Token, nil
		}
		// Undecodable or empty state falls through to a fresh login.
	case errors.Is(err, credstore.ErrNotFound):
	default:
		return "", fmt.Errorf("load credential state: %w", err)
	}

	token, err := melcloud.Login(ctx, email, password, httpClient, opts...)
	if err != nil {
		return "", setupError(err)
	}

	encoded, err := credstore.EncodeState(credstore.State{Token: token})
	if err != nil {
		return "", err
	}
	if err := store.Save(ctx, encoded); err != nil {
		return "", fmt.Errorf("save credential state: %w", err)
	}
	return token, nil
}

// setupError folds bootstrap failures into the two conditions the caller
// can act on: bad credentials, or try again later.
func setupError(err error) error {
	var statusErr *melcloud.StatusError
	if errors.As(err, &statusErr) && statusErr.Unauthorized() {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrNotReady, err)
}
