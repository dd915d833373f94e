package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// fuelState is stashed in the invocation's context so the yield host call
// can decrement it without a global.
type fuelState struct {
	remaining uint64
	exhausted bool
}

type fuelStateKey struct{}

func withFuelState(ctx context.Context, fs *fuelState) context.Context {
	return context.WithValue(ctx, fuelStateKey{}, fs)
}

func fuelStateFrom(ctx context.Context) *fuelState {
	fs, _ := ctx.Value(fuelStateKey{}).(*fuelState)
	return fs
}

// clockState anchors the "homestar" clock imports to the moment the
// instance was invoked, so a module reading clock_nanos() at its first
// instruction observes (close to) zero rather than a wall-clock epoch.
type clockState struct {
	start time.Time
}

type clockStateKey struct{}

func withClockState(ctx context.Context, cs *clockState) context.Context {
	return context.WithValue(ctx, clockStateKey{}, cs)
}

func clockStateFrom(ctx context.Context) *clockState {
	cs, _ := ctx.Value(clockStateKey{}).(*clockState)
	return cs
}

// logLevel maps the guest's numeric level argument to a slog.Level, the
// same four-level scheme the rest of this module logs at.
func logLevel(level uint32) slog.Level {
	switch level {
	case 0:
		return slog.LevelDebug
	case 2:
		return slog.LevelWarn
	case 3:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildHostModule wires the "homestar" host import module: a logger
// (level, category, message), a monotonic clock (seconds/millis/nanos
// since this instance was invoked), and a cooperative yield point
// modules are expected to call periodically in any unbounded loop.
// Every instruction spent between yields is uncharged -- this is
// deliberately a cooperative fuel model, not an instruction counter,
// since wazero doesn't expose one.
func buildHostModule(ctx context.Context, runtime wazero.Runtime, logger *slog.Logger) error {
	readString := func(mod api.Module, ptr, length uint32) string {
		buf, ok := mod.Memory().Read(ptr, length)
		if !ok {
			return ""
		}
		return string(buf)
	}

	_, err := runtime.NewHostModuleBuilder("homestar").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, level, catPtr, catLen, msgPtr, msgLen uint32) {
			category := readString(mod, catPtr, catLen)
			msg := readString(mod, msgPtr, msgLen)
			logger.Log(ctx, logLevel(level), msg, "module", mod.Name(), "category", category)
		}).
		Export("log").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int64 {
			cs := clockStateFrom(ctx)
			if cs == nil {
				return 0
			}
			return int64(time.Since(cs.start).Seconds())
		}).
		Export("clock_seconds").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int64 {
			cs := clockStateFrom(ctx)
			if cs == nil {
				return 0
			}
			return time.Since(cs.start).Milliseconds()
		}).
		Export("clock_millis").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int64 {
			cs := clockStateFrom(ctx)
			if cs == nil {
				return 0
			}
			return time.Since(cs.start).Nanoseconds()
		}).
		Export("clock_nanos").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, cost uint64) uint32 {
			fs := fuelStateFrom(ctx)
			if fs == nil {
				return 0
			}
			if fs.remaining < cost {
				fs.remaining = 0
				fs.exhausted = true
				return 1
			}
			fs.remaining -= cost
			return 0
		}).
		Export("yield").
		Instantiate(ctx)
	return err
}
