package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrUnsupported         = errors.New("geolocation not supported")
)

// Platform error codes, numbered like the W3C Geolocation API.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// PositionError is what a PositionSource returns for a platform failure.
type PositionError struct {
	Code    int
	Message string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("position error %d: %s", e.Code, e.Message)
}

// PositionSource is the platform capability that produces fixes.
type PositionSource interface {
	CurrentPosition(ctx context.Context, opts Options) (geomodel.Location, error)
}

// SourceFunc adapts a function to PositionSource.
type SourceFunc func(ctx context.Context, opts Options) (geomodel.Location, error)

func (f SourceFunc) CurrentPosition(ctx context.Context, opts Options) (geomodel.Location, error) {
	return f(ctx, opts)
}

// StaticSource always reports the same coordinates, stamped with the current time.
type StaticSource struct {
	Location geomodel.Location
	Clock    utils.Clock
}

func (s StaticSource) CurrentPosition(ctx context.Context, _ Options) (geomodel.Location, error) {
	if err := ctx.Err(); err != nil {
		return geomodel.Location{}, err
	}
	loc := s.Location
	if s.Clock != nil {
		loc.Timestamp = s.Clock.Now()
	} else {
		loc.Timestamp = time.Now()
	}
	return loc, nil
}

// Options mirrors the platform acquisition options.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
	// Interval is the polling cadence of WatchLocation.
	Interval time.Duration
}

// DefaultOptions returns the single-shot defaults.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaximumAge:   60 * time.Second,
		Interval:     30 * time.Second,
	}
}

// DefaultWatchOptions returns the continuous-watch defaults.
func DefaultWatchOptions() Options {
	opts := DefaultOptions()
	opts.MaximumAge = 30 * time.Second
	return opts
}

// Locator acquires and watches the device position.
type Locator struct {
	source PositionSource
	clock  utils.Clock
	log    *zap.Logger

	mu   sync.Mutex
	last *geomodel.Location
}

// NewLocator builds a Locator over source. A nil source makes every call fail
// with ErrUnsupported.
func NewLocator(source PositionSource, clock utils.Clock, logger *zap.Logger) *Locator {
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{source: source, clock: clock, log: logger.Named("geo")}
}

// CurrentLocation performs one acquisition. A cached fix younger than
// opts.MaximumAge is returned without asking the source.
func (l *Locator) CurrentLocation(ctx context.Context, opts Options) (geomodel.Location, error) {
	if l.source == nil {
		return geomodel.Location{}, ErrUnsupported
	}

	if cached, ok := l.cached(opts.MaximumAge); ok {
		return cached, nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	loc, err := l.source.CurrentPosition(ctx, opts)
	if err != nil {
		return geomodel.Location{}, classify(err)
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = l.clock.Now()
	}

	l.mu.Lock()
	l.last = &loc
	l.mu.Unlock()
	return loc, nil
}

func (l *Locator) cached(maxAge time.Duration) (geomodel.Location, bool) {
	if maxAge <= 0 {
		return geomodel.Location{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil || l.clock.Now().Sub(l.last.Timestamp) > maxAge {
		return geomodel.Location{}, false
	}
	return *l.last, true
}

// WatchLocation delivers a fix to callback right away and then every
// opts.Interval until cancel is called. Acquisition errors are logged and
// the watch keeps running.
func (l *Locator) WatchLocation(callback func(geomodel.Location), opts Options) (cancel func(), err error) {
	if l.source == nil {
		return nil, ErrUnsupported
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchOptions().Interval
	}

	ctx, stopCtx := context.WithCancel(context.Background())
	poll := func() {
		if ctx.Err() != nil {
			return
		}
		loc, err := l.CurrentLocation(ctx, opts)
		if err != nil {
			if ctx.Err() == nil {
				l.log.Warn("watch location failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() == nil {
			callback(loc)
		}
	}

	go poll()
	stopTicker := l.clock.Every(opts.Interval, poll)

	var once sync.Once
	return func() {
		once.Do(func() {
			stopCtx()
			stopTicker()
		})
	}, nil
}

// classify maps platform failures onto the three distinct error kinds.
func classify(err error) error {
	var perr *PositionError
	if errors.As(err, &perr) {
		switch perr.Code {
		case CodePermissionDenied:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, perr.Message)
		case CodePositionUnavailable:
			return fmt.Errorf("%w: %s", ErrPositionUnavailable, perr.Message)
		case CodeTimeout:
			return fmt.Errorf("%w: %s", ErrTimeout, perr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("get location: %w", err)
}
