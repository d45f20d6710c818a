package geo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

func TestCurrentLocationDistinctFailures(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{code: CodePermissionDenied, want: ErrPermissionDenied},
		{code: CodePositionUnavailable, want: ErrPositionUnavailable},
		{code: CodeTimeout, want: ErrTimeout},
	}

	for _, tc := range cases {
		source := SourceFunc(func(context.Context, Options) (geomodel.Location, error) {
			return geomodel.Location{}, &PositionError{Code: tc.code, Message: "platform"}
		})
		locator := NewLocator(source, nil, nil)

		_, err := locator.CurrentLocation(context.Background(), DefaultOptions())
		require.Error(t, err)
		assert.ErrorIs(t, err, tc.want)
		for _, other := range []error{ErrPermissionDenied, ErrPositionUnavailable, ErrTimeout} {
			if other != tc.want {
				assert.NotErrorIs(t, err, other)
			}
		}
	}
}

func TestCurrentLocationDeadlineIsTimeout(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, _ Options) (geomodel.Location, error) {
		<-ctx.Done()
		return geomodel.Location{}, ctx.Err()
	})
	locator := NewLocator(source, nil, nil)

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	_, err := locator.CurrentLocation(context.Background(), opts)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCurrentLocationWithoutSource(t *testing.T) {
	locator := NewLocator(nil, nil, nil)

	_, err := locator.CurrentLocation(context.Background(), DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = locator.WatchLocation(func(geomodel.Location) {}, DefaultWatchOptions())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCurrentLocationHonoursMaximumAge(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	var calls atomic.Int32
	source := SourceFunc(func(context.Context, Options) (geomodel.Location, error) {
		calls.Add(1)
		return geomodel.Location{Latitude: 1, Longitude: 2}, nil
	})
	locator := NewLocator(source, clock, nil)
	opts := DefaultOptions()

	first, err := locator.CurrentLocation(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), first.Timestamp)

	clock.Advance(30 * time.Second)
	_, err = locator.CurrentLocation(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(31 * time.Second)
	_, err = locator.CurrentLocation(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWatchLocationLogsErrorsAndKeepsWatching(t *testing.T) {
	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	core, logs := observer.New(zap.WarnLevel)

	var healthy atomic.Bool
	source := SourceFunc(func(context.Context, Options) (geomodel.Location, error) {
		if !healthy.Load() {
			return geomodel.Location{}, &PositionError{Code: CodePositionUnavailable, Message: "no fix"}
		}
		return geomodel.Location{Latitude: -34.6, Longitude: -58.4}, nil
	})
	locator := NewLocator(source, clock, zap.New(core))

	fixes := make(chan geomodel.Location, 4)
	opts := DefaultWatchOptions()
	opts.MaximumAge = 0
	cancel, err := locator.WatchLocation(func(loc geomodel.Location) { fixes <- loc }, opts)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("watch location failed").Len() >= 1
	}, time.Second, 5*time.Millisecond)

	healthy.Store(true)
	clock.Advance(opts.Interval)

	select {
	case fix := <-fixes:
		assert.Equal(t, -34.6, fix.Latitude)
	case <-time.After(time.Second):
		t.Fatal("expected a fix after the source recovered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, clock.Active(opts.Interval))
}

func TestClassifyPassesThroughUnknownErrors(t *testing.T) {
	base := errors.New("gps chip on fire")
	err := classify(base)
	assert.ErrorIs(t, err, base)
	assert.NotErrorIs(t, err, ErrTimeout)
}
