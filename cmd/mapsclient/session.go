package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

const (
	refreshCheckInterval = time.Minute
	refreshWindow        = 5 * time.Minute
)

type freshener interface {
	EnsureFresh(ctx context.Context, d time.Duration) (authmodel.Session, error)
}

// keepFresh refreshes the credential on every tick once it is about to
// expire. A failed refresh signs the holder out, which is logged here.
func keepFresh(ctx context.Context, holder freshener, clock utils.Clock, logger *zap.Logger) (stop func()) {
	return clock.Every(refreshCheckInterval, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := holder.EnsureFresh(ctx, refreshWindow); err != nil {
			logger.Warn("credential refresh failed", zap.Error(err))
		}
	})
}
