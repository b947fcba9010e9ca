package facility

import (
	"context"

	"go.uber.org/zap"

	"github.com/rosterlink/backend/internal/domain/integration"
)

// archivePage hands a raw page to the archive. Failures are logged only.
func archivePage(ctx context.Context, archive integration.PageArchive, logger *zap.Logger, platform integration.PlatformCode, ref string, body []byte) {
	if archive == nil || len(body) == 0 {
		return
	}
	if err := archive.Archive(ctx, platform, ref, body); err != nil {
		logger.Warn("failed to archive raw page",
			zap.String("ref", ref),
			zap.Error(err),
		)
	}
}
