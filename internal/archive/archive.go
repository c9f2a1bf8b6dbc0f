// Package archive copies generated reports to object storage after a run.
package archive

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	httpx "github.com/olcbioinformatics/sippr-launcher/internal/http"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// Uploader copies one local file to remote storage and returns its location.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// New builds the uploader selected by cfg.Provider. It returns nil, nil when
// archiving is disabled.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *logging.Logger) (Uploader, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	switch strings.ToLower(cfg.Provider) {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveS3:
		return NewS3Uploader(ctx, cfg, httpx.NewRetryingClient(logger), logger)
	case config.ArchiveAzure:
		return NewAzureUploader(cfg, httpx.NewRetryingClient(logger), logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidArchiveProvider, cfg.Provider)
	}
}

// objectKey joins prefix and the file's base name with forward slashes.
func objectKey(prefix, localPath string) string {
	return strings.TrimPrefix(path.Join(prefix, filepath.Base(localPath)), "/")
}

func contentType(localPath string) string {
	if t := mime.TypeByExtension(filepath.Ext(localPath)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func retryConfig(logger *logging.Logger, target string) httpx.Config {
	cfg := httpx.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, errType httpx.ErrorType) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("type", httpx.ErrorTypeName(errType)).
			Str("target", target).
			Msg("Archive upload failed, retrying")
	}
	return cfg
}
