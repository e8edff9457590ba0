package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"torrentbridge/internal/metrics"
	"torrentbridge/internal/subtitle"
)

type TidySubtitles struct {
	Fs     afero.Fs
	Logger *slog.Logger
}

func (uc TidySubtitles) Execute(ctx context.Context, path string) (subtitle.Stats, error) {
	if err := ctx.Err(); err != nil {
		return subtitle.Stats{}, err
	}
	if strings.TrimSpace(path) == "" {
		return subtitle.Stats{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	fs := uc.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stats, err := subtitle.TidyFile(fs, path)
	if err != nil {
		metrics.TidyRunsTotal.WithLabelValues("error").Inc()
		logger.Warn("subtitle tidy failed",
			slog.String("filePath", path),
			slog.String("error", err.Error()),
		)
		return stats, err
	}
	metrics.TidyRunsTotal.WithLabelValues("ok").Inc()
	logger.Info("subtitle tidied",
		slog.String("filePath", path),
		slog.Int("cuesParsed", stats.Parsed),
		slog.Int("cuesKept", stats.Kept),
	)
	return stats, nil
}
