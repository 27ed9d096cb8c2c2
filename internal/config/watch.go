package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// CatalogHandler applies a freshly loaded catalog.
type CatalogHandler func(ctx context.Context, cfg *CatalogConfig) error

// WatchCatalog applies catalog.yaml once, then polls its mtime and re-applies it on change.
// The first load must succeed; later broken edits are logged and skipped so the last good
// catalog stays in effect.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, apply CatalogHandler, logger *zerolog.Logger) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	lastMod, err := reloadCatalog(ctx, path, apply)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			info, err := os.Stat(path)
			if err != nil || !info.ModTime().After(lastMod) {
				continue
			}
			mod, err := reloadCatalog(ctx, path, apply)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("catalog reload skipped")
				// Retry only after the next edit.
				lastMod = info.ModTime()
				continue
			}
			lastMod = mod
			logger.Info().Str("path", path).Msg("catalog reloaded")
		}
	}()

	return nil
}

func reloadCatalog(ctx context.Context, path string, apply CatalogHandler) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat catalog: %w", err)
	}
	cfg, err := LoadCatalog(path)
	if err != nil {
		return time.Time{}, err
	}
	if apply != nil {
		if err := apply(ctx, cfg); err != nil {
			return time.Time{}, fmt.Errorf("apply catalog: %w", err)
		}
	}
	return info.ModTime(), nil
}
