// Package geoip keeps a MaxMind country database current and resolves the
// country of check clients from it.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Refresh downloads the database at url into path when the local copy is
// missing or older than maxAge. It reports whether a new copy was written.
// The existing file is replaced only after a complete download.
func Refresh(ctx context.Context, client *http.Client, path, url string, maxAge time.Duration) (bool, error) {
	fresh, err := isFresh(path, maxAge, time.Now())
	if err != nil {
		return false, err
	}
	if fresh {
		log.Debug().Str("path", path).Msg("GeoIP database is current")
		return false, nil
	}

	if client == nil {
		client = http.DefaultClient
	}

	log.Info().Str("path", path).Str("url", url).Msg("Downloading GeoIP database")
	started := time.Now()

	n, err := fetch(ctx, client, path, url)
	if err != nil {
		return false, err
	}

	log.Info().
		Str("path", path).
		Int64("bytes", n).
		Dur("took", time.Since(started)).
		Msg("GeoIP database updated")

	return true, nil
}

func isFresh(path string, maxAge time.Duration, now time.Time) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat geoip database: %w", err)
	}

	return now.Sub(info.ModTime()) < maxAge, nil
}

func fetch(ctx context.Context, client *http.Client, path, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req) //nolint:gosec
	if err != nil {
		return 0, fmt.Errorf("download geoip database: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download geoip database: unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write geoip database: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	return n, nil
}
