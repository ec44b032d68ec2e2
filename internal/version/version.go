package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// Version is overridden at build time with -ldflags "-X ...version.Version=v1.2.3".
var Version = "v0.0.0"

type release struct {
	TagName string `json:"tag_name"`
}

// Newer reports whether latest is a newer release than current.
func Newer(current, latest string) (bool, error) {
	c, err := goversion.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("parse current version %q: %w", current, err)
	}
	l, err := goversion.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("parse latest version %q: %w", latest, err)
	}
	return c.LessThan(l), nil
}

// CheckForUpdates fetches the latest release tag from url, a GitHub style
// releases/latest endpoint, and logs a warning when this build is outdated.
// Failures are logged at debug level and otherwise ignored.
func CheckForUpdates(ctx context.Context, url string, log *zap.Logger) {
	if url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Debug("update check skipped", zap.Error(err))
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debug("update check failed", zap.Error(err))
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Debug("update check failed", zap.Int("status", resp.StatusCode))
		return
	}

	var r release
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		log.Debug("update check failed", zap.Error(err))
		return
	}

	newer, err := Newer(Version, r.TagName)
	if err != nil {
		log.Debug("update check failed", zap.Error(err))
		return
	}
	if newer {
		log.Warn("a newer release is available",
			zap.String("current", Version),
			zap.String("latest", r.TagName),
		)
	}
}
