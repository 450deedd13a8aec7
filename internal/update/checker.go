package update

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rebbit-player/rebbit/internal/config"
)

// Version is the running release, compared against the marker
// published in the project README.
const Version = "v1.0.0"

var versionPattern = regexp.MustCompile(`\bv(\d+)\.(\d+)\.(\d+)\b`)

// Checker fetches the project README from GitHub raw and looks for a
// newer release marker. Failures are logged and swallowed: an update
// check must never get in the user's way.
type Checker struct {
	client    *retryablehttp.Client
	readmeURL string
	debug     bool
}

func NewChecker(cfg *config.Config) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = time.Duration(cfg.Update.Timeout) * time.Second
	client.Logger = nil

	return &Checker{
		client:    client,
		readmeURL: cfg.Update.ReadmeURL,
		debug:     cfg.Debug,
	}
}

// Check fetches the latest published version. It returns the version
// string and whether it is newer than the running release.
func (c *Checker) Check(ctx context.Context) (string, bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", c.readmeURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch readme: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != 200 {
		return "", false, fmt.Errorf("bad status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false, fmt.Errorf("read readme: %w", err)
	}

	latest := versionPattern.FindString(string(body))
	if latest == "" {
		return "", false, fmt.Errorf("no version marker in readme")
	}

	return latest, newerThan(latest, Version), nil
}

// CheckAsync runs Check on a worker goroutine and invokes the
// callback only when a newer version exists.
func (c *Checker) CheckAsync(ctx context.Context, onUpdate func(latest string)) {
	go func() {
		latest, newer, err := c.Check(ctx)
		if err != nil {
			c.debugLog("Update check failed: %v", err)
			return
		}
		if newer && onUpdate != nil {
			onUpdate(latest)
		}
	}()
}

func newerThan(a, b string) bool {
	pa := parseVersion(a)
	pb := parseVersion(b)

	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			return pa[i] > pb[i]
		}
	}
	return false
}

func parseVersion(v string) [3]int {
	var parts [3]int

	fields := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	for i := 0; i < len(fields) && i < 3; i++ {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			break
		}
		parts[i] = n
	}

	return parts
}

func (c *Checker) debugLog(format string, args ...interface{}) {
	if c.debug {
		log.Printf("[UPDATE] "+format, args...)
	}
}
