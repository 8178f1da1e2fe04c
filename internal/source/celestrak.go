package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/orbital/orbwatch/internal/catalog"
)

const defaultCelestrakURL = "https://celestrak.org/NORAD/elements/gp.php"

// Retry policy shared by both adapters: 3 attempts, exponential backoff.
const (
	fetchRetryCount   = 3
	fetchRetryWait    = 500 * time.Millisecond
	fetchRetryMaxWait = 5 * time.Second
)

// Celestrak is the high-cadence supplemental adapter (SourcePrimary).
type Celestrak struct {
	client  *resty.Client
	limiter *Limiter
	logger  *slog.Logger
}

var _ Adapter = (*Celestrak)(nil)

// CelestrakConfig configures the primary-source adapter.
type CelestrakConfig struct {
	BaseURL     string
	RateLimit   time.Duration // min spacing between requests
	HTTPTimeout time.Duration
}

// NewCelestrak creates the primary-source adapter.
func NewCelestrak(cfg CelestrakConfig, logger *slog.Logger) *Celestrak {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCelestrakURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(fetchRetryCount).
		SetRetryWaitTime(fetchRetryWait).
		SetRetryMaxWaitTime(fetchRetryMaxWait).
		AddRetryCondition(retryOnServerError)

	return &Celestrak{
		client:  client,
		limiter: NewLimiter(cfg.RateLimit),
		logger:  logger.With("component", "source", "source", string(catalog.SourcePrimary)),
	}
}

func (c *Celestrak) Name() catalog.Source {
	return catalog.SourcePrimary
}

// Fetch retrieves TLE text per catalog id. A single object's failure is
// logged and skipped; the fetch only errors when nothing could be retrieved.
func (c *Celestrak) Fetch(ctx context.Context, catalogIDs []int) ([]catalog.ElementSnapshot, error) {
	fetchedAt := time.Now().UTC()
	var snaps []catalog.ElementSnapshot
	var failed int

	for _, id := range catalogIDs {
		if err := c.limiter.Wait(ctx); err != nil {
			return snaps, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"CATNR":  fmt.Sprintf("%d", id),
				"FORMAT": "tle",
			}).
			Get("")
		if err != nil {
			c.logger.Warn("fetch failed", "catalog_id", id, "error", err)
			failed++
			continue
		}
		if resp.StatusCode() != 200 {
			c.logger.Warn("fetch returned non-200", "catalog_id", id, "status", resp.StatusCode())
			failed++
			continue
		}

		parsed, err := catalog.Parse(strings.NewReader(resp.String()), catalog.SourcePrimary, fetchedAt, c.logger)
		if err != nil {
			c.logger.Warn("parse failed", "catalog_id", id, "error", err)
			failed++
			continue
		}
		snaps = append(snaps, parsed...)
	}

	if len(snaps) == 0 && failed > 0 {
		return nil, fmt.Errorf("all %d object fetches failed", failed)
	}
	return snaps, nil
}
