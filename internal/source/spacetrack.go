package source

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/orbital/orbwatch/internal/catalog"
)

const defaultSpaceTrackURL = "https://www.space-track.org"

// SpaceTrack is the authoritative, lower-cadence adapter
// (SourceAuthoritative). The API is session-based: login lazily on first
// fetch, re-authenticate once on a 401.
type SpaceTrack struct {
	client  *resty.Client
	limiter *Limiter
	logger  *slog.Logger

	identity string
	password string

	mu       sync.Mutex
	loggedIn bool
}

var _ Adapter = (*SpaceTrack)(nil)

// SpaceTrackConfig configures the authoritative-source adapter.
type SpaceTrackConfig struct {
	BaseURL     string
	Identity    string
	Password    string
	RateLimit   time.Duration
	HTTPTimeout time.Duration
}

// NewSpaceTrack creates the authoritative-source adapter.
func NewSpaceTrack(cfg SpaceTrackConfig, logger *slog.Logger) *SpaceTrack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSpaceTrackURL
	}
	if cfg.RateLimit <= 0 {
		// Space-Track enforces a much stricter budget than CelesTrak.
		cfg.RateLimit = 12 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(fetchRetryCount).
		SetRetryWaitTime(fetchRetryWait).
		SetRetryMaxWaitTime(fetchRetryMaxWait).
		AddRetryCondition(retryOnServerError)

	return &SpaceTrack{
		client:   client,
		limiter:  NewLimiter(cfg.RateLimit),
		logger:   logger.With("component", "source", "source", string(catalog.SourceAuthoritative)),
		identity: cfg.Identity,
		password: cfg.Password,
	}
}

func (s *SpaceTrack) Name() catalog.Source {
	return catalog.SourceAuthoritative
}

// Fetch retrieves the latest 3LE set for all requested ids in one query.
func (s *SpaceTrack) Fetch(ctx context.Context, catalogIDs []int) ([]catalog.ElementSnapshot, error) {
	if len(catalogIDs) == 0 {
		return nil, nil
	}

	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ids := make([]string, len(catalogIDs))
	for i, id := range catalogIDs {
		ids[i] = strconv.Itoa(id)
	}
	path := fmt.Sprintf(
		"/basicspacedata/query/class/gp/NORAD_CAT_ID/%s/orderby/NORAD_CAT_ID/format/3le",
		strings.Join(ids, ","),
	)

	resp, err := s.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("fetching authoritative elements: %w", err)
	}
	if resp.StatusCode() == 401 {
		// Session expired; re-auth once and retry.
		s.invalidateSession()
		if err := s.ensureSession(ctx); err != nil {
			return nil, err
		}
		resp, err = s.client.R().SetContext(ctx).Get(path)
		if err != nil {
			return nil, fmt.Errorf("fetching authoritative elements: %w", err)
		}
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d from authoritative source", resp.StatusCode())
	}

	fetchedAt := time.Now().UTC()
	body := strip3LEPrefix(resp.String())
	snaps, err := catalog.Parse(strings.NewReader(body), catalog.SourceAuthoritative, fetchedAt, s.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing authoritative elements: %w", err)
	}
	return snaps, nil
}

func (s *SpaceTrack) ensureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedIn {
		return nil
	}
	if s.identity == "" || s.password == "" {
		return fmt.Errorf("authoritative source credentials not configured")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"identity": s.identity,
			"password": s.password,
		}).
		Post("/ajaxauth/login")
	if err != nil {
		return fmt.Errorf("authoritative source login: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("authoritative source login: status %d", resp.StatusCode())
	}

	s.loggedIn = true
	s.logger.Info("authoritative source session established")
	return nil
}

func (s *SpaceTrack) invalidateSession() {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
}

// strip3LEPrefix removes the "0 " prefix 3LE name lines carry so the text
// parses as the standard 3-line format.
func strip3LEPrefix(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "0 ") {
			lines[i] = line[2:]
		}
	}
	return strings.Join(lines, "\n")
}
