package gradescope

import (
	"context"
	"fmt"
	"log/slog"

	"duesync/internal/assignment"
	"duesync/internal/config"
	"duesync/internal/logging"
)

// Source bundles the session manager and scraper behind the runner's
// authenticated-source interface: one browser context spans authentication
// and the whole fetch.
type Source struct {
	cfg    *config.Config
	logger *slog.Logger

	manager    *SessionManager
	browserCtx context.Context
	cancel     context.CancelFunc
	scraper    *Scraper
}

// NewSource returns an unauthenticated Gradescope source.
func NewSource(cfg *config.Config, logger *slog.Logger) *Source {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Source{
		cfg:     cfg,
		logger:  logger,
		manager: NewSessionManager(cfg, logger),
	}
}

// Name identifies this source in summaries and logs.
func (s *Source) Name() string { return assignment.SourceScrape }

// Authenticate allocates the browser and establishes the session. An error
// here is fatal to this source only.
func (s *Source) Authenticate(ctx context.Context) error {
	s.browserCtx, s.cancel = s.manager.NewBrowserContext(ctx)
	if _, err := s.manager.Acquire(ctx, s.browserCtx); err != nil {
		return fmt.Errorf("authenticate scrape source: %w", err)
	}
	s.scraper = NewScraper(s.browserCtx, s.logger)
	return nil
}

// Fetch scrapes assignments under the authenticated session.
func (s *Source) Fetch(ctx context.Context) ([]assignment.Raw, error) {
	if s.scraper == nil {
		return nil, fmt.Errorf("fetch: source not authenticated: %w", ErrAuthFailed)
	}
	return s.scraper.Fetch(ctx)
}

// Close tears the browser down. Safe to call regardless of how far
// authentication got.
func (s *Source) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
