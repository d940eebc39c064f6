package gradescope

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/chromedp"

	"duesync/internal/assignment"
	"duesync/internal/logging"
)

// Scraper extracts assignments by navigating course pages under an
// authenticated browser session.
type Scraper struct {
	browserCtx context.Context
	logger     *slog.Logger
}

// NewScraper returns a Scraper bound to an authenticated browser context
// (produced by SessionManager.Acquire on the same context).
func NewScraper(browserCtx context.Context, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scraper{browserCtx: browserCtx, logger: logger}
}

// Name identifies this source in summaries and logs.
func (s *Scraper) Name() string { return assignment.SourceScrape }

// Fetch walks every course visible on the dashboard and parses its assignment
// listing. A parse failure on one course is a partial failure: logged, that
// course skipped. The whole fetch fails only when the session is rejected
// mid-run or zero courses are reachable.
func (s *Scraper) Fetch(ctx context.Context) ([]assignment.Raw, error) {
	html, location, err := s.renderedPage(dashboardURL)
	if err != nil {
		return nil, fmt.Errorf("fetch dashboard: %w", err)
	}
	if isLoginPage(location) {
		return nil, ErrSessionExpired
	}

	courses, err := parseCourseList(html)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCourses, err)
	}

	var raws []assignment.Raw
	reachable := 0
	for _, course := range courses {
		html, location, err := s.renderedPage(course.URL)
		if err != nil {
			s.logger.WarnContext(ctx, "course page unreachable, skipping",
				"course", course.Name, "error", err)
			continue
		}
		if isLoginPage(location) {
			return nil, ErrSessionExpired
		}

		courseRaws, err := parseAssignments(html, course)
		if err != nil {
			s.logger.WarnContext(ctx, "course page unparseable, skipping",
				"course", course.Name, "error", err)
			continue
		}
		reachable++
		raws = append(raws, courseRaws...)
		s.logger.DebugContext(ctx, "scraped course",
			"course", course.Name, "assignments", len(courseRaws))
	}

	if reachable == 0 {
		return nil, ErrNoCourses
	}
	return raws, nil
}

// renderedPage navigates to url and returns the rendered HTML plus the URL
// the browser actually landed on (login redirects included).
func (s *Scraper) renderedPage(url string) (html, location string, err error) {
	err = chromedp.Run(s.browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, location, nil
}

func isLoginPage(url string) bool {
	return strings.Contains(url, "/login")
}
