package gradescope

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"duesync/internal/config"
	"duesync/internal/logging"
)

const (
	baseURL      = "https://www.gradescope.com"
	loginURL     = baseURL + "/login"
	dashboardURL = baseURL + "/account"

	ssoPollInterval = 2 * time.Second
	// sessionLifetime is a conservative estimate of how long Gradescope
	// keeps a signed-in session alive; the probe catches early expiry.
	sessionLifetime = 7 * 24 * time.Hour
)

// SessionManager drives an authenticated browser session against Gradescope,
// restoring a persisted session when possible and logging in otherwise.
type SessionManager struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager returns a manager for the given config.
func NewSessionManager(cfg *config.Config, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionManager{cfg: cfg, logger: logger, now: time.Now}
}

// NewBrowserContext allocates a browser for the whole run. SSO mode needs a
// visible window for the human to complete the identity-provider login;
// password mode runs headless.
func (m *SessionManager) NewBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	headless := m.cfg.GradescopeAuthMode != config.AuthModeSSO
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		browserCancel()
		allocCancel()
	}
}

// Acquire establishes an authenticated session in browserCtx: restore the
// persisted state and probe it, or drive the login flow. On success the fresh
// state is persisted for the next run. Returns ErrAuthFailed (wrapped) on
// rejection or SSO timeout; fatal for the scrape source only.
func (m *SessionManager) Acquire(ctx context.Context, browserCtx context.Context) (*SessionState, error) {
	if state, err := m.restore(ctx, browserCtx); err == nil && state != nil {
		return state, nil
	} else if err != nil {
		m.logger.WarnContext(ctx, "session restore failed, logging in", "error", err)
	}

	var landed string
	var err error
	switch m.cfg.GradescopeAuthMode {
	case config.AuthModePassword:
		landed, err = m.loginWithPassword(browserCtx)
	default:
		landed, err = m.loginWithSSO(ctx, browserCtx)
	}
	if err != nil {
		return nil, err
	}
	if !loggedIn(landed) {
		return nil, fmt.Errorf("login rejected, landed on %s: %w", landed, ErrAuthFailed)
	}

	state, err := m.exportState(browserCtx)
	if err != nil {
		return nil, err
	}
	if err := SaveSession(m.cfg.SessionPath, state); err != nil {
		// Persisting is best-effort: the session itself is live.
		m.logger.WarnContext(ctx, "persist session state", "error", err)
	}
	m.logger.InfoContext(ctx, "session established", "cookies", len(state.Cookies), "expires_at", state.ExpiresAt)
	return state, nil
}

// restore loads the persisted state, installs its cookies, and validates them
// with a lightweight probe of the dashboard. Returns (nil, nil) when there is
// nothing usable to restore.
func (m *SessionManager) restore(ctx context.Context, browserCtx context.Context) (*SessionState, error) {
	state, err := LoadSession(m.cfg.SessionPath)
	if err != nil {
		return nil, err
	}
	if !state.Valid(m.now()) {
		return nil, nil
	}

	if err := chromedp.Run(browserCtx, installCookies(state.Cookies)); err != nil {
		return nil, fmt.Errorf("install cookies: %w", err)
	}

	var location string
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(dashboardURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("probe session: %w", err)
	}
	if !loggedIn(location) {
		m.logger.InfoContext(ctx, "persisted session rejected by probe")
		return nil, nil
	}
	m.logger.InfoContext(ctx, "restored persisted session")
	return state, nil
}

// loginWithPassword submits the credential form directly.
func (m *SessionManager) loginWithPassword(browserCtx context.Context) (string, error) {
	var location string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`#session_email`, chromedp.ByID),
		chromedp.SendKeys(`#session_email`, m.cfg.GradescopeEmail, chromedp.ByID),
		chromedp.SendKeys(`#session_password`, m.cfg.GradescopePassword, chromedp.ByID),
		chromedp.Click(`input[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return "", fmt.Errorf("submit login form: %w", err)
	}
	return location, nil
}

// loginWithSSO opens the login page in the visible browser and waits — with a
// bounded timeout — for the user to complete the identity-provider flow. The
// redirect leaves gradescope.com; automation suspends until the URL returns
// to a known post-login page.
func (m *SessionManager) loginWithSSO(ctx context.Context, browserCtx context.Context) (string, error) {
	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}
	m.logger.Info("complete the school login in the browser window",
		"timeout", m.cfg.SSOTimeout.Std())

	poll := func(pollCtx context.Context) (string, error) {
		var location string
		if err := chromedp.Run(browserCtx, chromedp.Location(&location)); err != nil {
			return "", err
		}
		return location, nil
	}
	return WaitForReturn(ctx, poll, loggedIn, m.cfg.SSOTimeout.Std(), ssoPollInterval)
}

// exportState snapshots the browser cookies into a persistable SessionState.
func (m *SessionManager) exportState(browserCtx context.Context) (*SessionState, error) {
	var raw []*network.Cookie
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("export cookies: %w", err)
	}

	now := m.now()
	state := &SessionState{
		SavedAt:   now,
		ExpiresAt: now.Add(sessionLifetime),
		Cookies:   make([]Cookie, 0, len(raw)),
	}
	for _, c := range raw {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
		if c.Expires > 0 {
			if exp := time.Unix(int64(c.Expires), 0); exp.Before(state.ExpiresAt) && exp.After(now) {
				state.ExpiresAt = exp
			}
		}
	}
	return state, nil
}

// installCookies sets persisted cookies into the browser.
func installCookies(cookies []Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			p := &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p.Expires = &exp
			}
			params = append(params, p)
		}
		return storage.SetCookies(params).Do(ctx)
	})
}

// loggedIn reports whether the URL is a known post-login Gradescope page.
// The login page itself and anything off-domain (the identity provider) do
// not count.
func loggedIn(url string) bool {
	if !strings.HasPrefix(url, baseURL) {
		return false
	}
	rest := strings.TrimPrefix(url, baseURL)
	return strings.HasPrefix(rest, "/account") || strings.HasPrefix(rest, "/courses")
}
