// Package session manages the authenticated Instagram web session: login,
// liveness probing, and derivation of request headers from browser cookies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	selUsername = `input[name="username"]`
	selPassword = `input[name="password"]`
	selSubmit   = `button[type="submit"]`
)

// Credentials are the Instagram account used to log in.
type Credentials struct {
	Username string
	Password string
}

// Options tunes the login flow. Zero values are replaced by DefaultOptions,
// except MinPause and MaxPause: zero pauses disable the delay between typing
// steps. A nil Interstitials gets the default handlers; pass an empty slice to
// skip dialog dismissal.
type Options struct {
	BaseURL   string
	UserAgent string

	NavigationTimeout   time.Duration
	FieldTimeout        time.Duration
	ConfirmTimeout      time.Duration
	InterstitialTimeout time.Duration
	PollInterval        time.Duration
	MinPause            time.Duration
	MaxPause            time.Duration

	SuccessSelectors []string
	Interstitials    []Interstitial
}

// DefaultOptions returns the settings used in production.
func DefaultOptions() Options {
	return Options{
		BaseURL:             "https://www.instagram.com",
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		NavigationTimeout:   30 * time.Second,
		FieldTimeout:        15 * time.Second,
		ConfirmTimeout:      5 * time.Second,
		InterstitialTimeout: 3500 * time.Millisecond,
		PollInterval:        500 * time.Millisecond,
		MinPause:            200 * time.Millisecond,
		MaxPause:            1500 * time.Millisecond,
		SuccessSelectors: []string{
			`svg[aria-label="Search"]`,
			`svg[aria-label="Home"]`,
			`a[href="/direct/inbox/"]`,
			`[aria-label="Home"][role="link"]`,
			`a[href="/explore/"]`,
		},
		Interstitials: DefaultInterstitials(),
	}
}

// Manager owns the single browser-backed session. It is safe for concurrent
// use, but callers are expected to drive it from one goroutine.
type Manager struct {
	browser Browser
	creds   Credentials
	opts    Options
	log     *slog.Logger

	mu          sync.Mutex
	live        bool
	validatedAt time.Time
}

// NewManager creates a Manager. No browser work happens until Ensure.
func NewManager(browser Browser, creds Credentials, opts Options, log *slog.Logger) *Manager {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.FieldTimeout <= 0 {
		opts.FieldTimeout = def.FieldTimeout
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = def.ConfirmTimeout
	}
	if opts.InterstitialTimeout <= 0 {
		opts.InterstitialTimeout = def.InterstitialTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MaxPause < opts.MinPause {
		opts.MaxPause = opts.MinPause
	}
	if opts.SuccessSelectors == nil {
		opts.SuccessSelectors = def.SuccessSelectors
	}
	if opts.Interstitials == nil {
		opts.Interstitials = def.Interstitials
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	return &Manager{
		browser: browser,
		creds:   creds,
		opts:    opts,
		log:     log,
	}
}

// Ensure returns nil when the session is usable, logging in again if the
// liveness probe fails or no session exists yet.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live {
		err := m.probe(ctx)
		if err == nil {
			m.validatedAt = time.Now()
			return nil
		}
		m.live = false
		m.log.Warn("session no longer valid, logging in again", "error", err)
	}

	return m.login(ctx)
}

// Live reports whether the last probe or login succeeded.
func (m *Manager) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// ValidatedAt returns when the session last passed a probe or login.
func (m *Manager) ValidatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validatedAt
}

// RequestHeader derives the headers for an authenticated API call from the
// browser's current cookies. Cookies rotate independently of the session, so
// the result must not be cached.
func (m *Manager) RequestHeader(ctx context.Context) (http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.live {
		return nil, ErrNoSession
	}
	cookies, err := m.browser.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return BuildHeader(cookies, m.opts.BaseURL, m.opts.UserAgent), nil
}

// Close releases the browser.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = false
	return m.browser.Close()
}

func (m *Manager) probe(ctx context.Context) error {
	nctx, cancel := context.WithTimeout(ctx, m.opts.NavigationTimeout)
	defer cancel()
	if err := m.browser.Navigate(nctx, m.opts.BaseURL+"/"); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	current, err := m.browser.URL(ctx)
	if err != nil {
		return fmt.Errorf("read url: %w", err)
	}
	if isLoginURL(current) {
		return fmt.Errorf("redirected to login page %s", current)
	}
	return nil
}

func (m *Manager) login(ctx context.Context) error {
	m.log.Info("logging in", "username", m.creds.Username)
	loginURL := m.opts.BaseURL + "/accounts/login/"

	nctx, cancel := context.WithTimeout(ctx, m.opts.NavigationTimeout)
	err := m.browser.Navigate(nctx, loginURL)
	cancel()
	if err != nil {
		return fmt.Errorf("login: open login page: %w", err)
	}

	for _, sel := range []string{selUsername, selPassword, selSubmit} {
		fctx, cancel := context.WithTimeout(ctx, m.opts.FieldTimeout)
		err := m.browser.WaitVisible(fctx, sel)
		cancel()
		if err != nil {
			return fmt.Errorf("login: wait for %s: %w", sel, err)
		}
	}

	steps := []func() error{
		func() error { return m.browser.Type(ctx, selUsername, m.creds.Username) },
		func() error { return m.browser.Type(ctx, selPassword, m.creds.Password) },
		func() error { return m.browser.Click(ctx, selSubmit) },
	}
	for _, step := range steps {
		if err := m.pause(ctx); err != nil {
			return err
		}
		if err := step(); err != nil {
			return fmt.Errorf("login: submit form: %w", err)
		}
	}

	current, err := m.waitForNavigation(ctx)
	if err != nil {
		return fmt.Errorf("login: read url: %w", err)
	}
	m.log.Debug("url after login submit", "url", current)

	if isChallengeURL(current) {
		return &LoginError{Kind: ErrSecurityChallenge, URL: current}
	}

	m.dismissInterstitials(ctx)

	indicator, err := m.confirm(ctx)
	if err != nil {
		current, _ = m.browser.URL(ctx)
		return &LoginError{Kind: ErrUnconfirmedLogin, URL: current, Err: err}
	}

	m.live = true
	m.validatedAt = time.Now()
	m.log.Info("login confirmed", "indicator", indicator)
	return nil
}

// waitForNavigation polls until the browser leaves the login page or the
// navigation timeout passes. A timeout is not an error: the page state is
// judged by the checks that follow.
func (m *Manager) waitForNavigation(ctx context.Context) (string, error) {
	deadline := time.Now().Add(m.opts.NavigationTimeout)
	for {
		current, err := m.browser.URL(ctx)
		if err != nil {
			return "", err
		}
		if !isLoginURL(current) {
			return current, nil
		}
		if time.Now().After(deadline) {
			m.log.Warn("still on login page after submit", "url", current)
			return current, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.opts.PollInterval):
		}
	}
}

func (m *Manager) dismissInterstitials(ctx context.Context) {
	for _, d := range m.opts.Interstitials {
		dctx, cancel := context.WithTimeout(ctx, m.opts.InterstitialTimeout)
		found := d.Detect(dctx, m.browser)
		cancel()
		if !found {
			continue
		}
		m.log.Info("dismissing dialog", "dialog", d.Name)

		dctx, cancel = context.WithTimeout(ctx, 3*m.opts.InterstitialTimeout)
		err := d.Dismiss(dctx, m.browser)
		cancel()
		if err != nil {
			m.log.Warn("dismiss dialog", "dialog", d.Name, "error", err)
		}
	}
}

func (m *Manager) confirm(ctx context.Context) (string, error) {
	var errs []error
	for _, sel := range m.opts.SuccessSelectors {
		cctx, cancel := context.WithTimeout(ctx, m.opts.ConfirmTimeout)
		err := m.browser.WaitVisible(cctx, sel)
		cancel()
		if err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", sel, err))
	}
	return "", errors.Join(errs...)
}

func (m *Manager) pause(ctx context.Context) error {
	d := m.opts.MinPause
	if span := m.opts.MaxPause - m.opts.MinPause; span > 0 {
		d += rand.N(span)
	}
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func isLoginURL(u string) bool {
	return strings.Contains(u, "/accounts/login")
}

func isChallengeURL(u string) bool {
	return strings.Contains(u, "challenge") || strings.Contains(u, "suspicious_login")
}
