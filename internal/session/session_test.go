package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const testBase = "https://ig.test"

type fakeBrowser struct {
	mu sync.Mutex

	url         string
	afterSubmit string
	homeURL     string
	visible     map[string]bool
	cookies     []*http.Cookie

	navigations []string
	clicks      []string
	typed       map[string]string
	escapes     int
	closed      bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		afterSubmit: testBase + "/",
		visible: map[string]bool{
			selUsername:                true,
			selPassword:                true,
			selSubmit:                  true,
			`svg[aria-label="Home"]`:   true,
			`a[href="/direct/inbox/"]`: true,
		},
		typed: map[string]string{},
	}
}

func (f *fakeBrowser) Navigate(_ context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, u)
	if !isLoginURL(u) && f.homeURL != "" {
		f.url = f.homeURL
		return nil
	}
	f.url = u
	return nil
}

func (f *fakeBrowser) URL(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeBrowser) WaitVisible(_ context.Context, sel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visible[sel] {
		return nil
	}
	return errors.New("not visible")
}

func (f *fakeBrowser) Click(_ context.Context, sel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, sel)
	if sel == selSubmit {
		f.url = f.afterSubmit
	}
	return nil
}

func (f *fakeBrowser) Type(_ context.Context, sel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed[sel] = text
	return nil
}

func (f *fakeBrowser) PressEscape(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escapes++
	return nil
}

func (f *fakeBrowser) Cookies(_ context.Context) ([]*http.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies, nil
}

func (f *fakeBrowser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBrowser) loginNavigations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.navigations {
		if isLoginURL(u) {
			n++
		}
	}
	return n
}

func testOptions() Options {
	return Options{
		BaseURL:           testBase,
		NavigationTimeout: 50 * time.Millisecond,
		FieldTimeout:      10 * time.Millisecond,
		ConfirmTimeout:    10 * time.Millisecond,
		PollInterval:      time.Millisecond,
	}
}

func newTestManager(b Browser, opts Options) *Manager {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(b, Credentials{Username: "watcher", Password: "secret"}, opts, log)
}

func TestEnsureLogsIn(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, testOptions())

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !m.Live() {
		t.Fatal("expected live session after login")
	}
	if m.ValidatedAt().IsZero() {
		t.Error("expected ValidatedAt to be set")
	}

	wantTyped := map[string]string{selUsername: "watcher", selPassword: "secret"}
	if diff := cmp.Diff(wantTyped, b.typed); diff != "" {
		t.Errorf("typed credentials mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{testBase + "/accounts/login/"}, b.navigations); diff != "" {
		t.Errorf("navigations mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureSecurityChallenge(t *testing.T) {
	b := newFakeBrowser()
	b.afterSubmit = testBase + "/challenge/action/123/"
	m := newTestManager(b, testOptions())

	err := m.Ensure(context.Background())
	if !errors.Is(err, ErrSecurityChallenge) {
		t.Fatalf("expected ErrSecurityChallenge, got %v", err)
	}
	if !IsFatal(err) {
		t.Error("security challenge should be fatal")
	}
	var le *LoginError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoginError, got %T", err)
	}
	if diff := cmp.Diff(b.afterSubmit, le.URL); diff != "" {
		t.Errorf("challenge url mismatch (-want +got):\n%s", diff)
	}
	if m.Live() {
		t.Error("session must not be live after a challenge")
	}
}

func TestEnsureUnconfirmedLogin(t *testing.T) {
	b := newFakeBrowser()
	delete(b.visible, `svg[aria-label="Home"]`)
	delete(b.visible, `a[href="/direct/inbox/"]`)
	m := newTestManager(b, testOptions())

	err := m.Ensure(context.Background())
	if !errors.Is(err, ErrUnconfirmedLogin) {
		t.Fatalf("expected ErrUnconfirmedLogin, got %v", err)
	}
	if IsFatal(err) {
		t.Error("unconfirmed login should not be fatal")
	}
	if m.Live() {
		t.Error("session must not be live when login is unconfirmed")
	}
}

func TestEnsureMissingLoginForm(t *testing.T) {
	b := newFakeBrowser()
	delete(b.visible, selPassword)
	m := newTestManager(b, testOptions())

	err := m.Ensure(context.Background())
	if err == nil {
		t.Fatal("expected error when the login form is incomplete")
	}
	if IsFatal(err) {
		t.Error("missing form should not be fatal")
	}
	if len(b.clicks) != 0 {
		t.Errorf("submit must not be clicked, got clicks %v", b.clicks)
	}
}

func TestEnsureReusesLiveSession(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, testOptions())
	ctx := context.Background()

	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if diff := cmp.Diff(1, b.loginNavigations()); diff != "" {
		t.Errorf("login count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testBase+"/", b.navigations[len(b.navigations)-1]); diff != "" {
		t.Errorf("probe navigation mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureRelogsWhenProbeFails(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, testOptions())
	ctx := context.Background()

	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("first ensure: %v", err)
	}

	b.mu.Lock()
	b.homeURL = testBase + "/accounts/login/?next=/"
	b.mu.Unlock()

	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if diff := cmp.Diff(2, b.loginNavigations()); diff != "" {
		t.Errorf("login count mismatch (-want +got):\n%s", diff)
	}
	if !m.Live() {
		t.Error("expected live session after re-login")
	}
}

func TestInterstitialFailuresDoNotFailLogin(t *testing.T) {
	b := newFakeBrowser()
	var ran []string
	opts := testOptions()
	opts.Interstitials = []Interstitial{
		{
			Name:   "broken",
			Detect: func(context.Context, Browser) bool { ran = append(ran, "broken"); return true },
			Dismiss: func(context.Context, Browser) error {
				return errors.New("button vanished")
			},
		},
		{
			Name:   "absent",
			Detect: func(context.Context, Browser) bool { ran = append(ran, "absent"); return false },
			Dismiss: func(context.Context, Browser) error {
				t.Error("dismiss called for undetected dialog")
				return nil
			},
		},
		{
			Name:   "ok",
			Detect: func(context.Context, Browser) bool { ran = append(ran, "ok"); return true },
			Dismiss: func(context.Context, Browser) error {
				ran = append(ran, "ok dismissed")
				return nil
			},
		},
	}
	m := newTestManager(b, opts)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	want := []string{"broken", "absent", "ok", "ok dismissed"}
	if diff := cmp.Diff(want, ran); diff != "" {
		t.Errorf("interstitial order mismatch (-want +got):\n%s", diff)
	}
}

func TestNewManagerDefaults(t *testing.T) {
	names := func(ds []Interstitial) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.Name)
		}
		return out
	}

	m := newTestManager(newFakeBrowser(), Options{})
	want := names(DefaultInterstitials())
	if diff := cmp.Diff(want, names(m.opts.Interstitials)); diff != "" {
		t.Errorf("interstitials mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultOptions().InterstitialTimeout, m.opts.InterstitialTimeout); diff != "" {
		t.Errorf("interstitial timeout mismatch (-want +got):\n%s", diff)
	}

	opts := testOptions()
	opts.Interstitials = []Interstitial{}
	m = newTestManager(newFakeBrowser(), opts)
	if len(m.opts.Interstitials) != 0 {
		t.Errorf("empty interstitials should stay empty, got %v", names(m.opts.Interstitials))
	}
}

func TestDefaultInterstitials(t *testing.T) {
	ctx := context.Background()

	t.Run("save info detected on onetap page and dismissed", func(t *testing.T) {
		b := newFakeBrowser()
		b.url = testBase + "/accounts/onetap/?next=%2F"
		b.visible[selNotNow] = true
		d := DefaultInterstitials()[0]

		if !d.Detect(ctx, b) {
			t.Fatal("expected save-info dialog to be detected")
		}
		if err := d.Dismiss(ctx, b); err != nil {
			t.Fatalf("dismiss: %v", err)
		}
		if diff := cmp.Diff([]string{selNotNow}, b.clicks); diff != "" {
			t.Errorf("clicks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("save info falls back to escape", func(t *testing.T) {
		b := newFakeBrowser()
		b.url = testBase + "/accounts/onetap/"
		d := DefaultInterstitials()[0]

		err := d.Dismiss(ctx, b)
		if err == nil {
			t.Fatal("expected error when escape leaves us on the onetap page")
		}
		if diff := cmp.Diff(1, b.escapes); diff != "" {
			t.Errorf("escape count mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("notifications prompt", func(t *testing.T) {
		b := newFakeBrowser()
		b.url = testBase + "/"
		b.visible[selNotificationsPrompt] = true
		b.visible[selDialogNotNow] = true
		d := DefaultInterstitials()[1]

		if !d.Detect(ctx, b) {
			t.Fatal("expected notifications prompt to be detected")
		}
		if err := d.Dismiss(ctx, b); err != nil {
			t.Fatalf("dismiss: %v", err)
		}
		if diff := cmp.Diff([]string{selDialogNotNow}, b.clicks); diff != "" {
			t.Errorf("clicks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nothing shown", func(t *testing.T) {
		b := newFakeBrowser()
		b.url = testBase + "/"
		for _, d := range DefaultInterstitials() {
			if d.Detect(ctx, b) {
				t.Errorf("%s detected on a clean page", d.Name)
			}
		}
	})
}

func TestRequestHeader(t *testing.T) {
	b := newFakeBrowser()
	b.cookies = []*http.Cookie{
		{Name: "csrftoken", Value: "tok1"},
		{Name: "sessionid", Value: "abc"},
	}
	m := newTestManager(b, testOptions())
	ctx := context.Background()

	if _, err := m.RequestHeader(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession before login, got %v", err)
	}

	if err := m.Ensure(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	h, err := m.RequestHeader(ctx)
	if err != nil {
		t.Fatalf("request header: %v", err)
	}
	if diff := cmp.Diff("tok1", h.Get("X-CSRFToken")); diff != "" {
		t.Errorf("csrf mismatch (-want +got):\n%s", diff)
	}

	b.mu.Lock()
	b.cookies[0] = &http.Cookie{Name: "csrftoken", Value: "tok2"}
	b.mu.Unlock()

	h, err = m.RequestHeader(ctx)
	if err != nil {
		t.Fatalf("request header: %v", err)
	}
	if diff := cmp.Diff("tok2", h.Get("X-CSRFToken")); diff != "" {
		t.Errorf("rotated csrf mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHeader(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "mid", Value: "m1"},
		{Name: "csrftoken", Value: "c1"},
		{Name: "sessionid", Value: "s1"},
	}
	h := BuildHeader(cookies, testBase, "test-agent")

	want := map[string]string{
		"Cookie":           "mid=m1; csrftoken=c1; sessionid=s1",
		"X-CSRFToken":      "c1",
		"X-IG-App-ID":      igAppID,
		"Origin":           testBase,
		"Referer":          testBase + "/",
		"User-Agent":       "test-agent",
		"Accept":           "*/*",
		"X-ASBD-ID":        igASBDID,
		"X-Requested-With": "XMLHttpRequest",
	}
	got := map[string]string{}
	for k := range want {
		got[k] = h.Get(k)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseReleasesBrowser(t *testing.T) {
	b := newFakeBrowser()
	m := newTestManager(b, testOptions())
	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !b.closed {
		t.Error("expected browser to be closed")
	}
	if m.Live() {
		t.Error("session must not be live after close")
	}
}

func TestURLClassification(t *testing.T) {
	tests := []struct {
		url           string
		wantLogin     bool
		wantChallenge bool
	}{
		{url: testBase + "/", wantLogin: false, wantChallenge: false},
		{url: testBase + "/accounts/login/?next=%2F", wantLogin: true, wantChallenge: false},
		{url: testBase + "/challenge/12345/abc/", wantLogin: false, wantChallenge: true},
		{url: testBase + "/accounts/suspicious_login/", wantLogin: false, wantChallenge: true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimPrefix(tt.url, testBase), func(t *testing.T) {
			if diff := cmp.Diff(tt.wantLogin, isLoginURL(tt.url)); diff != "" {
				t.Errorf("isLoginURL mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantChallenge, isChallengeURL(tt.url)); diff != "" {
				t.Errorf("isChallengeURL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

var _ Browser = (*Chrome)(nil)
