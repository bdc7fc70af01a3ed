package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Interstitial is a post-login dialog that may cover the page. Detect and
// Dismiss are tried independently for each handler; failures are logged and
// never fail the login.
type Interstitial struct {
	Name    string
	Detect  func(ctx context.Context, b Browser) bool
	Dismiss func(ctx context.Context, b Browser) error
}

const (
	selNotNow = `//button[contains(., 'Not Now') or contains(., 'Not now')]` +
		` | //div[@role='button'][contains(., 'Not Now') or contains(., 'Not now')]`
	selSaveInfo = `//div[@role='dialog']//button[contains(., 'Save')]` +
		` | //div[@role='button'][contains(., 'Save Info') or contains(., 'Save info')]`
	selNotificationsPrompt = `//div[@role='dialog']//button[contains(., 'Turn On')]`
	selDialogNotNow        = `//div[@role='dialog']//button[contains(., 'Not Now') or contains(., 'Not now')]`
)

// DefaultInterstitials returns the handlers for the "save login info" and
// "turn on notifications" prompts.
func DefaultInterstitials() []Interstitial {
	return []Interstitial{
		{
			Name: "save login info",
			Detect: func(ctx context.Context, b Browser) bool {
				if u, err := b.URL(ctx); err == nil && strings.Contains(u, "/onetap/") {
					return true
				}
				return b.WaitVisible(ctx, selSaveInfo) == nil
			},
			Dismiss: dismissSaveInfo,
		},
		{
			Name: "turn on notifications",
			Detect: func(ctx context.Context, b Browser) bool {
				return b.WaitVisible(ctx, selNotificationsPrompt) == nil
			},
			Dismiss: func(ctx context.Context, b Browser) error {
				return clickIfVisible(ctx, b, selDialogNotNow, 2*time.Second)
			},
		},
	}
}

func dismissSaveInfo(ctx context.Context, b Browser) error {
	if err := clickIfVisible(ctx, b, selNotNow, 3*time.Second); err == nil {
		return nil
	}
	if err := b.PressEscape(ctx); err != nil {
		return err
	}
	u, err := b.URL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(u, "/onetap/") {
		return errors.New("escape did not leave the save-info page")
	}
	return nil
}

func clickIfVisible(ctx context.Context, b Browser, selector string, wait time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := b.WaitVisible(wctx, selector); err != nil {
		return err
	}
	return b.Click(ctx, selector)
}
