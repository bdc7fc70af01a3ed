package session

import (
	"context"
	"net/http"
)

// Browser is the automation surface the login flow needs. Selectors are CSS
// or XPath expressions. Blocking calls honour ctx's deadline.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	PressEscape(ctx context.Context) error
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Close() error
}
