package bot

import (
	"errors"
	"regexp"
	"strings"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

// ErrInvalidUsername is returned for input that cannot be an Instagram handle.
var ErrInvalidUsername = errors.New("invalid instagram username")

// ParseUsername normalizes a command argument to a lowercase Instagram handle.
// A leading "@" and a profile URL are accepted.
func ParseUsername(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", ErrInvalidUsername
	}
	s := fields[0]
	for _, prefix := range []string{"https://", "http://", "www.", "instagram.com/"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimPrefix(s, "@")
	s = strings.ToLower(s)
	if !usernameRe.MatchString(s) {
		return "", ErrInvalidUsername
	}
	return s, nil
}

// parseCallbackData splits "action:argument" callback payloads.
func parseCallbackData(data string) (action, arg string, ok bool) {
	action, arg, ok = strings.Cut(data, ":")
	if !ok || action == "" {
		return "", "", false
	}
	return action, arg, true
}
