package live

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/eldtechnologies/chatline/internal/normalize"
)

// BatchKeys name the object fields that carry an array of payloads in a
// single frame.
var BatchKeys = []string{"messages", "items", "batch"}

// ParseFrame splits one inbound frame into the payloads it carries.
// JSON frames are decoded; anything else is a single opaque string.
// Blank frames carry nothing.
func ParseFrame(data []byte) []any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	v := normalize.Decode(data)
	switch x := v.(type) {
	case []any:
		return x
	case map[string]any:
		for _, k := range BatchKeys {
			if arr, ok := x[k].([]any); ok {
				return arr
			}
		}
	}
	return []any{v}
}

var ErrInvalidEndpoint = errors.New("invalid channel endpoint")

// BuildURL attaches identity and credential to the channel endpoint.
// {token} and {identity} placeholders are substituted when present;
// otherwise token and identity query parameters are added. http and
// https schemes are mapped to ws and wss.
func BuildURL(endpoint, identity, credential string) (string, error) {
	if strings.Contains(endpoint, "{token}") || strings.Contains(endpoint, "{identity}") {
		endpoint = strings.NewReplacer(
			"{token}", url.QueryEscape(credential),
			"{identity}", url.QueryEscape(identity),
		).Replace(endpoint)
		return wsScheme(endpoint)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	q := u.Query()
	q.Set("token", credential)
	if identity != "" {
		q.Set("identity", identity)
	}
	u.RawQuery = q.Encode()
	return wsScheme(u.String())
}

func wsScheme(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return u.String(), nil
}
