package chat

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ChatPath is the well-known path of the conversational service.
const ChatPath = "/ws/chat"

// Endpoint derives the socket URL from the origin the client is served for:
// https maps to wss, http to ws, and the host (with port) is kept verbatim.
// An empty path means ChatPath.
func Endpoint(origin, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", errors.Wrapf(err, "invalid origin %q", origin)
	}
	if u.Host == "" {
		return "", errors.Errorf("origin %q has no host", origin)
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", errors.Errorf("unsupported origin scheme %q", u.Scheme)
	}

	if path == "" {
		path = ChatPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return (&url.URL{Scheme: scheme, Host: u.Host, Path: path}).String(), nil
}
