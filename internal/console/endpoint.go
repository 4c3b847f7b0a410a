package console

import (
	"fmt"
	"net/url"
	"strings"
)

// ConsolePath is the generic shell endpoint.
const ConsolePath = "/ws/console"

// WorkspaceShellPath parameterizes the workspace-scoped shell endpoint.
func WorkspaceShellPath(workspaceID string) string {
	return "/ws/workspace/" + url.PathEscape(workspaceID) + "/shell"
}

// ResolveEndpoint turns the control plane's base URL into a WebSocket URL
// for the given path. http becomes ws, https becomes wss.
func ResolveEndpoint(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
