package bot

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseChannelRef extracts a channel id from a command argument. Accepted
// forms: a bare id, a channel URL with a ".../channel/<id>" path, or any
// URL carrying a channel_id query parameter (upload feed URLs included).
func ParseChannelRef(args string) (string, error) {
	ref := strings.TrimSpace(args)
	if ref == "" {
		return "", fmt.Errorf("channel reference is required")
	}
	if len(strings.Fields(ref)) > 1 {
		return "", fmt.Errorf("expected a single channel id or URL")
	}

	if !strings.Contains(ref, "://") {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid channel URL: %w", err)
	}
	if id := u.Query().Get("channel_id"); id != "" {
		return id, nil
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "channel" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("no channel id in URL %q", ref)
}
