package portal

import (
	"fmt"
	"regexp"
	"strings"
)

var localChannelRe = regexp.MustCompile(`/ch/(\d+)_`)

// PlayableURL turns a portal channel command into a URL a player can open.
// The "ffmpeg " launcher prefix is dropped. Commands that point at the
// portal's localhost relay are rewritten to the portal's public live.php
// endpoint for this MAC; anything else is returned unchanged.
func PlayableURL(cmd, baseURL, mac string) string {
	cmd = strings.TrimSpace(cmd)
	cmd = strings.TrimSpace(strings.TrimPrefix(cmd, "ffmpeg "))
	if !strings.Contains(cmd, "localhost") {
		return cmd
	}
	m := localChannelRe.FindStringSubmatch(cmd)
	if m == nil {
		return cmd
	}
	return fmt.Sprintf("%s/play/live.php?mac=%s&stream=%s&extension=ts", strings.TrimRight(baseURL, "/"), mac, m[1])
}
