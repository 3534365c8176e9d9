package harvest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/snapetech/portalharvest/internal/portal"
	"github.com/snapetech/portalharvest/internal/probe"
	"github.com/snapetech/portalharvest/internal/scheduler"
)

// Summary is the post-run reduction of all task outcomes.
type Summary struct {
	RunID     string
	Kind      string // "discover", "verify", "check" or "sources"
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // never dispatched because the run was canceled
	Bytes     int64
	Duration  time.Duration
	// Causes counts failures by class (see causeOf).
	Causes map[string]int
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s: %s/%s ok, %s failed", s.Kind, shortID(s.RunID),
		humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Total)), humanize.Comma(int64(s.Failed)))
	if s.Skipped > 0 {
		fmt.Fprintf(&b, ", %s skipped", humanize.Comma(int64(s.Skipped)))
	}
	fmt.Fprintf(&b, " in %s", s.Duration.Round(time.Millisecond))
	if s.Bytes > 0 {
		fmt.Fprintf(&b, " (%s read)", humanize.Bytes(uint64(s.Bytes)))
	}
	if len(s.Causes) > 0 {
		keys := make([]string, 0, len(s.Causes))
		for k := range s.Causes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, s.Causes[k]))
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	return b.String()
}

func summarize[T any](runID, kind string, outs []scheduler.Outcome[T], started time.Time) Summary {
	s := Summary{RunID: runID, Kind: kind, Total: len(outs), Causes: map[string]int{}}
	for _, o := range outs {
		switch {
		case o.OK():
			s.Succeeded++
		case errors.Is(o.Err, scheduler.ErrNotDispatched):
			s.Skipped++
		default:
			s.Failed++
			s.Causes[causeOf(o.Err)]++
		}
	}
	s.Duration = time.Since(started)
	return s
}

// causeOf classifies a task error for summaries and logs.
func causeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, portal.ErrNoToken):
		return "no_token"
	case errors.Is(err, portal.ErrNoChannels):
		return "no_channels"
	case errors.Is(err, probe.ErrTooSlow):
		return "too_slow"
	case errors.Is(err, probe.ErrTimeout):
		return "timeout"
	case errors.Is(err, probe.ErrNetwork):
		return "network"
	case errors.Is(err, probe.ErrNoSample):
		return "no_sample"
	case errors.Is(err, ErrNotPlaylist):
		return "not_playlist"
	case errors.Is(err, scheduler.ErrPanic):
		return "panic"
	case errors.Is(err, scheduler.ErrNotDispatched):
		return "skipped"
	default:
		return "other"
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, scheduler.ErrNotDispatched):
		return "skipped"
	default:
		return "failed"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
