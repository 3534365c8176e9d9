package probe

import (
	"fmt"
	"strings"
	"time"
)

// Policy holds the free parameters of the throughput heuristic.
type Policy struct {
	Name string
	// Budget is the total time a probe may spend on one URL, connect included.
	// Reaching it with an acceptable rate is the success path.
	Budget time.Duration
	// Grace is how long the rate is not judged, so slow starts are tolerated.
	Grace time.Duration
	// MinRate is the minimum average throughput in bytes per second once Grace
	// has elapsed.
	MinRate int64
	// ChunkSize is the read size. Default 1 KiB.
	ChunkSize int
}

const defaultChunkSize = 1024

// Named caller profiles.
var (
	// Quick verifies individual channels pulled out of discovered playlists.
	Quick = Policy{Name: "quick", Budget: 15 * time.Second, Grace: 3 * time.Second, MinRate: 30 * 1024}
	// Soak holds one sample stream of a playlist for over a minute.
	Soak = Policy{Name: "soak", Budget: 80 * time.Second, Grace: 5 * time.Second, MinRate: 40 * 1024}
	// Strict checks playlist sources that must sustain a high rate.
	Strict = Policy{Name: "strict", Budget: 20 * time.Second, Grace: 8 * time.Second, MinRate: 100 * 1024}
)

// Policies lists the named profiles in a stable order.
func Policies() []Policy {
	return []Policy{Quick, Soak, Strict}
}

// PolicyByName resolves a profile name (case-insensitive).
func PolicyByName(name string) (Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Quick, nil
	}
	for _, p := range Policies() {
		if p.Name == name {
			return p, nil
		}
	}
	return Policy{}, fmt.Errorf("probe: unknown policy %q (want quick, soak or strict)", name)
}

func (p Policy) withDefaults() Policy {
	if p.Budget <= 0 {
		p.Budget = Quick.Budget
	}
	if p.Grace < 0 {
		p.Grace = 0
	}
	if p.MinRate < 0 {
		p.MinRate = 0
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = defaultChunkSize
	}
	return p
}

// checkInterval is how often a stalled read is re-evaluated.
func (p Policy) checkInterval() time.Duration {
	d := 250 * time.Millisecond
	if q := p.Grace / 4; q > 0 && q < d {
		d = q
	}
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func (p Policy) String() string {
	return fmt.Sprintf("%s(budget=%s grace=%s min=%dKB/s)", p.Name, p.Budget, p.Grace, p.MinRate/1024)
}
