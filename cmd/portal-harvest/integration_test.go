// Integration tests: run against real portals listed in .env (or PORTAL_HARVEST_*).
// Skip when no identities file is present: go test -v -run Integration ./cmd/portal-harvest
// No identities are stored in the repo.
package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snapetech/portalharvest/internal/config"
	"github.com/snapetech/portalharvest/internal/harvest"
	"github.com/snapetech/portalharvest/internal/portal"
)

func TestIntegration_discoverFirstIdentities(t *testing.T) {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		_ = config.LoadEnvFile(p)
	}
	cfg := config.Load()
	ids, err := harvest.ReadIdentities(cfg.IdentitiesFile)
	if errors.Is(err, harvest.ErrInputUnreadable) {
		t.Skipf("no identities (set PORTAL_HARVEST_IDENTITIES_FILE): %v", err)
	}
	if len(ids) > 3 {
		ids = ids[:3]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s, err := harvest.Discover(ctx, harvest.DiscoverConfig{
		OutDir:      t.TempDir(),
		Concurrency: len(ids),
		Portal: portal.Config{
			HandshakeTimeout: cfg.HandshakeTimeout,
			APITimeout:       cfg.APITimeout,
			RequestInterval:  cfg.RequestInterval,
		},
	}, ids)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if s.Total != len(ids) {
		t.Errorf("summary total %d, want %d", s.Total, len(ids))
	}
	t.Logf("%s", s)
}

func TestOverride(t *testing.T) {
	v := "env"
	override(&v, "")
	if v != "env" {
		t.Errorf("empty flag changed value to %q", v)
	}
	override(&v, "flag")
	if v != "flag" {
		t.Errorf("flag not applied: %q", v)
	}
}
