// Package harvest wires the portal client, probe and scheduler into the two
// runs: discovery (portal identities to MAC{n}.m3u playlists) and
// verification (candidate URLs to verified playlists and channel records).
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/portalharvest/internal/catalog"
	"github.com/snapetech/portalharvest/internal/metrics"
	"github.com/snapetech/portalharvest/internal/portal"
	"github.com/snapetech/portalharvest/internal/probe"
	"github.com/snapetech/portalharvest/internal/scheduler"
)

// ErrInputUnreadable: the run input is missing, unreadable or empty.
var ErrInputUnreadable = errors.New("harvest: input unreadable")

const DefaultDiscoverConcurrency = 300

// DiscoverConfig configures one discovery run.
type DiscoverConfig struct {
	OutDir      string
	Concurrency int
	// Clean removes MAC*.m3u files left in OutDir by earlier runs.
	Clean   bool
	Portal  portal.Config
	Metrics *metrics.Set
}

// discovered is the task value of one successful identity.
type discovered struct {
	Path     string
	Channels int
	Groups   int
}

// ReadIdentities loads the identities file, failing with ErrInputUnreadable
// when it cannot be read or yields no identity.
func ReadIdentities(path string) ([]portal.Identity, error) {
	ids, err := portal.LoadIdentities(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s has no baseURL$MAC lines", ErrInputUnreadable, path)
	}
	return ids, nil
}

// ReadTargets loads probe candidates from file or, when dir is set, from
// every *.m3u in dir, then keeps those whose annotation contains keyword.
func ReadTargets(file, dir, keyword string) ([]probe.Target, error) {
	var (
		targets []probe.Target
		err     error
	)
	if dir != "" {
		targets, err = probe.ReadTargetsDir(dir)
	} else {
		var f *os.File
		if f, err = os.Open(file); err == nil {
			targets, err = probe.ParseTargets(f)
			f.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	targets = probe.Filter(targets, keyword)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no stream URLs match %q", ErrInputUnreadable, keyword)
	}
	return targets, nil
}

// Discover runs one portal exchange per identity and writes MAC{Index}.m3u
// into cfg.OutDir for every success. Per-identity failures are logged and
// counted; only an empty input or an unusable output directory fails the run.
func Discover(ctx context.Context, cfg DiscoverConfig, ids []portal.Identity) (Summary, error) {
	if len(ids) == 0 {
		return Summary{}, fmt.Errorf("%w: no identities", ErrInputUnreadable)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultDiscoverConcurrency
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("discover: out dir: %w", err)
	}
	if cfg.Clean {
		if err := cleanPlaylists(cfg.OutDir); err != nil {
			return Summary{}, err
		}
	}

	runID := uuid.NewString()
	started := time.Now()
	client := portal.New(cfg.Portal)
	log.Printf("discover[%s]: %d identities, %d workers, out=%s", shortID(runID), len(ids), cfg.Concurrency, cfg.OutDir)

	tasks := make([]scheduler.Task[discovered], 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, scheduler.Task[discovered]{
			Key: id.String(),
			Run: func(ctx context.Context) (discovered, error) {
				res, err := client.Discover(ctx, id)
				if err != nil {
					return discovered{}, err
				}
				path := filepath.Join(cfg.OutDir, fmt.Sprintf("MAC%d.m3u", id.Index))
				if err := catalog.SavePlaylist(path, res.Catalog); err != nil {
					return discovered{}, err
				}
				return discovered{Path: path, Channels: res.Catalog.Len(), Groups: len(res.Catalog.Groups)}, nil
			},
		})
	}

	outs := scheduler.RunAll(ctx, tasks, cfg.Concurrency, scheduler.OnDone(func(o scheduler.Outcome[discovered]) {
		cfg.Metrics.ObserveTask("discover", resultLabel(o.Err), o.Duration)
		switch {
		case o.OK():
			cfg.Metrics.AddChannels(o.Value.Channels)
			log.Printf("discover[%s]: %s: %d channels in %d groups -> %s", shortID(runID), o.Key, o.Value.Channels, o.Value.Groups, filepath.Base(o.Value.Path))
		case errors.Is(o.Err, scheduler.ErrNotDispatched):
		default:
			log.Printf("discover[%s]: %s: %v", shortID(runID), o.Key, o.Err)
		}
	}))
	s := summarize(runID, "discover", outs, started)
	log.Printf("discover[%s]: %s", shortID(runID), s)
	return s, nil
}

func cleanPlaylists(dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "MAC*.m3u"))
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("discover: clean %s: %w", p, err)
		}
	}
	return nil
}
