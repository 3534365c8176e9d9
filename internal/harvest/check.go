package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/portalharvest/internal/catalog"
	"github.com/snapetech/portalharvest/internal/metrics"
	"github.com/snapetech/portalharvest/internal/probe"
	"github.com/snapetech/portalharvest/internal/scheduler"
)

// ErrNotPlaylist: a source link answered fast enough but not with an M3U playlist.
var ErrNotPlaylist = errors.New("harvest: not an m3u playlist")

// CheckConfig configures a playlist-level run: CheckPlaylists or CheckSources.
type CheckConfig struct {
	// OutDir receives best{n}.m3u from CheckSources; CheckPlaylists writes nothing.
	OutDir      string
	Concurrency int
	// Policy defaults to Soak for CheckPlaylists and Strict for CheckSources.
	Policy  probe.Policy
	Client  *http.Client
	Metrics *metrics.Set
}

func (c *CheckConfig) setDefaults(policy probe.Policy) {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultProbeConcurrency
	}
	if c.Policy.Budget <= 0 {
		c.Policy = policy
	}
}

// CheckResult lists the playlists that passed, in input order. Passing[i]
// ranks as best{i+1}.
type CheckResult struct {
	Summary
	Passing []string
}

type sampled struct {
	Index   int
	Path    string
	Verdict probe.Verdict
}

// ListPlaylists returns the *.m3u files in dir in name order.
func ListPlaylists(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.m3u"))
	if err == nil && len(paths) == 0 {
		err = fmt.Errorf("no *.m3u in %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputUnreadable, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// CheckPlaylists judges each playlist by one stream: the URL on line
// probe.SampleLine, probed under cfg.Policy. Playlists without a sample URL
// fail with probe.ErrNoSample.
func CheckPlaylists(ctx context.Context, cfg CheckConfig, paths []string) (*CheckResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no playlists", ErrInputUnreadable)
	}
	cfg.setDefaults(probe.Soak)

	runID := uuid.NewString()
	started := time.Now()
	log.Printf("check[%s]: %d playlists, %d workers, policy %s", shortID(runID), len(paths), cfg.Concurrency, cfg.Policy)

	tasks := make([]scheduler.Task[sampled], 0, len(paths))
	for i, path := range paths {
		tasks = append(tasks, scheduler.Task[sampled]{
			Key: filepath.Base(path),
			Run: func(ctx context.Context) (sampled, error) {
				f, err := os.Open(path)
				if err != nil {
					return sampled{}, err
				}
				sample, err := probe.SampleURL(f, probe.SampleLine)
				f.Close()
				if err != nil {
					return sampled{}, err
				}
				v := probe.Probe(ctx, cfg.Client, sample, cfg.Policy)
				return sampled{Index: i, Path: path, Verdict: v}, v.Err()
			},
		})
	}

	var passed []sampled
	outs := scheduler.RunAll(ctx, tasks, cfg.Concurrency, scheduler.OnDone(func(o scheduler.Outcome[sampled]) {
		cfg.Metrics.ObserveTask("check", resultLabel(o.Err), o.Duration)
		if v := o.Value.Verdict; v.Status != "" {
			cfg.Metrics.ObserveVerdict(string(v.Status), v.Bytes)
		}
		switch {
		case o.OK():
			passed = append(passed, o.Value)
		case errors.Is(o.Err, scheduler.ErrNotDispatched):
		default:
			log.Printf("check[%s]: %s: %v", shortID(runID), o.Key, o.Err)
		}
	}))
	sort.Slice(passed, func(i, j int) bool { return passed[i].Index < passed[j].Index })

	res := &CheckResult{Summary: summarize(runID, "check", outs, started)}
	for i, p := range passed {
		res.Passing = append(res.Passing, p.Path)
		res.Bytes += p.Verdict.Bytes
		log.Printf("check[%s]: best%d %s (%.0f KB/s)", shortID(runID), i+1, filepath.Base(p.Path), p.Verdict.Rate()/1024)
	}
	log.Printf("check[%s]: %s", shortID(runID), res.Summary)
	return res, nil
}

// SourcesResult is the summary of a CheckSources run plus the ranked
// playlists it wrote.
type SourcesResult struct {
	Summary
	Files []string // best{n}.m3u, in input order
}

type sourced struct {
	Index    int
	Path     string
	Channels int
}

// CheckSources fetches every remote playlist link under cfg.Policy. A link
// passes when the whole body arrives within the budget at the minimum rate
// and is an M3U playlist; its channels are regrouped by rank order and written
// to best{n}.m3u, n being the link's 1-based input position.
func CheckSources(ctx context.Context, cfg CheckConfig, links []probe.Target) (*SourcesResult, error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: no playlist links", ErrInputUnreadable)
	}
	cfg.setDefaults(probe.Strict)
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("sources: out dir: %w", err)
	}

	runID := uuid.NewString()
	started := time.Now()
	log.Printf("sources[%s]: %d links, %d workers, policy %s", shortID(runID), len(links), cfg.Concurrency, cfg.Policy)

	tasks := make([]scheduler.Task[sourced], 0, len(links))
	for _, link := range links {
		tasks = append(tasks, scheduler.Task[sourced]{
			Key: link.URL,
			Run: func(ctx context.Context) (sourced, error) {
				body, v := probe.Fetch(ctx, cfg.Client, link.URL, cfg.Policy)
				cfg.Metrics.ObserveVerdict(string(v.Status), v.Bytes)
				if err := v.Err(); err != nil {
					return sourced{}, err
				}
				if !bytes.HasPrefix(bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))), []byte("#EXTM3U")) {
					return sourced{}, ErrNotPlaylist
				}
				targets, err := probe.ParseTargets(bytes.NewReader(body))
				if err != nil {
					return sourced{}, err
				}
				c := catalog.FromTargets(targets)
				if c.Len() == 0 {
					return sourced{}, fmt.Errorf("%w: no stream entries", ErrNotPlaylist)
				}
				path := filepath.Join(cfg.OutDir, fmt.Sprintf("best%d.m3u", link.Index+1))
				if err := catalog.SavePlaylist(path, c); err != nil {
					return sourced{}, err
				}
				return sourced{Index: link.Index, Path: path, Channels: c.Len()}, nil
			},
		})
	}

	var written []sourced
	outs := scheduler.RunAll(ctx, tasks, cfg.Concurrency, scheduler.OnDone(func(o scheduler.Outcome[sourced]) {
		cfg.Metrics.ObserveTask("sources", resultLabel(o.Err), o.Duration)
		switch {
		case o.OK():
			written = append(written, o.Value)
			log.Printf("sources[%s]: %s: %d channels -> %s", shortID(runID), o.Key, o.Value.Channels, filepath.Base(o.Value.Path))
		case errors.Is(o.Err, scheduler.ErrNotDispatched):
		default:
			log.Printf("sources[%s]: %s: %v", shortID(runID), o.Key, o.Err)
		}
	}))
	sort.Slice(written, func(i, j int) bool { return written[i].Index < written[j].Index })

	res := &SourcesResult{Summary: summarize(runID, "sources", outs, started)}
	for _, w := range written {
		res.Files = append(res.Files, w.Path)
	}
	log.Printf("sources[%s]: %s", shortID(runID), res.Summary)
	return res, nil
}
