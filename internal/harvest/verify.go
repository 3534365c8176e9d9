package harvest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/portalharvest/internal/catalog"
	"github.com/snapetech/portalharvest/internal/metrics"
	"github.com/snapetech/portalharvest/internal/probe"
	"github.com/snapetech/portalharvest/internal/scheduler"
)

const DefaultProbeConcurrency = 10

// VerifyConfig configures one verification run.
type VerifyConfig struct {
	OutDir string
	// Name is the base name of the playlist and records files.
	Name        string
	Concurrency int
	Policy      probe.Policy
	// Client is used for every probe; nil uses the shared streaming client.
	Client *http.Client
	// Rules turn verified entries into channel records; nil writes no records.
	Rules       []catalog.Rule
	LogoBaseURL string
	Metrics     *metrics.Set
	Now         func() time.Time
}

// VerifyResult is the summary plus what was written.
type VerifyResult struct {
	Summary
	Valid   []probe.Target // input order
	Catalog catalog.Catalog
	Records map[string]catalog.Record
	Files   []string
}

type checked struct {
	Target  probe.Target
	Verdict probe.Verdict
}

// Verify probes every target under cfg.Policy, keeps the valid ones in input
// order and writes {Name}.m3u. With rules it also writes {Name}.json and one
// {id}.m3u per matched channel. Nothing is written when no target is valid.
func Verify(ctx context.Context, cfg VerifyConfig, targets []probe.Target) (*VerifyResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInputUnreadable)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultProbeConcurrency
	}
	if cfg.Name == "" {
		cfg.Name = "verified"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	runID := uuid.NewString()
	started := time.Now()
	log.Printf("verify[%s]: %d targets, %d workers, policy %s", shortID(runID), len(targets), cfg.Concurrency, cfg.Policy)

	tasks := make([]scheduler.Task[checked], 0, len(targets))
	for _, t := range targets {
		tasks = append(tasks, scheduler.Task[checked]{
			Key: t.URL,
			Run: func(ctx context.Context) (checked, error) {
				v := probe.Probe(ctx, cfg.Client, t.URL, cfg.Policy)
				return checked{Target: t, Verdict: v}, v.Err()
			},
		})
	}

	var bytes int64
	outs := scheduler.RunAll(ctx, tasks, cfg.Concurrency, scheduler.OnDone(func(o scheduler.Outcome[checked]) {
		cfg.Metrics.ObserveTask("verify", resultLabel(o.Err), o.Duration)
		if errors.Is(o.Err, scheduler.ErrNotDispatched) {
			return
		}
		v := o.Value.Verdict
		bytes += v.Bytes
		if v.Status != "" {
			cfg.Metrics.ObserveVerdict(string(v.Status), v.Bytes)
		}
		if o.OK() {
			log.Printf("verify[%s]: ok %s (%.0f KB/s)", shortID(runID), o.Key, v.Rate()/1024)
		}
	}))

	res := &VerifyResult{}
	for _, o := range outs {
		if o.OK() {
			res.Valid = append(res.Valid, o.Value.Target)
		}
	}
	sort.Slice(res.Valid, func(i, j int) bool { return res.Valid[i].Index < res.Valid[j].Index })
	res.Summary = summarize(runID, "verify", outs, started)
	res.Summary.Bytes = bytes

	if len(res.Valid) == 0 {
		log.Printf("verify[%s]: no valid streams; nothing written. %s", shortID(runID), res.Summary)
		return res, nil
	}
	if err := res.write(cfg); err != nil {
		return res, err
	}
	res.Summary.Duration = time.Since(started)
	log.Printf("verify[%s]: %s", shortID(runID), res.Summary)
	return res, nil
}

func (r *VerifyResult) write(cfg VerifyConfig) error {
	r.Catalog = catalog.FromTargets(r.Valid)
	playlist := filepath.Join(cfg.OutDir, cfg.Name+".m3u")
	if err := catalog.SavePlaylist(playlist, r.Catalog); err != nil {
		return err
	}
	r.Files = append(r.Files, playlist)
	if len(cfg.Rules) == 0 {
		return nil
	}
	r.Records = catalog.BuildRecords(r.Catalog, cfg.Rules, cfg.LogoBaseURL, cfg.Now())
	records := filepath.Join(cfg.OutDir, cfg.Name+".json")
	if err := catalog.SaveRecords(records, r.Records); err != nil {
		return err
	}
	r.Files = append(r.Files, records)
	for _, part := range catalog.SplitByRule(r.Catalog, cfg.Rules) {
		path := filepath.Join(cfg.OutDir, part.ID+".m3u")
		if err := catalog.SavePlaylist(path, part.Catalog); err != nil {
			return err
		}
		r.Files = append(r.Files, path)
	}
	return nil
}
