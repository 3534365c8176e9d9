// Command portal-harvest: pull channel lists from IPTV portals and keep the streams that actually deliver.
//
//	discover  Read baseURL$MAC identities, write one ranked MAC{n}.m3u per working portal
//	verify    Probe stream URLs (file or directory of playlists), write the ones that sustain the rate
//	check     Probe the sample stream (line 15) of each playlist in a dir, rank the passing ones best1..n
//	run       discover, then verify the discovered playlists
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapetech/portalharvest/internal/catalog"
	"github.com/snapetech/portalharvest/internal/config"
	"github.com/snapetech/portalharvest/internal/harvest"
	"github.com/snapetech/portalharvest/internal/metrics"
	"github.com/snapetech/portalharvest/internal/portal"
	"github.com/snapetech/portalharvest/internal/probe"
)

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[portal-harvest] ")

	discoverCmd := flag.NewFlagSet("discover", flag.ExitOnError)
	discoverIn := discoverCmd.String("in", "", "Identities file, one baseURL$MAC per line (default: PORTAL_HARVEST_IDENTITIES_FILE)")
	discoverOut := discoverCmd.String("out", "", "Output dir for MAC{n}.m3u (default: PORTAL_HARVEST_OUT_DIR)")
	discoverWorkers := discoverCmd.Int("workers", 0, "Concurrent portal sessions (default: PORTAL_HARVEST_DISCOVER_CONCURRENCY)")
	discoverClean := discoverCmd.Bool("clean", false, "Remove old MAC*.m3u from the output dir first")

	verifyCmd := flag.NewFlagSet("verify", flag.ExitOnError)
	verifyIn := verifyCmd.String("in", "", "Playlist or link file to probe")
	verifyDir := verifyCmd.String("dir", "", "Probe every *.m3u in this dir instead of -in")
	verifyMatch := verifyCmd.String("match", "", "Keep only URLs whose annotation contains this (case-insensitive)")
	verifyProfile := verifyCmd.String("profile", "", "Probe policy: quick, soak or strict (default: PORTAL_HARVEST_PROBE_PROFILE)")
	verifyWorkers := verifyCmd.Int("workers", 0, "Concurrent probes (default: PORTAL_HARVEST_PROBE_CONCURRENCY)")
	verifyRules := verifyCmd.String("rules", "", "Channel rules JSON; enables {name}.json records (default: PORTAL_HARVEST_RULES_FILE)")
	verifyOut := verifyCmd.String("out", "", "Output dir (default: PORTAL_HARVEST_VERIFY_OUT_DIR)")
	verifyName := verifyCmd.String("name", "verified", "Base name of the output playlist and records")
	verifySources := verifyCmd.Bool("sources", false, "Treat -in as remote playlist links: fetch each (strict policy), rank its groups, write best{n}.m3u")

	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkDir := checkCmd.String("dir", "", "Dir of playlists to check (default: PORTAL_HARVEST_OUT_DIR)")
	checkProfile := checkCmd.String("profile", "soak", "Probe policy for the sample stream")
	checkWorkers := checkCmd.Int("workers", 0, "Concurrent probes (default: PORTAL_HARVEST_PROBE_CONCURRENCY)")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runIn := runCmd.String("in", "", "Identities file (default: PORTAL_HARVEST_IDENTITIES_FILE)")
	runMatch := runCmd.String("match", "", "Keep only discovered channels whose annotation contains this")
	runProfile := runCmd.String("profile", "", "Probe policy (default: PORTAL_HARVEST_PROBE_PROFILE)")
	runName := runCmd.String("name", "verified", "Base name of the verified playlist")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <discover|verify|check|run> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  discover  Fetch channel lists from portals into MAC{n}.m3u\n")
		fmt.Fprintf(os.Stderr, "  verify    Probe stream URLs and keep the ones that sustain the policy rate\n")
		fmt.Fprintf(os.Stderr, "  check     Probe each playlist's sample stream and rank the passing playlists\n")
		fmt.Fprintf(os.Stderr, "  run       discover, then verify the discovered playlists\n")
		fmt.Fprintf(os.Stderr, "Probe policies:")
		for _, p := range probe.Policies() {
			fmt.Fprintf(os.Stderr, " %s", p)
		}
		fmt.Fprintln(os.Stderr)
		os.Exit(1)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	m := metrics.New()

	var err error
	switch os.Args[1] {
	case "discover":
		_ = discoverCmd.Parse(os.Args[2:])
		override(&cfg.IdentitiesFile, *discoverIn)
		override(&cfg.OutDir, *discoverOut)
		if *discoverWorkers > 0 {
			cfg.DiscoverConcurrency = *discoverWorkers
		}
		cfg.CleanOutDir = cfg.CleanOutDir || *discoverClean
		err = runDiscover(ctx, cfg, m)

	case "verify":
		_ = verifyCmd.Parse(os.Args[2:])
		override(&cfg.ProbeProfile, *verifyProfile)
		override(&cfg.RulesFile, *verifyRules)
		override(&cfg.VerifyOutDir, *verifyOut)
		if *verifyWorkers > 0 {
			cfg.ProbeConcurrency = *verifyWorkers
		}
		if *verifySources {
			if *verifyIn == "" {
				log.Printf("verify -sources: need -in")
				os.Exit(1)
			}
			err = runSources(ctx, cfg, m, *verifyIn, *verifyMatch, *verifyProfile)
			break
		}
		if *verifyIn == "" && *verifyDir == "" {
			log.Printf("verify: need -in or -dir")
			os.Exit(1)
		}
		err = runVerify(ctx, cfg, m, *verifyIn, *verifyDir, *verifyMatch, *verifyName)

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		override(&cfg.OutDir, *checkDir)
		if *checkWorkers > 0 {
			cfg.ProbeConcurrency = *checkWorkers
		}
		err = runCheck(ctx, cfg, m, *checkProfile)

	case "run":
		_ = runCmd.Parse(os.Args[2:])
		override(&cfg.IdentitiesFile, *runIn)
		override(&cfg.ProbeProfile, *runProfile)
		if err = runDiscover(ctx, cfg, m); err == nil {
			err = runVerify(ctx, cfg, m, "", cfg.OutDir, *runMatch, *runName)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
		log.Printf("Write metrics %s: %v", cfg.MetricsFile, werr)
	}
	if err != nil {
		log.Printf("%s failed: %v", os.Args[1], err)
		os.Exit(1)
	}
}

func override(dst *string, flagVal string) {
	if flagVal != "" {
		*dst = flagVal
	}
}

func runDiscover(ctx context.Context, cfg *config.Config, m *metrics.Set) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ids, err := harvest.ReadIdentities(cfg.IdentitiesFile)
	if err != nil {
		return err
	}
	_, err = harvest.Discover(ctx, harvest.DiscoverConfig{
		OutDir:      cfg.OutDir,
		Concurrency: cfg.DiscoverConcurrency,
		Clean:       cfg.CleanOutDir,
		Portal: portal.Config{
			HandshakeTimeout: cfg.HandshakeTimeout,
			APITimeout:       cfg.APITimeout,
			UserAgent:        cfg.UserAgent,
			RequestInterval:  cfg.RequestInterval,
		},
		Metrics: m,
	}, ids)
	return err
}

func runVerify(ctx context.Context, cfg *config.Config, m *metrics.Set, in, dir, match, name string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	var rules []catalog.Rule
	if cfg.RulesFile != "" {
		if rules, err = catalog.LoadRules(cfg.RulesFile); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}
	targets, err := harvest.ReadTargets(in, dir, match)
	if err != nil {
		return err
	}
	res, err := harvest.Verify(ctx, harvest.VerifyConfig{
		OutDir:      cfg.VerifyOutDir,
		Name:        name,
		Concurrency: cfg.ProbeConcurrency,
		Policy:      policy,
		Rules:       rules,
		LogoBaseURL: cfg.LogoBaseURL,
		Metrics:     m,
	}, targets)
	if err != nil {
		return err
	}
	for _, f := range res.Files {
		log.Printf("Wrote %s", f)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Printf("verify: interrupted; %d targets were not probed", res.Skipped)
	}
	return nil
}

func runCheck(ctx context.Context, cfg *config.Config, m *metrics.Set, profile string) error {
	policy, err := probe.PolicyByName(profile)
	if err != nil {
		return err
	}
	paths, err := harvest.ListPlaylists(cfg.OutDir)
	if err != nil {
		return err
	}
	res, err := harvest.CheckPlaylists(ctx, harvest.CheckConfig{
		Concurrency: cfg.ProbeConcurrency,
		Policy:      policy,
		Metrics:     m,
	}, paths)
	if err != nil {
		return err
	}
	for i, p := range res.Passing {
		fmt.Printf("best%d\t%s\n", i+1, p)
	}
	return nil
}

func runSources(ctx context.Context, cfg *config.Config, m *metrics.Set, in, match, profile string) error {
	policy := probe.Strict
	if profile != "" {
		var err error
		if policy, err = probe.PolicyByName(profile); err != nil {
			return err
		}
	}
	links, err := harvest.ReadTargets(in, "", match)
	if err != nil {
		return err
	}
	res, err := harvest.CheckSources(ctx, harvest.CheckConfig{
		OutDir:      cfg.VerifyOutDir,
		Concurrency: cfg.ProbeConcurrency,
		Policy:      policy,
		Metrics:     m,
	}, links)
	if err != nil {
		return err
	}
	for _, f := range res.Files {
		log.Printf("Wrote %s", f)
	}
	return nil
}
