package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/portalharvest/internal/probe"
)

// Config holds discovery + verification settings.
// Load from env; CLI flags override individual fields.
type Config struct {
	// Discovery
	IdentitiesFile      string // "baseURL$MAC" per line
	OutDir              string // MAC{n}.m3u playlists land here
	CleanOutDir         bool   // remove stale MAC*.m3u from OutDir before a discovery run
	DiscoverConcurrency int
	HandshakeTimeout    time.Duration
	APITimeout          time.Duration
	RequestInterval     time.Duration // spacing of the requests of one portal session; <0 disables
	UserAgent           string

	// Verification
	ProbeConcurrency int
	ProbeProfile     string // quick | soak | strict
	VerifyOutDir     string
	LogoBaseURL      string // records get <base>/<id>.png as logo when set
	RulesFile        string // JSON channel rules; "" = no records

	// MetricsFile is a node-exporter textfile written at the end of a run; "" = disabled.
	MetricsFile string
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	return &Config{
		IdentitiesFile:      getEnv("PORTAL_HARVEST_IDENTITIES_FILE", "fixmac.txt"),
		OutDir:              getEnv("PORTAL_HARVEST_OUT_DIR", "specialiptvs"),
		CleanOutDir:         getEnvBool("PORTAL_HARVEST_CLEAN_OUT_DIR", false),
		DiscoverConcurrency: getEnvInt("PORTAL_HARVEST_DISCOVER_CONCURRENCY", 300),
		HandshakeTimeout:    getEnvDuration("PORTAL_HARVEST_HANDSHAKE_TIMEOUT", 10*time.Second),
		APITimeout:          getEnvDuration("PORTAL_HARVEST_API_TIMEOUT", 15*time.Second),
		RequestInterval:     getEnvDuration("PORTAL_HARVEST_REQUEST_INTERVAL", 250*time.Millisecond),
		UserAgent:           getEnv("PORTAL_HARVEST_USER_AGENT", "Mozilla/5.0"),
		ProbeConcurrency:    getEnvInt("PORTAL_HARVEST_PROBE_CONCURRENCY", 10),
		ProbeProfile:        strings.ToLower(getEnv("PORTAL_HARVEST_PROBE_PROFILE", "quick")),
		VerifyOutDir:        getEnv("PORTAL_HARVEST_VERIFY_OUT_DIR", "best_channels"),
		LogoBaseURL:         os.Getenv("PORTAL_HARVEST_LOGO_BASE_URL"),
		RulesFile:           os.Getenv("PORTAL_HARVEST_RULES_FILE"),
		MetricsFile:         os.Getenv("PORTAL_HARVEST_METRICS_FILE"),
	}
}

// Validate rejects settings no run can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscoverConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("discover concurrency must be > 0, got %d", c.DiscoverConcurrency))
	}
	if c.ProbeConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("probe concurrency must be > 0, got %d", c.ProbeConcurrency))
	}
	if c.HandshakeTimeout <= 0 || c.APITimeout <= 0 {
		errs = append(errs, errors.New("handshake and api timeouts must be > 0"))
	}
	if _, err := probe.PolicyByName(c.ProbeProfile); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Policy resolves ProbeProfile.
func (c *Config) Policy() (probe.Policy, error) {
	return probe.PolicyByName(c.ProbeProfile)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
