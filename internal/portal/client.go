// Package portal talks to MAG/Stalker-style IPTV middleware: handshake for a
// token, then enumerate channels and genres across the known endpoint shapes.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/portalharvest/internal/catalog"
	"github.com/snapetech/portalharvest/internal/httpclient"
)

var (
	// ErrNoToken: the handshake failed or returned no token.
	ErrNoToken = errors.New("portal: no token")
	// ErrNoChannels: no channel endpoint returned a non-empty channel list.
	ErrNoChannels = errors.New("portal: no channels")
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultAPITimeout       = 15 * time.Second
	DefaultRequestInterval  = 250 * time.Millisecond
)

// Config holds per-request limits shared by every Discover call.
type Config struct {
	HandshakeTimeout time.Duration
	APITimeout       time.Duration
	UserAgent        string
	// RequestInterval spaces the requests of one session. Negative disables pacing.
	RequestInterval time.Duration
	// Transport is the underlying round tripper; nil uses the shared transport.
	Transport http.RoundTripper
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.APITimeout <= 0 {
		c.APITimeout = DefaultAPITimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = httpclient.DefaultUserAgent
	}
	if c.RequestInterval == 0 {
		c.RequestInterval = DefaultRequestInterval
	}
}

// Client runs discovery exchanges. It holds no per-identity state and is safe
// for concurrent use.
type Client struct {
	cfg Config
}

// New returns a Client with defaults applied to cfg.
func New(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{cfg: cfg}
}

// Channel is one portal channel with its command already materialized into a
// playable URL.
type Channel struct {
	Name    string
	Logo    string
	Command string
	GenreID string
}

// Result is everything one successful exchange produced.
type Result struct {
	Identity Identity
	Channels []Channel
	// Genres maps genre ID to group title. Empty when the portal has no genre endpoint.
	Genres map[string]string
	// Endpoint is the channel endpoint that answered.
	Endpoint Endpoint
	Catalog  catalog.Catalog
}

// Discover runs handshake, channel enumeration and genre lookup for id in a
// session of its own, then builds the ranked catalog. Genre failures are not
// fatal. Nothing is retried.
func (c *Client) Discover(ctx context.Context, id Identity) (*Result, error) {
	hc, err := httpclient.NewSession(httpclient.SessionConfig{
		BaseURL:  id.BaseURL,
		Cookies:  map[string]string{"mac": id.MAC},
		Interval: c.cfg.RequestInterval,
		Base:     c.cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	s := &session{cfg: &c.cfg, id: id, http: hc}
	if err := s.handshake(ctx); err != nil {
		return nil, err
	}
	raw, ep, err := s.channels(ctx)
	if err != nil {
		return nil, err
	}
	genres := s.genres(ctx)

	res := &Result{Identity: id, Genres: genres, Endpoint: ep}
	sources := make([]catalog.Source, 0, len(raw))
	for _, rc := range raw {
		ch := rc.channel(id)
		res.Channels = append(res.Channels, ch)
		sources = append(sources, catalog.Source{Name: ch.Name, Logo: ch.Logo, StreamURL: ch.Command, GenreID: ch.GenreID})
	}
	res.Catalog = catalog.Build(sources, genres)
	return res, nil
}

// session is the task-local state of one exchange. The token never leaves it.
type session struct {
	cfg   *Config
	id    Identity
	http  *http.Client
	token string
}

func (s *session) handshake(ctx context.Context) error {
	var js struct {
		Token flexString `json:"token"`
	}
	if err := s.getJS(ctx, Handshake, s.cfg.HandshakeTimeout, &js); err != nil {
		return fmt.Errorf("%w: handshake: %v", ErrNoToken, err)
	}
	if js.Token == "" {
		return fmt.Errorf("%w: handshake returned an empty token", ErrNoToken)
	}
	s.token = string(js.Token)
	return nil
}

func (s *session) channels(ctx context.Context) ([]rawChannel, Endpoint, error) {
	var errs []string
	for _, ep := range ChannelEndpoints {
		var js struct {
			Data json.RawMessage `json:"data"`
		}
		if err := s.getJS(ctx, ep, s.cfg.APITimeout, &js); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ep, err))
			continue
		}
		if !isArray(js.Data) {
			errs = append(errs, fmt.Sprintf("%s: no data array", ep))
			continue
		}
		list, err := decodeChannels(js.Data)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ep, err))
			continue
		}
		if len(list) == 0 {
			// A recognisable array ends the search even when it is empty.
			return nil, ep, fmt.Errorf("%w: %s: empty channel list", ErrNoChannels, ep)
		}
		return list, ep, nil
	}
	return nil, Endpoint{}, fmt.Errorf("%w: %s", ErrNoChannels, strings.Join(errs, "; "))
}

func (s *session) genres(ctx context.Context) map[string]string {
	for _, ep := range GenreEndpoints {
		var js json.RawMessage
		if err := s.getJS(ctx, ep, s.cfg.APITimeout, &js); err != nil || !isArray(js) {
			continue
		}
		var list []struct {
			ID    flexString `json:"id"`
			Title flexString `json:"title"`
		}
		if err := json.Unmarshal(js, &list); err != nil {
			continue
		}
		out := make(map[string]string, len(list))
		for _, g := range list {
			if g.ID != "" {
				out[string(g.ID)] = string(g.Title)
			}
		}
		return out
	}
	return map[string]string{}
}

// getJS fetches ep and decodes the "js" member of the response into v.
func (s *session) getJS(ctx context.Context, ep Endpoint, timeout time.Duration, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL(s.id.BaseURL), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var env struct {
		JS json.RawMessage `json:"js"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if len(env.JS) == 0 {
		return errors.New("response has no js member")
	}
	return json.Unmarshal(env.JS, v)
}

func isArray(raw json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
}

type rawChannel struct {
	Name    flexString      `json:"name"`
	Logo    flexString      `json:"logo"`
	Cmd     flexString      `json:"cmd"`
	Cmds    json.RawMessage `json:"cmds"`
	GenreID flexString      `json:"tv_genre_id"`
}

// decodeChannels decodes each element on its own so one odd entry does not
// cost the whole list.
func decodeChannels(data json.RawMessage) ([]rawChannel, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	out := make([]rawChannel, 0, len(elems))
	for _, e := range elems {
		var rc rawChannel
		if err := json.Unmarshal(e, &rc); err != nil {
			continue
		}
		out = append(out, rc)
	}
	return out, nil
}

// command prefers cmds[0].url over cmd.
func (rc rawChannel) command() string {
	if isArray(rc.Cmds) {
		var cmds []struct {
			URL flexString `json:"url"`
		}
		if json.Unmarshal(rc.Cmds, &cmds) == nil && len(cmds) > 0 && cmds[0].URL != "" {
			return string(cmds[0].URL)
		}
	}
	return string(rc.Cmd)
}

func (rc rawChannel) channel(id Identity) Channel {
	return Channel{
		Name:    strings.TrimSpace(string(rc.Name)),
		Logo:    string(rc.Logo),
		Command: PlayableURL(rc.command(), id.BaseURL, id.MAC),
		GenreID: string(rc.GenreID),
	}
}

// flexString accepts a JSON string, number, bool or null. Portals send IDs
// either way; integral numbers are formatted without a fraction.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '{' || b[0] == '[':
		*f = ""
	default:
		s := string(b)
		if n, err := strconv.ParseFloat(s, 64); err == nil && n == float64(int64(n)) {
			s = strconv.FormatInt(int64(n), 10)
		}
		*f = flexString(s)
	}
	return nil
}
