// Package catalog groups channels by ranked group and writes them as playlists
// and channel-record JSON.
package catalog

import (
	"strings"

	"github.com/snapetech/portalharvest/internal/probe"
	"github.com/snapetech/portalharvest/internal/rank"
)

const (
	// DefaultGroup is used when a channel's genre is unknown or missing.
	DefaultGroup = "General"
	// DefaultName is used for channels that arrive without a name.
	DefaultName = "Unnamed Channel"
)

// Source is one channel as reported by a portal, with its stream URL already
// materialized.
type Source struct {
	Name      string
	Logo      string
	StreamURL string
	GenreID   string
}

// Entry is one playlist item. Annotation is the full descriptor line written
// before URL.
type Entry struct {
	Name       string `json:"name"`
	Logo       string `json:"logo,omitempty"`
	Group      string `json:"group"`
	Annotation string `json:"annotation"`
	URL        string `json:"url"`
}

// Group holds the entries of one group in first-seen order.
type Group struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Catalog is an ordered list of non-empty groups.
type Catalog struct {
	Groups []Group `json:"groups"`
}

// Len returns the number of entries across all groups.
func (c Catalog) Len() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Entries)
	}
	return n
}

// Entries returns all entries in playlist order.
func (c Catalog) Entries() []Entry {
	out := make([]Entry, 0, c.Len())
	for _, g := range c.Groups {
		out = append(out, g.Entries...)
	}
	return out
}

// Build resolves every channel's group through genres, ranks the distinct
// groups and returns the channels grouped in that order. Channels without a
// stream URL are dropped. Build is pure: the same input gives the same Catalog.
func Build(channels []Source, genres map[string]string) Catalog {
	entries := make([]Entry, 0, len(channels))
	for _, ch := range channels {
		if strings.TrimSpace(ch.StreamURL) == "" {
			continue
		}
		group := genres[ch.GenreID]
		if group == "" {
			group = DefaultGroup
		}
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			name = DefaultName
		}
		entries = append(entries, Entry{
			Name:       name,
			Logo:       ch.Logo,
			Group:      group,
			Annotation: Annotation(name, ch.Logo, group),
			URL:        ch.StreamURL,
		})
	}
	return assemble(entries)
}

// FromTargets builds a Catalog from verified probe targets, keeping each
// target's annotation line verbatim. Group and display name are read from the
// annotation; targets without a group-title land in DefaultGroup.
func FromTargets(targets []probe.Target) Catalog {
	entries := make([]Entry, 0, len(targets))
	for _, t := range targets {
		attrs, name := ParseAnnotation(t.Annotation)
		g := attrs["group-title"]
		if g == "" {
			g = DefaultGroup
		}
		if name == "" {
			name = DefaultName
		}
		entries = append(entries, Entry{
			Name:       name,
			Logo:       attrs["tvg-logo"],
			Group:      g,
			Annotation: t.Annotation,
			URL:        t.URL,
		})
	}
	return assemble(entries)
}

// assemble buckets entries by Group and orders the buckets by rank.Groups
// over the names in first-appearance order.
func assemble(entries []Entry) Catalog {
	var names []string
	byGroup := make(map[string][]Entry)
	for _, e := range entries {
		if _, ok := byGroup[e.Group]; !ok {
			names = append(names, e.Group)
		}
		byGroup[e.Group] = append(byGroup[e.Group], e)
	}
	var c Catalog
	for _, name := range rank.Groups(names) {
		c.Groups = append(c.Groups, Group{Name: name, Entries: byGroup[name]})
	}
	return c
}
