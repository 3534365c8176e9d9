package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Rule maps entries whose display name contains Match (case-insensitive) to
// the channel identifier ID.
type Rule struct {
	Match    string `json:"match"`
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Group    string `json:"group,omitempty"`
}

// Record describes one verified channel with all of its working stream URLs.
type Record struct {
	CategoryName  string   `json:"categoryName"`
	ChannelName   string   `json:"channelName"`
	ChannelNumber string   `json:"channelNumber"`
	GroupName     string   `json:"groupName"`
	StreamURLs    []string `json:"streamUrl"`
	Timestamp     int64    `json:"timestamp"` // ms since epoch
	LogoURL       string   `json:"urlLogo"`
}

// LoadRules reads a JSON array of rules from path. Rules without Match or ID
// are rejected.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	for i, r := range rules {
		if strings.TrimSpace(r.Match) == "" || strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("rules %s: rule %d needs match and id", path, i)
		}
	}
	return rules, nil
}

// Lookup returns the first rule whose Match is contained in name.
func Lookup(rules []Rule, name string) (Rule, bool) {
	lower := strings.ToLower(name)
	for _, r := range rules {
		if strings.Contains(lower, strings.ToLower(r.Match)) {
			return r, true
		}
	}
	return Rule{}, false
}

// BuildRecords maps the entries of c to records keyed by rule ID. Entries
// that match no rule are dropped. Stream URLs accumulate in entry order and
// the record's channel name is that of the last matching entry. When
// logoBase is set the logo URL is logoBase/<id>.png, otherwise the entry logo.
func BuildRecords(c Catalog, rules []Rule, logoBase string, now time.Time) map[string]Record {
	out := make(map[string]Record)
	ts := now.UnixMilli()
	for _, e := range c.Entries() {
		r, ok := Lookup(rules, e.Name)
		if !ok {
			continue
		}
		rec, seen := out[r.ID]
		if !seen {
			rec = Record{
				CategoryName:  r.Category,
				ChannelNumber: r.ID,
				GroupName:     r.Group,
				Timestamp:     ts,
				LogoURL:       e.Logo,
			}
			if logoBase != "" {
				rec.LogoURL = strings.TrimRight(logoBase, "/") + "/" + r.ID + ".png"
			}
		}
		rec.ChannelName = e.Name
		rec.StreamURLs = append(rec.StreamURLs, e.URL)
		out[r.ID] = rec
	}
	return out
}

// SaveRecords writes records as {"channels": {...}} to path atomically.
func SaveRecords(path string, records map[string]Record) error {
	data, err := json.MarshalIndent(struct {
		Channels map[string]Record `json:"channels"`
	}{records}, "", "    ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), ".records-*.json.tmp")
}

// Split is the part of a catalog that matched one rule ID.
type Split struct {
	ID      string
	Catalog Catalog
}

// SplitByRule partitions the rule-matched entries of c into one Catalog per
// rule ID, ordered by first match. Group order inside each part follows c.
func SplitByRule(c Catalog, rules []Rule) []Split {
	var ids []string
	parts := make(map[string]*Catalog)
	for _, g := range c.Groups {
		for _, e := range g.Entries {
			r, ok := Lookup(rules, e.Name)
			if !ok {
				continue
			}
			part := parts[r.ID]
			if part == nil {
				part = &Catalog{}
				parts[r.ID] = part
				ids = append(ids, r.ID)
			}
			if n := len(part.Groups); n == 0 || part.Groups[n-1].Name != g.Name {
				part.Groups = append(part.Groups, Group{Name: g.Name})
			}
			last := &part.Groups[len(part.Groups)-1]
			last.Entries = append(last.Entries, e)
		}
	}
	out := make([]Split, 0, len(ids))
	for _, id := range ids {
		out = append(out, Split{ID: id, Catalog: *parts[id]})
	}
	return out
}
