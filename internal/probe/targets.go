package probe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/snapetech/portalharvest/internal/safeurl"
)

// SampleLine is the 1-based playlist line whose URL stands in for the whole
// playlist in a playlist-level check. In a MAC{n}.m3u it is the 7th stream.
const SampleLine = 15

// ErrNoSample: the playlist has no http(s) URL on the sample line.
var ErrNoSample = errors.New("probe: no sample url")

// Target is one probe candidate: a stream URL and the annotation line that
// preceded it in the source playlist.
type Target struct {
	Annotation string
	URL        string
	// Index is the position in the concatenated input, used to restore input
	// order after concurrent probing.
	Index int
}

// ParseTargets reads a playlist and pairs every http(s) URL with the last
// '#' line before it, preferring the last #EXTINF line when there is one.
// Input that is not valid UTF-8 is read as ISO-8859-1.
func ParseTargets(r io.Reader) ([]Target, error) {
	return parseTargets(r, 0)
}

func parseTargets(r io.Reader, offset int) ([]Target, error) {
	src, err := decodeText(r)
	if err != nil {
		return nil, err
	}

	var out []Target
	var annotation string
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			if strings.HasPrefix(strings.ToUpper(line), "#EXTM3U") {
				continue
			}
			// #EXTVLCOPT, #EXTGRP and similar lines do not replace a pending #EXTINF.
			if isEXTINF(annotation) && !isEXTINF(line) {
				continue
			}
			annotation = line
		case safeurl.IsHTTPOrHTTPS(line):
			out = append(out, Target{Annotation: annotation, URL: line, Index: offset + len(out)})
			annotation = ""
		default:
			annotation = ""
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	return out, nil
}

// decodeText returns r as UTF-8, reading it as ISO-8859-1 when it is not
// valid UTF-8.
func decodeText(r io.Reader) (io.Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	if utf8.Valid(raw) {
		return bytes.NewReader(raw), nil
	}
	src, err := charset.NewReaderLabel("iso-8859-1", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	return src, nil
}

func isEXTINF(line string) bool {
	return strings.HasPrefix(strings.ToUpper(line), "#EXTINF")
}

// ReadTargetsDir parses every *.m3u file in dir in name order. Indices run
// across files so the concatenated order is preserved.
func ReadTargetsDir(dir string) ([]Target, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.m3u"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var all []Target
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		ts, err := parseTargets(f, len(all))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		all = append(all, ts...)
	}
	return all, nil
}

// Filter keeps targets whose annotation contains keyword (case-insensitive).
// An empty keyword keeps everything. Indices are not renumbered.
func Filter(targets []Target, keyword string) []Target {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if !safeurl.IsHTTPOrHTTPS(t.URL) {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(t.Annotation), kw) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SampleURL returns the URL on the given 1-based line of a playlist.
func SampleURL(r io.Reader, line int) (string, error) {
	src, err := decodeText(r)
	if err != nil {
		return "", err
	}
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if n < line {
			continue
		}
		u := strings.TrimSpace(sc.Text())
		if !safeurl.IsHTTPOrHTTPS(u) {
			return "", fmt.Errorf("%w: line %d is not a stream URL", ErrNoSample, line)
		}
		return u, nil
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan playlist: %w", err)
	}
	return "", fmt.Errorf("%w: fewer than %d lines", ErrNoSample, line)
}
