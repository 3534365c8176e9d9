package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Annotation formats the descriptor line for one entry.
func Annotation(name, logo, group string) string {
	return fmt.Sprintf(`#EXTINF:-1 tvg-logo="%s" group-title="%s",%s`, logo, group, name)
}

// ParseAnnotation splits a descriptor line into its key="value" attributes and
// the display name after the first comma outside quotes. Lines without a comma
// have no name.
func ParseAnnotation(line string) (attrs map[string]string, name string) {
	attrs = make(map[string]string)
	head := line
	inQuote := false
scan:
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				head, name = line[:i], strings.TrimSpace(line[i+1:])
				break scan
			}
		}
	}
	for {
		eq := strings.Index(head, `="`)
		if eq < 0 {
			break
		}
		key := head[:eq]
		if sp := strings.LastIndexAny(key, " \t"); sp >= 0 {
			key = key[sp+1:]
		}
		rest := head[eq+2:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			break
		}
		if key != "" {
			attrs[strings.ToLower(key)] = rest[:end]
		}
		head = rest[end+1:]
	}
	return attrs, name
}

// WritePlaylist writes c as an extended M3U playlist: a header line, then the
// annotation line and URL of every entry.
func WritePlaylist(w io.Writer, c Catalog) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("#EXTM3U\n")
	for _, g := range c.Groups {
		for _, e := range g.Entries {
			ann := strings.TrimSpace(e.Annotation)
			if ann == "" {
				ann = Annotation(e.Name, e.Logo, e.Group)
			}
			bw.WriteString(ann)
			bw.WriteByte('\n')
			bw.WriteString(strings.TrimSpace(e.URL))
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// SavePlaylist writes c to path. Readers never see a partially-written file.
func SavePlaylist(path string, c Catalog) error {
	var buf bytes.Buffer
	if err := WritePlaylist(&buf, c); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes(), ".playlist-*.m3u.tmp")
}

// writeFileAtomic writes data to a temp file in path's directory and renames
// it into place.
func writeFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save %s: mkdir: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("save %s: create temp: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("save %s: write: %w", filepath.Base(path), writeErr)
		}
		return fmt.Errorf("save %s: close: %w", filepath.Base(path), closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: chmod: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: rename: %w", filepath.Base(path), err)
	}
	return nil
}
