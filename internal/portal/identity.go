package portal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/snapetech/portalharvest/internal/safeurl"
)

// Identity is one portal login: a base URL plus the device MAC the portal
// knows. Index is the 1-based position in the input and names the output file.
type Identity struct {
	Index   int
	BaseURL string
	MAC     string
}

func (id Identity) String() string {
	return fmt.Sprintf("#%d %s %s", id.Index, id.BaseURL, id.MAC)
}

// ParseIdentities reads one "baseURL$MAC" pair per line. Blank lines and
// '#' comments are skipped, as are lines that do not split into exactly two
// non-empty parts or whose base URL is not http(s). MACs are upper-cased and
// base URL trailing slashes trimmed. Index runs 1..n over the accepted lines.
func ParseIdentities(r io.Reader) ([]Identity, error) {
	var out []Identity
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "$")
		if len(parts) != 2 {
			continue
		}
		base := strings.TrimRight(strings.TrimSpace(parts[0]), "/")
		mac := strings.ToUpper(strings.TrimSpace(parts[1]))
		if base == "" || mac == "" || !safeurl.IsHTTPOrHTTPS(base) {
			continue
		}
		out = append(out, Identity{Index: len(out) + 1, BaseURL: base, MAC: mac})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read identities: %w", err)
	}
	return out, nil
}

// LoadIdentities parses the identities file at path.
func LoadIdentities(path string) ([]Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIdentities(f)
}
