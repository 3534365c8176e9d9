package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/snapetech/portalharvest/internal/probe"
)

// macPlaylist renders a discovered playlist whose 7th stream (line 15) is sample.
func macPlaylist(sample string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i := 1; i <= 8; i++ {
		u := fmt.Sprintf("http://cdn.example/%d.ts", i)
		if i == 7 {
			u = sample
		}
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-logo=\"\" group-title=\"News\",Ch %d\n%s\n", i, u)
	}
	return b.String()
}

func TestCheckPlaylists(t *testing.T) {
	srv := streamServer(t)
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("MAC1.m3u", macPlaylist(srv.URL+"/fast?1"))
	write("MAC2.m3u", "#EXTM3U\n#EXTINF:-1,Only\nhttp://cdn.example/only.ts\n")
	write("MAC3.m3u", macPlaylist(srv.URL+"/slow"))
	write("MAC4.m3u", macPlaylist(srv.URL+"/fast?4"))

	paths, err := ListPlaylists(dir)
	if err != nil {
		t.Fatal(err)
	}
	res, err := CheckPlaylists(context.Background(), CheckConfig{Concurrency: 4, Policy: testPolicy}, paths)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "MAC1.m3u"), filepath.Join(dir, "MAC4.m3u")}
	if diff := cmp.Diff(want, res.Passing); diff != "" {
		t.Errorf("passing (-want +got):\n%s", diff)
	}
	if res.Succeeded != 2 || res.Failed != 2 || res.Causes["no_sample"] != 1 || res.Causes["too_slow"] != 1 {
		t.Errorf("summary: %+v", res.Summary)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 4 {
		t.Errorf("check wrote or removed files: %v", entries)
	}
}

func TestListPlaylists_empty(t *testing.T) {
	if _, err := ListPlaylists(t.TempDir()); !errors.Is(err, ErrInputUnreadable) {
		t.Errorf("err = %v", err)
	}
}

func TestCheckSources(t *testing.T) {
	const remote = "#EXTM3U\n" +
		`#EXTINF:-1 group-title="News",CNN` + "\n" +
		"http://cdn.example/cnn\n" +
		`#EXTINF:-1 group-title="Sports",beIN 1` + "\n" +
		"#EXTVLCOPT:http-user-agent=VLC\n" +
		"http://cdn.example/bein\n" +
		`#EXTINF:-1 group-title="Iran TV",IRIB 1` + "\n" +
		"http://cdn.example/irib\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list.m3u":
			w.Write([]byte(remote))
		case "/login":
			w.Write([]byte("<html>sign in</html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	endless := streamServer(t)

	links := []probe.Target{
		{Annotation: "# provider A", URL: srv.URL + "/list.m3u", Index: 0},
		{Annotation: "# provider B", URL: srv.URL + "/login", Index: 1},
		{Annotation: "# provider C", URL: endless.URL + "/fast", Index: 2},
		{Annotation: "# provider D", URL: srv.URL + "/gone", Index: 3},
	}
	out := t.TempDir()
	res, err := CheckSources(context.Background(), CheckConfig{OutDir: out, Concurrency: 4, Policy: testPolicy}, links)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{filepath.Join(out, "best1.m3u")}, res.Files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if res.Succeeded != 1 || res.Causes["not_playlist"] != 1 || res.Causes["timeout"] != 1 || res.Causes["network"] != 1 {
		t.Errorf("summary: %+v", res.Summary)
	}

	got, err := os.ReadFile(filepath.Join(out, "best1.m3u"))
	if err != nil {
		t.Fatal(err)
	}
	want := "#EXTM3U\n" +
		`#EXTINF:-1 group-title="Iran TV",IRIB 1` + "\n" +
		"http://cdn.example/irib\n" +
		`#EXTINF:-1 group-title="Sports",beIN 1` + "\n" +
		"http://cdn.example/bein\n" +
		`#EXTINF:-1 group-title="News",CNN` + "\n" +
		"http://cdn.example/cnn\n"
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("best1.m3u (-want +got):\n%s", diff)
	}
}
