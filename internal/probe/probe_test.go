package probe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// streamHandler writes size bytes every tick until the client goes away.
func streamHandler(size int, tick time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.WriteHeader(http.StatusOK)
		buf := bytes.Repeat([]byte{0x47}, size)
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			if _, err := w.Write(buf); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-t.C:
			}
		}
	}
}

var testPolicy = Policy{Name: "test", Budget: 600 * time.Millisecond, Grace: 150 * time.Millisecond, MinRate: 30 * 1024}

func TestProbe_fastStreamValid(t *testing.T) {
	srv := httptest.NewServer(streamHandler(5*1024, 50*time.Millisecond))
	defer srv.Close()

	v := Probe(context.Background(), nil, srv.URL, testPolicy)
	if v.Status != StatusValid {
		t.Fatalf("Status: %s (%v)", v.Status, v.Reason)
	}
	if v.Err() != nil {
		t.Errorf("Err: %v", v.Err())
	}
	if v.Elapsed < testPolicy.Budget-50*time.Millisecond {
		t.Errorf("valid verdict after %v, want about the full budget %v", v.Elapsed, testPolicy.Budget)
	}
	if v.StatusCode != 200 {
		t.Errorf("StatusCode: %d", v.StatusCode)
	}
	if v.Bytes == 0 {
		t.Error("Bytes: 0")
	}
}

func TestProbe_slowStreamInvalid(t *testing.T) {
	srv := httptest.NewServer(streamHandler(256, 50*time.Millisecond))
	defer srv.Close()

	v := Probe(context.Background(), nil, srv.URL, testPolicy)
	if v.Status != StatusInvalid {
		t.Fatalf("Status: %s (%v)", v.Status, v.Reason)
	}
	if !errors.Is(v.Err(), ErrTooSlow) {
		t.Errorf("Err: %v", v.Err())
	}
	if v.Elapsed >= testPolicy.Budget {
		t.Errorf("slow stream held for %v, want early stop", v.Elapsed)
	}
	if v.Elapsed < testPolicy.Grace {
		t.Errorf("judged after %v, before grace %v", v.Elapsed, testPolicy.Grace)
	}
}

func TestProbe_stallAfterBurst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(bytes.Repeat([]byte{0x47}, 50*1024))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := Policy{Name: "test", Budget: 2 * time.Second, Grace: 100 * time.Millisecond, MinRate: 100 * 1024}
	v := Probe(context.Background(), nil, srv.URL, p)
	if v.Status != StatusInvalid {
		t.Fatalf("Status: %s (%v)", v.Status, v.Reason)
	}
	if v.Elapsed >= p.Budget {
		t.Errorf("stalled stream held for %v", v.Elapsed)
	}
}

func TestProbe_badStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v := Probe(context.Background(), nil, srv.URL, testPolicy)
	if v.Status != StatusErrored {
		t.Errorf("Status: %s", v.Status)
	}
	if v.StatusCode != 404 {
		t.Errorf("StatusCode: %d", v.StatusCode)
	}
	if !errors.Is(v.Err(), ErrNetwork) {
		t.Errorf("Err: %v", v.Err())
	}
}

func TestProbe_noResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := Policy{Name: "test", Budget: 200 * time.Millisecond, Grace: 100 * time.Millisecond, MinRate: 1024}
	v := Probe(context.Background(), nil, srv.URL, p)
	if v.Status != StatusErrored {
		t.Fatalf("Status: %s", v.Status)
	}
	if !errors.Is(v.Err(), ErrTimeout) {
		t.Errorf("Err: %v", v.Err())
	}
}

func TestProbe_connectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	v := Probe(context.Background(), nil, url, testPolicy)
	if v.Status != StatusErrored {
		t.Fatalf("Status: %s", v.Status)
	}
	if !errors.Is(v.Err(), ErrNetwork) {
		t.Errorf("Err: %v", v.Err())
	}
}

func TestProbe_finiteBody(t *testing.T) {
	body := bytes.Repeat([]byte{0x47}, 288*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	// Real Strict profile: a fast body far below Grace*MinRate bytes.
	start := time.Now()
	v := Probe(context.Background(), nil, srv.URL, Strict)
	if v.Status != StatusValid {
		t.Fatalf("Status %s (%v)", v.Status, v.Reason)
	}
	if v.Bytes != int64(len(body)) {
		t.Errorf("Bytes = %d, want %d", v.Bytes, len(body))
	}
	if wall := time.Since(start); wall >= Strict.Grace {
		t.Errorf("finite body held for %v, want verdict at EOF", wall)
	}
}

func TestProbe_emptyBodyJudgedAtGrace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := Policy{Name: "test", Budget: time.Second, Grace: 200 * time.Millisecond, MinRate: 30 * 1024}
	v := Probe(context.Background(), nil, srv.URL, p)
	if v.Status != StatusInvalid || !errors.Is(v.Err(), ErrTooSlow) {
		t.Errorf("Status %s (%v)", v.Status, v.Reason)
	}
	if v.Elapsed < p.Grace {
		t.Errorf("empty body judged after %v, before grace %v", v.Elapsed, p.Grace)
	}
}

func TestFetch(t *testing.T) {
	playlist := "#EXTM3U\n#EXTINF:-1 group-title=\"News\",CNN\nhttp://cdn.example/cnn.ts\n"
	done := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(playlist))
	}))
	defer done.Close()

	body, v := Fetch(context.Background(), nil, done.URL, testPolicy)
	if !v.Valid() {
		t.Fatalf("Status %s (%v)", v.Status, v.Reason)
	}
	if string(body) != playlist {
		t.Errorf("body = %q", body)
	}

	// A stream that never ends is not a complete document.
	open := httptest.NewServer(streamHandler(5*1024, 50*time.Millisecond))
	defer open.Close()
	_, v = Fetch(context.Background(), nil, open.URL, testPolicy)
	if !errors.Is(v.Err(), ErrTimeout) {
		t.Errorf("endless body: %s (%v)", v.Status, v.Reason)
	}
}

func TestProbe_parentCancel(t *testing.T) {
	srv := httptest.NewServer(streamHandler(5*1024, 50*time.Millisecond))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := Probe(ctx, nil, srv.URL, testPolicy)
	if v.Valid() {
		t.Fatal("probe with canceled context reported valid")
	}
}

func TestProbe_sendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	Probe(context.Background(), nil, srv.URL, testPolicy)
	if ua != "Mozilla/5.0" {
		t.Errorf("User-Agent: %q", ua)
	}
}

func TestPolicyByName(t *testing.T) {
	for name, want := range map[string]Policy{"": Quick, "quick": Quick, "SOAK": Soak, " strict ": Strict} {
		got, err := PolicyByName(name)
		if err != nil {
			t.Errorf("%q: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("%q: got %v want %v", name, got, want)
		}
	}
	if _, err := PolicyByName("turbo"); err == nil {
		t.Error("unknown policy: expected error")
	}
}

func TestPolicy_profiles(t *testing.T) {
	if Quick.Budget != 15*time.Second || Quick.Grace != 3*time.Second || Quick.MinRate != 30*1024 {
		t.Errorf("Quick: %v", Quick)
	}
	if Soak.Budget != 80*time.Second || Soak.Grace != 5*time.Second || Soak.MinRate != 40*1024 {
		t.Errorf("Soak: %v", Soak)
	}
	if Strict.Budget != 20*time.Second || Strict.MinRate != 100*1024 {
		t.Errorf("Strict: %v", Strict)
	}
	if got := (Policy{}).withDefaults().ChunkSize; got != 1024 {
		t.Errorf("default chunk size: %d", got)
	}
}
