package safeurl

import "testing"

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		url   string
		allow bool
	}{
		{"http://example.com/", true},
		{"https://example.com/path", true},
		{"HTTP://x", true},
		{"HTTPS://x", true},
		{"http://portal.example:8080/c", true},
		{"file:///etc/passwd", false},
		{"ftp://example.com", false},
		{"", false},
		{"not-a-url", false},
		{"javascript:alert(1)", false},
		{"http://", false},
		{"rtmp://cdn.example/live", false},
	}
	for _, tt := range tests {
		got := IsHTTPOrHTTPS(tt.url)
		if got != tt.allow {
			t.Errorf("IsHTTPOrHTTPS(%q) = %v, want %v", tt.url, got, tt.allow)
		}
	}
}

func TestParse(t *testing.T) {
	u, err := Parse(" http://portal.example:8080/c ")
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "portal.example:8080" || u.Path != "/c" {
		t.Errorf("parsed: %+v", u)
	}
}
