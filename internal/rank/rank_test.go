package rank

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGroups(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "persian before sports before rest",
			in:   []string{"News", "beIN Sports", "IR: Iran TV", "Kids"},
			want: []string{"IR: Iran TV", "beIN Sports", "News", "Kids"},
		},
		{
			name: "iran before ir",
			in:   []string{"IR Movies", "Iran Music", "Persian Series"},
			want: []string{"Iran Music", "Persian Series", "IR Movies"},
		},
		{
			name: "iraq and ireland are not ir",
			in:   []string{"Iraq", "Ireland", "IR Movies"},
			want: []string{"IR Movies", "Iraq", "Ireland"},
		},
		{
			name: "sport tier order",
			in:   []string{"Paramount+", "DAZN", "Canal+ Sport", "TR Spor", "beIN 4K", "Sky Sports"},
			want: []string{"beIN 4K", "Canal+ Sport", "Sky Sports", "TR Spor", "DAZN", "Paramount+"},
		},
		{
			name: "duplicates collapse",
			in:   []string{"General", "Iran", "General", "Iran"},
			want: []string{"Iran", "General"},
		},
		{
			name: "no matches keeps input order",
			in:   []string{"Kids", "News", "Music"},
			want: []string{"Kids", "News", "Music"},
		},
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Groups(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Groups(%q) (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestGroups_permutation(t *testing.T) {
	in := []string{"a", "Iran", "b", "Sport", "a", "Persian", "c"}
	got := Groups(in)
	if len(got) != 6 {
		t.Fatalf("len=%d want 6 distinct", len(got))
	}
	seen := map[string]bool{}
	for _, g := range got {
		if seen[g] {
			t.Errorf("%q placed twice", g)
		}
		seen[g] = true
	}
	for _, g := range in {
		if !seen[g] {
			t.Errorf("%q missing", g)
		}
	}
}

func TestBy_customRules(t *testing.T) {
	got := By([]string{"x news", "y kids", "z news"}, []Rule{{Match: "kids"}})
	if diff := cmp.Diff([]string{"y kids", "x news", "z news"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
