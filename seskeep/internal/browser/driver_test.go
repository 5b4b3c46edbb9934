package browser

import "testing"

func TestOriginOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://example.com/login?next=/", "https://example.com", true},
		{"https://auth.example.com:8443/cb", "https://auth.example.com:8443", true},
		{"http://localhost:3000/", "http://localhost:3000", true},
		{"about:blank", "", false},
		{"data:text/html,<p>x</p>", "", false},
		{"chrome-error://chromewebdata/", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := originOf(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("originOf(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDriverOriginTracking(t *testing.T) {
	d := &Driver{known: map[string]bool{}}

	d.noteOrigin("https://example.com/login")
	d.noteOrigin("https://example.com/account") // same origin, deduped
	d.noteOrigin("https://auth.example.com/")
	d.noteOrigin("about:blank") // ignored

	got := d.Origins()
	want := []string{"https://example.com", "https://auth.example.com"}
	if len(got) != len(want) {
		t.Fatalf("origins: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("origins[%d]: got %q, want %q", i, got[i], want[i])
		}
	}

	d.resetOrigins()
	if len(d.Origins()) != 0 {
		t.Fatal("origins survive reset")
	}
}
