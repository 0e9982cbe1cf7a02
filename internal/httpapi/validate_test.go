package httpapi

import "testing"

func TestIsValidHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://example.com", true},
		{"http://EXAMPLE.com", true},
		{"ftp://x", false},
		{"", false},
		{"https://", false},
		{"example.com", false},
	}
	for _, c := range cases {
		if got := isValidHTTPURL(c.in); got != c.want {
			t.Fatalf("isValidHTTPURL(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeHTTPURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://EXAMPLE.com/", "https://example.com"},
		{"http://example.com:80", "http://example.com"},
		{"https://example.com:443/", "https://example.com"},
		{"https://example.com:8443/x", "https://example.com:8443/x"},
		{"https://example.com/p/", "https://example.com/p/"},
	}
	for _, c := range cases {
		if got := normalizeHTTPURL(c.in); got != c.want {
			t.Fatalf("normalizeHTTPURL(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseID(t *testing.T) {
	if _, err := parseID("not-a-uuid"); err == nil {
		t.Fatalf("expected error")
	}
	id, err := parseID("3F2504E0-4F89-11D3-9A0C-0305E82C3301")
	if err != nil || id != "3f2504e0-4f89-11d3-9a0c-0305e82c3301" {
		t.Fatalf("got %q err=%v", id, err)
	}
}

func TestCreatePayload_NameTooLong(t *testing.T) {
	long := make([]byte, maxTextLen+1)
	for i := range long {
		long[i] = 'a'
	}
	name := string(long)
	lo, hi := int64(0), int64(10)
	p := createPayload{Name: &name, URI: "https://a.test", MonitorInterval: 1,
		Thresholds: []thresholdPayload{{LowerLimit: &lo, UpperLimit: &hi}}}
	if _, err := p.service(); err == nil {
		t.Fatalf("expected name length error")
	}
}
