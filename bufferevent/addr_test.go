package bufferevent

import "testing"

func TestParseHostPort(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{"example.com:8080", "example.com", 8080},
		{"127.0.0.1:53", "127.0.0.1", 53},
		{"[::1]:443", "::1", 443},
		{"::1", "::1", 0},
		{"example.com", "example.com", 0},
	}
	for _, c := range cases {
		host, port, err := ParseHostPort(c.in)
		if err != nil {
			t.Fatalf("ParseHostPort(%q): %v", c.in, err)
		}
		if host != c.wantHost || port != c.wantPort {
			t.Fatalf("ParseHostPort(%q) = (%q, %d), want (%q, %d)", c.in, host, port, c.wantHost, c.wantPort)
		}
	}
}
