package main

import "testing"

func TestHTTPBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ws://localhost:3000/ws", "http://localhost:3000"},
		{"wss://chat.example.com/ws", "https://chat.example.com"},
		{"ws://10.0.0.5:8080/ws", "http://10.0.0.5:8080"},
	}
	for _, c := range cases {
		if got := httpBase(c.in); got != c.want {
			t.Errorf("httpBase(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
