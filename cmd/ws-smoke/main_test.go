package main

import "testing"

func TestDeriveWSURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://127.0.0.1:8080":       "ws://127.0.0.1:8080/ws",
		"http://127.0.0.1:8080/":      "ws://127.0.0.1:8080/ws",
		"https://chat.example.com":    "wss://chat.example.com/ws",
		"https://chat.example.com/ui": "wss://chat.example.com/ws",
	}
	for in, want := range cases {
		if got := deriveWSURL(in); got != want {
			t.Fatalf("deriveWSURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestValidateWSURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw string
		ok  bool
	}{
		{"ws://127.0.0.1:8080/ws", true},
		{"wss://chat.example.com/ws", true},
		{"http://127.0.0.1:8080/ws", false},
		{"ws:///ws", false},
		{"ws://127.0.0.1:8080", false},
	}
	for _, tc := range cases {
		err := validateWSURL(tc.raw)
		if (err == nil) != tc.ok {
			t.Fatalf("validateWSURL(%q) err=%v want ok=%v", tc.raw, err, tc.ok)
		}
	}
}

func TestValidateOrigin(t *testing.T) {
	t.Parallel()

	for raw, ok := range map[string]bool{
		"":                  true,
		"http://localhost":  true,
		"https://a.example": true,
		"ws://localhost":    false,
		"http://":           false,
	} {
		if err := validateOrigin(raw); (err == nil) != ok {
			t.Fatalf("validateOrigin(%q) err=%v want ok=%v", raw, err, ok)
		}
	}
}
