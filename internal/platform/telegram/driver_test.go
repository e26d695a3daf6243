package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/gotd/td/session"
)

func TestNormalizeRef(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"@DevChat", "@devchat"},
		{"devchat", "@devchat"},
		{"https://t.me/DevChat", "@devchat"},
		{"t.me/devchat", "@devchat"},
		{"  @News  ", "@news"},
		// Numeric chat ids stay numeric; they must never grow an @ prefix.
		{"-1001234567890", "-1001234567890"},
		{" -200 ", "-200"},
		{"987654321", "987654321"},
	}
	for _, c := range cases {
		if got := normalizeRef(c.in); got != c.want {
			t.Fatalf("normalizeRef(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsNumericRef(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want bool
	}{
		{"-1001234567890", true},
		{"-200", true},
		{"987654321", true},
		{"@devchat", false},
		{"devchat", false},
		{"-", false},
		{"", false},
		{"12a3", false},
		{"-12 3", false},
	}
	for _, c := range cases {
		if got := isNumericRef(c.in); got != c.want {
			t.Fatalf("isNumericRef(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestChannelIDFromRef(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in     string
		wantID int64
		wantOK bool
	}{
		{"-1001234567890", 1234567890, true},
		{"-100200", 200, true},
		{"-100", 0, false},
		{"-200", 0, false},
		{"12345", 0, false},
		{"@devchat", 0, false},
	}
	for _, c := range cases {
		id, ok := channelIDFromRef(c.in)
		if id != c.wantID || ok != c.wantOK {
			t.Fatalf("channelIDFromRef(%q) = %d, %v, want %d, %v", c.in, id, ok, c.wantID, c.wantOK)
		}
	}
}

func TestTokenStorageRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fresh := newTokenStorage("")
	if _, err := fresh.LoadSession(ctx); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("empty storage load err = %v", err)
	}
	if fresh.token() != "" {
		t.Fatalf("empty storage token = %q", fresh.token())
	}

	if err := fresh.StoreSession(ctx, []byte("auth-key-material")); err != nil {
		t.Fatalf("store: %v", err)
	}
	tok := fresh.token()
	if tok == "" {
		t.Fatal("token empty after store")
	}

	resumed := newTokenStorage(tok)
	b, err := resumed.LoadSession(ctx)
	if err != nil {
		t.Fatalf("resumed load: %v", err)
	}
	if string(b) != "auth-key-material" {
		t.Fatalf("resumed session = %q", b)
	}
}

func TestTokenStorageRejectsGarbageToken(t *testing.T) {
	t.Parallel()
	s := newTokenStorage("%%% not base64 %%%")
	if _, err := s.LoadSession(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("garbage token load err = %v", err)
	}
}
