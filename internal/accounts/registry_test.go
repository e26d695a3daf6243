package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"herald/internal/platform"
	"herald/internal/platform/platformtest"
	"herald/pkg/logx"
)

type stubConns struct {
	client platform.Client
	err    error
	calls  int
}

func (s *stubConns) Obtain(ctx context.Context, sessionName string) (platform.Client, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

func newTestRegistry(t *testing.T, conns Connector) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	return NewRegistry(path, conns, logx.Nop()), path
}

func groupClient() *platformtest.Client {
	return &platformtest.Client{
		Profile: platform.Profile{Username: "alice"},
		Entities: map[string]platform.Entity{
			"@devs":    {ID: "-100200", Title: "Developers", Kind: platform.KindGroup},
			"@news":    {ID: "-100300", Title: "News", Kind: platform.KindChannel},
			"@bob":     {ID: "555", Title: "Bob", Kind: platform.KindUser},
			"@unnamed": {ID: "-100400", Kind: platform.KindGroup},
		},
	}
}

func TestRegisterPersistsAccount(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, path := newTestRegistry(t, conns)

	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.DisplayName != "alice" || !acc.Active || len(acc.Destinations) != 0 {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if acc.ID == "" || acc.SessionName != acc.ID {
		t.Fatalf("session name not derived from id: %+v", acc)
	}

	// The file is the source of truth across restarts.
	reloaded := NewRegistry(path, conns, logx.Nop())
	got := reloaded.List()
	if len(got) != 1 || got[0].ID != acc.ID {
		t.Fatalf("reloaded registry = %+v, want the registered account", got)
	}

	// Pretty-printed {accounts: [...]} structure.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read registry file: %v", err)
	}
	var f map[string]json.RawMessage
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("registry file is not valid JSON: %v", err)
	}
	if _, ok := f["accounts"]; !ok {
		t.Fatalf("registry file missing accounts key: %s", b)
	}
}

func TestRegisterLoginFailureLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()
	conns := &stubConns{err: errors.New("authorization failed")}
	r, path := newTestRegistry(t, conns)

	if _, err := r.Register(context.Background()); err == nil {
		t.Fatal("Register must fail when login fails")
	}
	if got := r.List(); len(got) != 0 {
		t.Fatalf("registry must stay empty, got %+v", got)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("no registry file must be written for a failed registration")
	}
}

func TestRegisterUniqueSessionNames(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		acc, err := r.Register(context.Background())
		if err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
		if seen[acc.SessionName] {
			t.Fatalf("duplicate session name %q", acc.SessionName)
		}
		seen[acc.SessionName] = true
	}
}

func TestAssignIdempotent(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)
	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		out, err := r.Assign(context.Background(), acc.ID, "@devs")
		if err != nil || out != Assigned {
			t.Fatalf("Assign #%d = %v, %v; want Assigned", i, out, err)
		}
	}

	got, _ := r.Get(acc.ID)
	if len(got.Destinations) != 1 {
		t.Fatalf("destinations = %+v, want exactly one", got.Destinations)
	}
	if got.Destinations[0].ID != "-100200" || got.Destinations[0].Title != "Developers" {
		t.Fatalf("unexpected destination: %+v", got.Destinations[0])
	}
}

func TestAssignKeepsOrder(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)
	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, ref := range []string{"@devs", "@news"} {
		if out, err := r.Assign(context.Background(), acc.ID, ref); err != nil || out != Assigned {
			t.Fatalf("Assign(%s) = %v, %v", ref, out, err)
		}
	}
	got, _ := r.Get(acc.ID)
	if len(got.Destinations) != 2 || got.Destinations[0].ID != "-100200" || got.Destinations[1].ID != "-100300" {
		t.Fatalf("destinations out of order: %+v", got.Destinations)
	}
}

func TestAssignRejectsNonGroup(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)
	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := r.Assign(context.Background(), acc.ID, "@bob")
	if out != Rejected || err == nil {
		t.Fatalf("Assign(user) = %v, %v; want Rejected with error", out, err)
	}
	got, _ := r.Get(acc.ID)
	if len(got.Destinations) != 0 {
		t.Fatalf("destination set must stay unchanged, got %+v", got.Destinations)
	}
}

func TestAssignRejectsUnresolvable(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)
	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := r.Assign(context.Background(), acc.ID, "@nosuch")
	if out != Rejected || err == nil {
		t.Fatalf("Assign(unresolvable) = %v, %v; want Rejected with error", out, err)
	}
}

func TestAssignUnknownAccount(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)

	out, err := r.Assign(context.Background(), "account_404", "@devs")
	if out != Rejected || !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("Assign = %v, %v; want Rejected, ErrUnknownAccount", out, err)
	}
}

func TestAssignEmptyRefIsCancelled(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)
	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	before := conns.calls

	out, err := r.Assign(context.Background(), acc.ID, "   ")
	if out != Cancelled || err != nil {
		t.Fatalf("Assign(empty) = %v, %v; want Cancelled, nil", out, err)
	}
	if conns.calls != before {
		t.Fatal("cancelled assignment must not open a connection")
	}
}

func TestAssignUntitledFallback(t *testing.T) {
	t.Parallel()
	conns := &stubConns{client: groupClient()}
	r, _ := newTestRegistry(t, conns)
	acc, err := r.Register(context.Background())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if out, err := r.Assign(context.Background(), acc.ID, "@unnamed"); err != nil || out != Assigned {
		t.Fatalf("Assign = %v, %v", out, err)
	}
	got, _ := r.Get(acc.ID)
	if got.Destinations[0].Title != "Untitled" {
		t.Fatalf("title = %q, want Untitled fallback", got.Destinations[0].Title)
	}
}
