package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"herald/internal/config"
	"herald/internal/dispatch"
	"herald/pkg/logx"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	reqs []dispatch.Request
	done chan struct{}
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, req dispatch.Request) dispatch.Report {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()
	select {
	case b.done <- struct{}{}:
	default:
	}
	return dispatch.Report{}
}

func (b *recordingBroadcaster) requests() []dispatch.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]dispatch.Request(nil), b.reqs...)
}

type staticAccounts []string

func (a staticAccounts) ActiveIDs() []string { return a }

func TestUnparseableEntryDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()
	b := &recordingBroadcaster{done: make(chan struct{}, 1)}
	s := New(b, staticAccounts{"a"}, logx.Nop())
	// Validation rejects specs like this before commit; the runner still
	// has to keep the remaining entries alive if one slips through.
	s.Apply([]config.ScheduleConfig{
		{Schedule: "definitely not cron", Message: "never"},
		{Schedule: "@every 10ms", Message: "m"},
	})
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-b.done:
	case <-time.After(3 * time.Second):
		t.Fatal("valid entry never fired")
	}
	for _, req := range b.requests() {
		if req.Message == "never" {
			t.Fatal("unparseable entry fired")
		}
	}
}

func TestScheduledBroadcastFires(t *testing.T) {
	t.Parallel()
	b := &recordingBroadcaster{done: make(chan struct{}, 1)}
	s := New(b, staticAccounts{"account_1"}, logx.Nop())
	s.Apply([]config.ScheduleConfig{
		{Schedule: "@every 10ms", Message: "hello", Accounts: []string{"a1", "a2"}},
	})
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-b.done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled broadcast never fired")
	}

	reqs := b.requests()
	if len(reqs) == 0 {
		t.Fatal("no requests recorded")
	}
	got := reqs[0]
	if got.Message != "hello" {
		t.Fatalf("message = %q", got.Message)
	}
	if len(got.AccountIDs) != 2 || got.AccountIDs[0] != "a1" || got.AccountIDs[1] != "a2" {
		t.Fatalf("accounts = %v", got.AccountIDs)
	}
}

func TestEmptyAccountsFallBackToActive(t *testing.T) {
	t.Parallel()
	b := &recordingBroadcaster{done: make(chan struct{}, 1)}
	s := New(b, staticAccounts{"account_7"}, logx.Nop())
	s.Apply([]config.ScheduleConfig{{Schedule: "@every 10ms", Message: "m"}})
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-b.done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled broadcast never fired")
	}
	reqs := b.requests()
	if len(reqs[0].AccountIDs) != 1 || reqs[0].AccountIDs[0] != "account_7" {
		t.Fatalf("accounts = %v", reqs[0].AccountIDs)
	}
}

func TestStopPreventsFurtherRuns(t *testing.T) {
	t.Parallel()
	b := &recordingBroadcaster{done: make(chan struct{}, 1)}
	s := New(b, staticAccounts{"a"}, logx.Nop())
	s.Apply([]config.ScheduleConfig{{Schedule: "@every 10ms", Message: "m"}})
	s.Start()

	select {
	case <-b.done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled broadcast never fired")
	}
	s.Stop(context.Background())

	before := len(b.requests())
	time.Sleep(50 * time.Millisecond)
	// A job already in flight at Stop may land one more request.
	if after := len(b.requests()); after > before+1 {
		t.Fatalf("requests kept arriving after Stop: %d -> %d", before, after)
	}
}

func TestApplyWhileStoppedDoesNotStart(t *testing.T) {
	t.Parallel()
	b := &recordingBroadcaster{done: make(chan struct{}, 1)}
	s := New(b, staticAccounts{"a"}, logx.Nop())
	s.Apply([]config.ScheduleConfig{{Schedule: "@every 10ms", Message: "m"}})
	time.Sleep(40 * time.Millisecond)
	if n := len(b.requests()); n != 0 {
		t.Fatalf("broadcasts fired without Start: %d", n)
	}
}
