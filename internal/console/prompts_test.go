package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"herald/internal/accounts"
	"herald/internal/dispatch"
	"herald/pkg/logx"
)

func TestAskAnswerRoundTrip(t *testing.T) {
	t.Parallel()
	var notified []string
	var mu sync.Mutex
	p := NewPrompts(func(text string) {
		mu.Lock()
		notified = append(notified, text)
		mu.Unlock()
	}, logx.Nop())

	type result struct {
		text string
		ok   bool
	}
	done := make(chan result, 1)
	go func() {
		text, ok := p.Ask(context.Background(), "Enter the code")
		done <- result{text, ok}
	}()

	waitPending(t, p, 1)
	mu.Lock()
	if len(notified) != 1 {
		t.Fatalf("notifications = %v", notified)
	}
	mu.Unlock()

	if !p.Answer("12345") {
		t.Fatal("Answer found no pending challenge")
	}
	got := <-done
	if !got.ok || got.text != "12345" {
		t.Fatalf("Ask = %q, %v", got.text, got.ok)
	}
}

func TestCancelReleasesWaiter(t *testing.T) {
	t.Parallel()
	p := NewPrompts(nil, logx.Nop())

	done := make(chan bool, 1)
	go func() {
		_, ok := p.Ask(context.Background(), "phone?")
		done <- ok
	}()
	waitPending(t, p, 1)

	if !p.Cancel() {
		t.Fatal("Cancel found no pending challenge")
	}
	if ok := <-done; ok {
		t.Fatal("cancelled challenge reported an answer")
	}
	if p.Pending() != 0 {
		t.Fatalf("pending = %d", p.Pending())
	}
}

func TestAskContextExpiry(t *testing.T) {
	t.Parallel()
	p := NewPrompts(nil, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := p.Ask(ctx, "code?"); ok {
		t.Fatal("expired challenge reported an answer")
	}
	if p.Pending() != 0 {
		t.Fatalf("expired challenge left in queue: pending = %d", p.Pending())
	}
	if p.Answer("late") {
		t.Fatal("Answer resolved a challenge that already expired")
	}
}

func TestAnswersResolveOldestFirst(t *testing.T) {
	t.Parallel()
	p := NewPrompts(nil, logx.Nop())

	first := make(chan string, 1)
	second := make(chan string, 1)
	go func() {
		text, _ := p.Ask(context.Background(), "first")
		first <- text
	}()
	waitPending(t, p, 1)
	go func() {
		text, _ := p.Ask(context.Background(), "second")
		second <- text
	}()
	waitPending(t, p, 2)

	p.Answer("a")
	p.Answer("b")
	if got := <-first; got != "a" {
		t.Fatalf("first = %q", got)
	}
	if got := <-second; got != "b" {
		t.Fatalf("second = %q", got)
	}
}

func waitPending(t *testing.T, p *Prompts, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("pending never reached %d", n)
		}
		time.Sleep(time.Millisecond)
	}
}

type fakeOps struct {
	active []string
}

func (f *fakeOps) RegisterAccount(ctx context.Context) (accounts.Account, error) {
	return accounts.Account{}, errors.New("unused")
}
func (f *fakeOps) ListAccounts() []accounts.Account { return nil }
func (f *fakeOps) ActiveAccountIDs() []string       { return f.active }
func (f *fakeOps) AssignDestination(ctx context.Context, accountID, ref string) (accounts.AssignOutcome, error) {
	return accounts.Cancelled, nil
}
func (f *fakeOps) Broadcast(ctx context.Context, req dispatch.Request) dispatch.Report {
	return dispatch.Report{}
}

func TestExpandAccountsArg(t *testing.T) {
	t.Parallel()
	c := &Console{ops: &fakeOps{active: []string{"account_1", "account_2"}}}

	if got := c.expandAccountsArg("all"); len(got) != 2 || got[0] != "account_1" {
		t.Fatalf("all = %v", got)
	}
	if got := c.expandAccountsArg("a1, a2 ,,a3"); len(got) != 3 || got[1] != "a2" {
		t.Fatalf("list = %v", got)
	}
	if got := c.expandAccountsArg(" , "); got != nil {
		t.Fatalf("blank = %v", got)
	}
}

func TestSummarizeReport(t *testing.T) {
	t.Parallel()
	rep := dispatch.Report{
		Sends: []dispatch.SendResult{
			{Account: "a1", Destination: "dev", Kind: "text"},
			{Account: "a1", Destination: "news", Kind: "voice_note", Err: errors.New("FLOOD_WAIT")},
		},
		SkippedAccounts: []string{"a2"},
	}
	got := summarizeReport(rep)
	for _, want := range []string{"1 delivered", "1 failed", "a2", "FLOOD_WAIT"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary %q missing %q", got, want)
		}
	}
}
