package console

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"herald/pkg/logx"
)

type answer struct {
	text string
	ok   bool
}

type pendingPrompt struct {
	token  string
	prompt string
	ch     chan answer
}

// Prompts holds login challenges waiting for an operator answer. Each
// challenge gets a correlation token so log lines and operator messages
// refer to the same round-trip. Answers resolve the oldest pending
// challenge; callers waiting in Ask are released exactly once.
type Prompts struct {
	notify func(text string)
	log    logx.Logger

	mu    sync.Mutex
	queue []*pendingPrompt
}

func NewPrompts(notify func(text string), log logx.Logger) *Prompts {
	return &Prompts{notify: notify, log: log}
}

// Ask blocks until an operator answers, the challenge is cancelled, or ctx
// expires. ok is false when no usable answer arrived.
func (p *Prompts) Ask(ctx context.Context, prompt string) (string, bool) {
	pd := &pendingPrompt{
		token:  uuid.NewString(),
		prompt: prompt,
		ch:     make(chan answer, 1),
	}
	p.mu.Lock()
	p.queue = append(p.queue, pd)
	p.mu.Unlock()

	p.log.Info("login challenge posted",
		logx.String("challenge", pd.token),
		logx.String("prompt", prompt))
	if p.notify != nil {
		p.notify(fmt.Sprintf("Login challenge: %s\nReply with the answer, or /cancel to abort.", prompt))
	}

	select {
	case a := <-pd.ch:
		p.log.Info("login challenge resolved",
			logx.String("challenge", pd.token), logx.Bool("answered", a.ok))
		return a.text, a.ok
	case <-ctx.Done():
		p.drop(pd)
		p.log.Warn("login challenge expired", logx.String("challenge", pd.token))
		return "", false
	}
}

// Answer resolves the oldest pending challenge with the given text.
// Returns false when nothing was waiting.
func (p *Prompts) Answer(text string) bool {
	return p.resolve(answer{text: text, ok: true})
}

// Cancel aborts the oldest pending challenge; the waiting login sees it as
// "no answer".
func (p *Prompts) Cancel() bool {
	return p.resolve(answer{})
}

// Pending reports how many challenges are waiting.
func (p *Prompts) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Prompts) resolve(a answer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return false
	}
	pd := p.queue[0]
	p.queue = p.queue[1:]
	pd.ch <- a
	return true
}

func (p *Prompts) drop(pd *pendingPrompt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.queue {
		if q == pd {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}
