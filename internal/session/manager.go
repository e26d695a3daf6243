package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"herald/internal/platform"
	"herald/pkg/logx"
)

// ErrAuth marks login/challenge failures. Callers abort the operation and
// the operator has already been alerted.
var ErrAuth = errors.New("authorization failed")

// DefaultChallengeTimeout bounds one challenge round-trip. When it
// elapses the challenge resolves to "no answer", which the login protocol
// rejects.
const DefaultChallengeTimeout = 5 * time.Minute

// Challenge asks a human for one piece of login information. ok is false
// when no answer arrived within the bound.
type Challenge interface {
	Ask(ctx context.Context, prompt string) (answer string, ok bool)
}

// Alerter delivers a fire-and-forget notification to the operator. It must
// not block.
type Alerter interface {
	Alert(text string)
}

// Manager produces live, authenticated connection handles.
//
// Handles are cached per session name and reused without any network
// activity. The cache is mutex-guarded: register, assign and broadcast may
// be triggered concurrently by the host.
type Manager struct {
	dialer    platform.Dialer
	creds     *Credentials
	challenge Challenge
	alert     Alerter
	timeout   time.Duration
	log       logx.Logger

	mu    sync.Mutex
	cache map[string]platform.Client
}

func NewManager(dialer platform.Dialer, creds *Credentials, challenge Challenge, alert Alerter, timeout time.Duration, log logx.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultChallengeTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		dialer:    dialer,
		creds:     creds,
		challenge: challenge,
		alert:     alert,
		timeout:   timeout,
		log:       log,
		cache:     map[string]platform.Client{},
	}
}

// Obtain returns the cached handle for name, or logs in, persists the new
// credential and caches the handle.
func (m *Manager) Obtain(ctx context.Context, name string) (platform.Client, error) {
	m.mu.Lock()
	if c, ok := m.cache[name]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	c, err := m.connect(ctx, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// A concurrent Obtain may have won the race; prefer the cached handle
	// and drop ours.
	if prev, ok := m.cache[name]; ok {
		m.mu.Unlock()
		_ = c.Disconnect(ctx)
		return prev, nil
	}
	m.cache[name] = c
	m.mu.Unlock()
	return c, nil
}

// Cached returns the cached handle for name without any network activity.
func (m *Manager) Cached(name string) (platform.Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cache[name]
	return c, ok
}

// DialEphemeral logs in without touching the cache. The caller owns the
// handle and must disconnect it.
func (m *Manager) DialEphemeral(ctx context.Context, name string) (platform.Client, error) {
	return m.connect(ctx, name)
}

// CloseAll disconnects and drops every cached handle.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	cache := m.cache
	m.cache = map[string]platform.Client{}
	m.mu.Unlock()

	for name, c := range cache {
		if err := c.Disconnect(ctx); err != nil {
			m.log.Warn("disconnect failed", logx.String("session", name), logx.Err(err))
			continue
		}
		m.log.Info("client disconnected", logx.String("session", name))
	}
}

func (m *Manager) connect(ctx context.Context, name string) (platform.Client, error) {
	token, _ := m.creds.Load(name)

	client, newToken, err := m.dialer.Dial(ctx, token, m.prompts())
	if err != nil {
		m.log.Error("login failed", logx.String("session", name), logx.Err(err))
		return nil, fmt.Errorf("login %q: %w", name, errors.Join(ErrAuth, err))
	}

	// Credential write failure is not fatal: the session stays usable in
	// memory, it just won't survive a restart.
	if newToken != "" {
		if err := m.creds.Save(name, newToken); err != nil {
			m.log.Error("credential save failed", logx.String("session", name), logx.Err(err))
			m.alertf("Session for %s could not be saved; you will be asked to log in again after a restart.", name)
		}
	}

	m.log.Info("session established", logx.String("session", name))
	return client, nil
}

func (m *Manager) prompts() platform.LoginPrompts {
	return platform.LoginPrompts{
		Phone: func(ctx context.Context) (string, error) {
			ans, ok := m.ask(ctx, "Phone number (international format):")
			if !ok {
				return "", nil
			}
			// Digits only; an empty result is handed to the protocol,
			// which rejects it instead of re-prompting forever.
			return digitsOnly(ans), nil
		},
		Code: func(ctx context.Context) (string, error) {
			ans, _ := m.ask(ctx, "One-time login code:")
			return strings.TrimSpace(ans), nil
		},
		Password: func(ctx context.Context) (string, error) {
			ans, _ := m.ask(ctx, "Two-factor password:")
			return ans, nil
		},
		OnError: func(err error) {
			m.log.Error("login protocol error", logx.Err(err))
			m.alertf("Login error: %v", err)
		},
	}
}

// ask runs one challenge round-trip with the configured bound. A timeout
// resolves to "no answer".
func (m *Manager) ask(ctx context.Context, prompt string) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.challenge.Ask(cctx, prompt)
}

func (m *Manager) alertf(format string, args ...any) {
	if m.alert == nil {
		return
	}
	m.alert.Alert(fmt.Sprintf(format, args...))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
