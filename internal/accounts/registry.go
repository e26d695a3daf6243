package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"herald/internal/platform"
	"herald/pkg/logx"
)

// ErrUnknownAccount is returned when an operation references an id that
// is not in the registry.
var ErrUnknownAccount = errors.New("unknown account")

// Connector obtains a live, authenticated connection for a session name.
// Satisfied by *session.Manager.
type Connector interface {
	Obtain(ctx context.Context, sessionName string) (platform.Client, error)
}

// Registry is the mutex-guarded account store backed by a single JSON
// file. Mutations persist before they are reported successful.
type Registry struct {
	path  string
	conns Connector
	log   logx.Logger

	mu       sync.Mutex
	accounts []Account

	now func() time.Time
}

type registryFile struct {
	Accounts []Account `json:"accounts"`
}

// NewRegistry loads the registry from path. A missing or unreadable file
// is tolerated and starts an empty registry.
func NewRegistry(path string, conns Connector, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{path: path, conns: conns, log: log, now: time.Now}
	r.load()
	return r
}

func (r *Registry) load() {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("registry read failed; starting empty", logx.String("path", r.path), logx.Err(err))
		}
		return
	}
	var f registryFile
	if err := json.Unmarshal(b, &f); err != nil {
		r.log.Warn("registry parse failed; starting empty", logx.String("path", r.path), logx.Err(err))
		return
	}
	r.accounts = f.Accounts
	r.log.Info("registry loaded", logx.Int("accounts", len(r.accounts)))
}

// saveLocked rewrites the registry file in full, pretty-printed, via
// tmp + rename.
func (r *Registry) saveLocked() error {
	b, err := json.MarshalIndent(registryFile{Accounts: r.accounts}, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Register logs a brand-new identity in through the interactive challenge
// flow, reads its platform profile and appends it to the registry with an
// empty destination set.
//
// Login failure leaves the registry untouched. A registry write failure
// rolls the new entry back: registration is only successful once durable.
func (r *Registry) Register(ctx context.Context) (Account, error) {
	name := r.freshSessionName()

	client, err := r.conns.Obtain(ctx, name)
	if err != nil {
		return Account{}, err
	}

	profile, err := client.Me(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("read profile: %w", err)
	}

	acc := Account{
		ID:          name,
		SessionName: name,
		DisplayName: profile.Username,
		Active:      true,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, acc)
	if err := r.saveLocked(); err != nil {
		r.accounts = r.accounts[:len(r.accounts)-1]
		r.log.Error("registry save failed; registration rolled back", logx.Err(err))
		return Account{}, fmt.Errorf("persist registry: %w", err)
	}

	r.log.Info("account registered",
		logx.String("account", acc.ID),
		logx.String("display_name", acc.DisplayName))
	return acc.clone(), nil
}

// List returns the accounts in registration order.
func (r *Registry) List() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a.clone())
	}
	return out
}

// ActiveIDs returns the ids of active accounts in registration order.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.accounts {
		if a.Active {
			out = append(out, a.ID)
		}
	}
	return out
}

// Get returns the account with the given id.
func (r *Registry) Get(id string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			return a.clone(), true
		}
	}
	return Account{}, false
}

// Assign resolves ref through a live (or newly opened) connection for the
// account and appends it to the destination set if it is group-like.
// Duplicate destination ids are idempotent. An empty ref means the
// operator cancelled; nothing is mutated.
//
// A registry write failure after the append is logged but not rolled
// back: the next successful save captures the pending change.
func (r *Registry) Assign(ctx context.Context, accountID, ref string) (AssignOutcome, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Cancelled, nil
	}

	r.mu.Lock()
	var sessionName string
	found := false
	for _, a := range r.accounts {
		if a.ID == accountID {
			sessionName = a.SessionName
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return Rejected, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}

	client, err := r.conns.Obtain(ctx, sessionName)
	if err != nil {
		return Rejected, err
	}

	entity, err := client.Resolve(ctx, ref)
	if err != nil {
		r.log.Warn("destination did not resolve",
			logx.String("account", accountID), logx.String("ref", ref), logx.Err(err))
		return Rejected, fmt.Errorf("resolve %q: %w", ref, err)
	}
	if !entity.GroupLike() {
		r.log.Warn("destination is not a group",
			logx.String("account", accountID),
			logx.String("ref", ref),
			logx.String("kind", string(entity.Kind)))
		return Rejected, fmt.Errorf("%q resolves to a %s, not a group", ref, entity.Kind)
	}
	title := entity.Title
	if title == "" {
		title = "Untitled"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.accounts {
		if r.accounts[i].ID != accountID {
			continue
		}
		for _, d := range r.accounts[i].Destinations {
			if d.ID == entity.ID {
				return Assigned, nil
			}
		}
		r.accounts[i].Destinations = append(r.accounts[i].Destinations, Destination{ID: entity.ID, Title: title})
		if err := r.saveLocked(); err != nil {
			// Keep the in-memory change; a later save still captures it.
			r.log.Error("registry save failed after assign", logx.Err(err))
		}
		r.log.Info("destination assigned",
			logx.String("account", accountID),
			logx.String("destination", entity.ID),
			logx.String("title", title))
		return Assigned, nil
	}
	// Account disappeared between the two critical sections; the registry
	// never deletes in-core, so this is effectively unreachable.
	return Rejected, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
}

func (r *Registry) freshSessionName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UnixMilli()
	for {
		name := fmt.Sprintf("account_%d", ts)
		if !r.hasSessionLocked(name) {
			return name
		}
		ts++
	}
}

func (r *Registry) hasSessionLocked(name string) bool {
	for _, a := range r.accounts {
		if a.SessionName == name {
			return true
		}
	}
	return false
}
