// Package platformtest provides a scripted in-memory platform driver for
// package tests. It is not registered with platform.Open; tests hand the
// Dialer to the code under test directly.
package platformtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"herald/internal/platform"
)

// Dialer is a fake platform.Dialer. The zero value logs nobody in; set
// the fields before use.
type Dialer struct {
	mu sync.Mutex

	// Queue is popped first: each Dial returns the next client in order.
	// When exhausted, Clients (keyed by the serialized session passed to
	// Dial) is consulted, then a blank client is returned.
	Queue   []*Client
	Clients map[string]*Client

	// Fail maps the serialized session passed to Dial -> error. A fresh
	// login presents the empty session "".
	Fail map[string]error

	// NeedPhone/NeedCode/NeedPassword make Dial run the corresponding
	// prompt; an empty answer rejects the login like a real protocol
	// would.
	NeedPhone    bool
	NeedCode     bool
	NeedPassword bool

	// Token is the serialized session returned after a successful login.
	// Empty means "token-<session>".
	Token string

	// Dials records every session name passed to Dial, in order.
	Dials []string
}

var errLoginRejected = errors.New("platformtest: login rejected")

func (d *Dialer) Dial(ctx context.Context, session string, prompts platform.LoginPrompts) (platform.Client, string, error) {
	d.mu.Lock()
	d.Dials = append(d.Dials, session)
	fail := d.Fail[session]
	var cl *Client
	if len(d.Queue) > 0 {
		cl = d.Queue[0]
		d.Queue = d.Queue[1:]
	} else {
		cl = d.Clients[session]
	}
	d.mu.Unlock()

	if fail != nil {
		if prompts.OnError != nil {
			prompts.OnError(fail)
		}
		return nil, "", fail
	}

	steps := []struct {
		need bool
		ask  func(context.Context) (string, error)
		name string
	}{
		{d.NeedPhone, prompts.Phone, "phone"},
		{d.NeedCode, prompts.Code, "code"},
		{d.NeedPassword, prompts.Password, "password"},
	}
	for _, st := range steps {
		if !st.need {
			continue
		}
		if st.ask == nil {
			return nil, "", fmt.Errorf("%w: no %s prompt", errLoginRejected, st.name)
		}
		ans, err := st.ask(ctx)
		if err != nil {
			return nil, "", err
		}
		if ans == "" {
			err := fmt.Errorf("%w: empty %s", errLoginRejected, st.name)
			if prompts.OnError != nil {
				prompts.OnError(err)
			}
			return nil, "", err
		}
	}

	if cl == nil {
		cl = &Client{}
	}
	token := d.Token
	if token == "" {
		token = "token-" + session
	}
	return cl, token, nil
}

// Send records one delivery attempt observed by a fake client.
type Send struct {
	Dest string
	Kind string // "text", "voice_note", "video_note"
	Text string
	Path string
	// PathExisted reports whether the staged file was present on disk at
	// send time (used to verify staging/cleanup ordering).
	PathExisted bool
}

// Client is a fake platform.Client.
type Client struct {
	mu sync.Mutex

	Profile  platform.Profile
	Entities map[string]platform.Entity

	// SendErr maps "<dest>/<kind>" (or just dest, for all kinds) to an
	// error returned by the corresponding send.
	SendErr map[string]error

	Sends        []Send
	Disconnected bool
}

func (c *Client) Me(ctx context.Context) (platform.Profile, error) {
	return c.Profile, nil
}

func (c *Client) Resolve(ctx context.Context, ref string) (platform.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.Entities[ref]
	if !ok {
		return platform.Entity{}, fmt.Errorf("platformtest: cannot resolve %q", ref)
	}
	return e, nil
}

func (c *Client) SendText(ctx context.Context, destID string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sends = append(c.Sends, Send{Dest: destID, Kind: "text", Text: text})
	return c.sendErrLocked(destID, "text")
}

func (c *Client) SendFile(ctx context.Context, destID string, path string, kind platform.FileKind) error {
	_, statErr := os.Stat(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sends = append(c.Sends, Send{Dest: destID, Kind: string(kind), Path: path, PathExisted: statErr == nil})
	return c.sendErrLocked(destID, string(kind))
}

func (c *Client) sendErrLocked(dest, kind string) error {
	if err, ok := c.SendErr[dest+"/"+kind]; ok {
		return err
	}
	return c.SendErr[dest]
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Disconnected = true
	return nil
}

// SentTo returns the recorded sends for one destination, in order.
func (c *Client) SentTo(dest string) []Send {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Send
	for _, s := range c.Sends {
		if s.Dest == dest {
			out = append(out, s)
		}
	}
	return out
}
