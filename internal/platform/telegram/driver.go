package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"

	"herald/internal/platform"
	"herald/pkg/logx"
)

func init() {
	platform.Register("telegram", func(cfg platform.Settings, log logx.Logger) (platform.Dialer, error) {
		if cfg.APIID == 0 || cfg.APIHash == "" {
			return nil, errors.New("telegram: api_id and api_hash are required")
		}
		return &Driver{apiID: cfg.APIID, apiHash: cfg.APIHash, log: log}, nil
	})
}

type Driver struct {
	apiID   int
	apiHash string
	log     logx.Logger
}

// Dial connects, resumes the serialized session if one is given, and runs
// the interactive login flow otherwise. The returned client stays
// connected until Disconnect.
func (d *Driver) Dial(ctx context.Context, sess string, prompts platform.LoginPrompts) (platform.Client, string, error) {
	store := newTokenStorage(sess)
	tc := telegram.NewClient(d.apiID, d.apiHash, telegram.Options{
		SessionStorage: store,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- tc.Run(runCtx, func(ctx context.Context) error {
			flow := auth.NewFlow(authenticator{prompts: prompts}, auth.SendCodeOptions{})
			if err := tc.Auth().IfNecessary(ctx, flow); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		if err == nil {
			err = errors.New("telegram: connection closed during login")
		}
		if prompts.OnError != nil {
			prompts.OnError(err)
		}
		return nil, "", err
	case <-ctx.Done():
		cancel()
		<-done
		return nil, "", ctx.Err()
	}

	api := tc.API()
	c := &client{
		api:    api,
		sender: message.NewSender(api),
		peers:  peers.Options{}.Build(api),
		self:   tc.Self,
		cancel: cancel,
		done:   done,
		log:    d.log,
	}
	return c, store.token(), nil
}

// authenticator adapts the host prompts to gotd's login flow.
type authenticator struct {
	prompts platform.LoginPrompts
}

func (a authenticator) Phone(ctx context.Context) (string, error) {
	if a.prompts.Phone == nil {
		return "", errors.New("no phone prompt available")
	}
	return a.prompts.Phone(ctx)
}

func (a authenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	if a.prompts.Code == nil {
		return "", errors.New("no code prompt available")
	}
	return a.prompts.Code(ctx)
}

func (a authenticator) Password(ctx context.Context) (string, error) {
	if a.prompts.Password == nil {
		return "", errors.New("no password prompt available")
	}
	return a.prompts.Password(ctx)
}

func (a authenticator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (a authenticator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	// Only existing accounts may be registered here.
	return auth.UserInfo{}, errors.New("sign-up of new numbers is not supported")
}

// tokenStorage bridges gotd's session storage to the serialized token the
// host persists.
type tokenStorage struct {
	mu   sync.Mutex
	data []byte
}

func newTokenStorage(token string) *tokenStorage {
	s := &tokenStorage{}
	if token != "" {
		if b, err := base64.StdEncoding.DecodeString(token); err == nil {
			s.data = b
		}
	}
	return s
}

func (s *tokenStorage) LoadSession(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

func (s *tokenStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

func (s *tokenStorage) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.data)
}
