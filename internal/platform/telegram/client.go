package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"herald/internal/platform"
	"herald/pkg/logx"
)

type client struct {
	api    *tg.Client
	sender *message.Sender
	peers  *peers.Manager
	self   func(ctx context.Context) (*tg.User, error)

	cancel context.CancelFunc
	done   <-chan error
	log    logx.Logger
}

func (c *client) Me(ctx context.Context) (platform.Profile, error) {
	u, err := c.self(ctx)
	if err != nil {
		return platform.Profile{}, err
	}
	return platform.Profile{Username: u.Username}, nil
}

// Resolve maps @username / t.me references and numeric chat ids to an
// entity. The normalized reference doubles as the destination id so later
// sends resolve the same way.
func (c *client) Resolve(ctx context.Context, ref string) (platform.Entity, error) {
	handle := normalizeRef(ref)
	p, err := c.resolvePeer(ctx, handle)
	if err != nil {
		return platform.Entity{}, err
	}

	kind := platform.KindUser
	switch p.(type) {
	case peers.Chat:
		kind = platform.KindGroup
	case peers.Channel:
		kind = platform.KindChannel
	}
	return platform.Entity{
		ID:    handle,
		Title: p.VisibleName(),
		Kind:  kind,
	}, nil
}

func (c *client) SendText(ctx context.Context, destID string, text string) error {
	b, err := c.to(ctx, destID)
	if err != nil {
		return err
	}
	_, err = b.Text(ctx, text)
	return err
}

func (c *client) SendFile(ctx context.Context, destID string, path string, kind platform.FileKind) error {
	up := uploader.NewUploader(c.api)
	f, err := up.FromPath(ctx, path)
	if err != nil {
		return err
	}

	doc := message.UploadedDocument(f).Filename(filepath.Base(path))
	switch kind {
	case platform.FileVoiceNote:
		doc = doc.MIME("audio/ogg").Attributes(&tg.DocumentAttributeAudio{Voice: true})
	case platform.FileVideoNote:
		doc = doc.MIME("video/mp4").Attributes(&tg.DocumentAttributeVideo{
			RoundMessage: true,
			W:            384,
			H:            384,
		})
	}

	b, err := c.to(ctx, destID)
	if err != nil {
		return err
	}
	_, err = b.Media(ctx, doc)
	return err
}

// Disconnect tears the connection down and waits for the run loop to exit.
func (c *client) Disconnect(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		c.log.Warn("disconnect wait timed out")
	}
	return nil
}

// to builds a send target for a stored destination id, numeric or handle.
func (c *client) to(ctx context.Context, destID string) (*message.RequestBuilder, error) {
	p, err := c.resolvePeer(ctx, destID)
	if err != nil {
		return nil, err
	}
	return c.sender.To(p.InputPeer()), nil
}

// resolvePeer handles the two reference shapes: numeric chat ids go
// through the id-based lookups, everything else through domain resolution.
func (c *client) resolvePeer(ctx context.Context, ref string) (peers.Peer, error) {
	if !isNumericRef(ref) {
		return c.peers.Resolve(ctx, ref)
	}
	if id, ok := channelIDFromRef(ref); ok {
		ch, err := c.peers.ResolveChannelID(ctx, id)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("numeric ref %q: %w", ref, err)
	}
	if id < 0 {
		ch, err := c.peers.ResolveChatID(ctx, -id)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	// A bare positive id can be either a migrated supergroup or a basic
	// group; try the channel space first.
	if ch, err := c.peers.ResolveChannelID(ctx, id); err == nil {
		return ch, nil
	}
	ch, err := c.peers.ResolveChatID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// normalizeRef strips invite-link prefixes and lowercases the handle so a
// destination registered twice under different spellings dedupes. Numeric
// chat ids pass through untouched.
func normalizeRef(ref string) string {
	s := strings.TrimSpace(ref)
	if isNumericRef(s) {
		return s
	}
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimPrefix(s, "@")
	return "@" + strings.ToLower(s)
}

// isNumericRef reports whether ref is a chat id: an optional leading minus
// followed by digits only.
func isNumericRef(ref string) bool {
	s := ref
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// channelIDFromRef extracts the bare channel id from a bot-API style
// "-100<id>" supergroup/channel reference.
func channelIDFromRef(ref string) (int64, bool) {
	rest, ok := strings.CutPrefix(ref, "-100")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
