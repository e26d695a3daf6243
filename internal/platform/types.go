package platform

import "context"

// EntityKind classifies a resolved platform entity.
type EntityKind string

const (
	KindUser    EntityKind = "user"
	KindGroup   EntityKind = "group"
	KindChannel EntityKind = "channel"
)

// Entity is the result of resolving a destination reference.
type Entity struct {
	ID    string
	Title string
	Kind  EntityKind
}

// GroupLike reports whether the entity can be a broadcast destination.
// Individual users are not valid targets.
func (e Entity) GroupLike() bool {
	return e.Kind == KindGroup || e.Kind == KindChannel
}

// FileKind tags an uploaded file so the platform renders it correctly.
type FileKind string

const (
	FileVoiceNote FileKind = "voice_note"
	FileVideoNote FileKind = "video_note"
)

// Profile is the platform-reported identity of a logged-in account.
type Profile struct {
	Username string
}

// LoginPrompts supplies the human-in-the-loop answers the login protocol
// may need. A driver calls these in order: Phone, Code, and Password —
// the latter only when the account has two-factor protection enabled.
// Returning an empty answer makes the protocol reject the attempt; it must
// not retry indefinitely.
//
// OnError, if non-nil, receives protocol errors as they happen and must
// not block.
type LoginPrompts struct {
	Phone    func(ctx context.Context) (string, error)
	Code     func(ctx context.Context) (string, error)
	Password func(ctx context.Context) (string, error)
	OnError  func(err error)
}

// Client is a live, authenticated connection handle.
type Client interface {
	// Me returns the platform-reported profile of this account.
	Me(ctx context.Context) (Profile, error)

	// Resolve maps a destination reference (numeric id or name-based
	// handle) to a platform entity.
	Resolve(ctx context.Context, ref string) (Entity, error)

	// SendText delivers a plain text message to a destination.
	SendText(ctx context.Context, destID string, text string) error

	// SendFile uploads the file at path to a destination, tagged with kind.
	SendFile(ctx context.Context, destID string, path string, kind FileKind) error

	Disconnect(ctx context.Context) error
}

// Dialer produces authenticated clients.
//
// Dial resumes from a previously serialized session token (empty means
// "start fresh") and runs the interactive login protocol through prompts
// when resumption is not enough. On success it returns the client together
// with the freshly serialized session token for persistence.
type Dialer interface {
	Dial(ctx context.Context, session string, prompts LoginPrompts) (Client, string, error)
}
