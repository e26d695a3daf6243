package dispatch

import (
	"context"
	"os"
	"time"

	"golang.org/x/time/rate"

	"herald/internal/accounts"
	"herald/internal/journal"
	"herald/internal/platform"
	"herald/pkg/logx"
)

type Config struct {
	// RatePerSec paces sends across the whole broadcast to stay clear of
	// platform rate limits. <= 0 picks a conservative default.
	RatePerSec int
	// ScratchDir is the parent for per-broadcast media staging
	// directories. Empty means the OS temp dir.
	ScratchDir string
}

// AccountSource resolves account ids. Satisfied by *accounts.Registry.
type AccountSource interface {
	Get(id string) (accounts.Account, bool)
}

// Sessions is the slice of the connection manager the dispatcher needs:
// cache lookups for reusable handles and ephemeral dials for accounts that
// are not connected this run.
type Sessions interface {
	Cached(sessionName string) (platform.Client, bool)
	DialEphemeral(ctx context.Context, sessionName string) (platform.Client, error)
}

// Dispatcher performs sequential best-effort fan-out. Identities are
// visited in caller order, destinations in assignment order, and per
// destination the send order is fixed: voice, video, text.
type Dispatcher struct {
	registry AccountSource
	sessions Sessions
	store    journal.Store // may be nil
	limiter  *rate.Limiter
	scratch  string
	log      logx.Logger
}

func New(registry AccountSource, sessions Sessions, store journal.Store, cfg Config, log logx.Logger) *Dispatcher {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		registry: registry,
		sessions: sessions,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		scratch:  cfg.ScratchDir,
		log:      log,
	}
}

// Broadcast sends the request to every destination of every requested
// account. Unknown and inactive accounts are skipped silently; an account
// whose connection cannot be obtained is skipped whole. The returned
// Report carries one tagged outcome per attempted send.
func (d *Dispatcher) Broadcast(ctx context.Context, req Request) Report {
	var rep Report
	if len(req.AccountIDs) == 0 {
		return rep
	}

	scratch, err := d.makeScratch(req)
	if err != nil {
		d.log.Error("scratch dir unavailable; media sends will fail", logx.Err(err))
	}
	if scratch != "" {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				d.log.Warn("scratch cleanup failed", logx.String("dir", scratch), logx.Err(err))
			}
		}()
	}

	for _, id := range req.AccountIDs {
		acc, ok := d.registry.Get(id)
		if !ok || !acc.Active {
			d.log.Debug("account skipped", logx.String("account", id), logx.Bool("known", ok))
			continue
		}

		client, cached := d.sessions.Cached(acc.SessionName)
		if !cached {
			c, err := d.sessions.DialEphemeral(ctx, acc.SessionName)
			if err != nil {
				d.log.Warn("connection unobtainable; account skipped",
					logx.String("account", acc.ID), logx.Err(err))
				rep.SkippedAccounts = append(rep.SkippedAccounts, acc.ID)
				continue
			}
			client = c
		}

		for _, dest := range acc.Destinations {
			d.sendToDestination(ctx, client, acc, dest, req, scratch, &rep)
		}

		// A connection opened solely for this broadcast is torn down;
		// cached handles stay open for reuse.
		if !cached {
			if err := client.Disconnect(ctx); err != nil {
				d.log.Warn("ephemeral disconnect failed", logx.String("account", acc.ID), logx.Err(err))
			}
		}
	}

	d.log.Info("broadcast finished",
		logx.Int("delivered", rep.Delivered()),
		logx.Int("failed", rep.Failed()),
		logx.Int("accounts_skipped", len(rep.SkippedAccounts)))
	return rep
}

// sendToDestination runs the fixed voice/video/text sequence for one
// destination. Each send is isolated: a failure is recorded and the
// remaining sends still run.
func (d *Dispatcher) sendToDestination(ctx context.Context, client platform.Client, acc accounts.Account, dest accounts.Destination, req Request, scratch string, rep *Report) {
	if req.Voice != nil {
		d.record(rep, acc, dest, string(platform.FileVoiceNote), func() error {
			return d.sendStaged(ctx, client, dest.ID, scratch, *req.Voice, platform.FileVoiceNote)
		})
	}
	if req.Video != nil {
		d.record(rep, acc, dest, string(platform.FileVideoNote), func() error {
			return d.sendStaged(ctx, client, dest.ID, scratch, *req.Video, platform.FileVideoNote)
		})
	}
	if req.Message != "" {
		d.record(rep, acc, dest, "text", func() error {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			return client.SendText(ctx, dest.ID, req.Message)
		})
	}
}

// sendStaged stages the media file, sends it and removes the file again.
// Cleanup runs regardless of the send outcome.
func (d *Dispatcher) sendStaged(ctx context.Context, client platform.Client, destID, scratch string, m Media, kind platform.FileKind) error {
	if scratch == "" {
		return os.ErrNotExist
	}
	path, err := stageMedia(scratch, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			d.log.Warn("staged media cleanup failed", logx.String("path", path), logx.Err(err))
		}
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return client.SendFile(ctx, destID, path, kind)
}

func (d *Dispatcher) record(rep *Report, acc accounts.Account, dest accounts.Destination, kind string, send func() error) {
	start := time.Now()
	err := send()
	took := time.Since(start)

	rep.Sends = append(rep.Sends, SendResult{
		Account:     acc.ID,
		Destination: dest.ID,
		Kind:        kind,
		Err:         err,
		Took:        took,
	})

	if err != nil {
		d.log.Error("send failed",
			logx.String("account", acc.ID),
			logx.String("display_name", acc.DisplayName),
			logx.String("destination", dest.ID),
			logx.String("title", dest.Title),
			logx.String("kind", kind),
			logx.Err(err))
	} else {
		d.log.Info("sent",
			logx.String("account", acc.ID),
			logx.String("destination", dest.ID),
			logx.String("kind", kind))
	}

	if d.store != nil {
		e := journal.Entry{
			At:          start,
			Account:     acc.ID,
			Destination: dest.ID,
			Kind:        kind,
			OK:          err == nil,
			TookMS:      took.Milliseconds(),
		}
		if err != nil {
			e.Error = err.Error()
		}
		if jerr := d.store.AppendDelivery(context.Background(), e); jerr != nil {
			d.log.Warn("journal append failed", logx.Err(jerr))
		}
	}
}

// makeScratch creates the per-broadcast staging directory, but only when
// the request actually carries media.
func (d *Dispatcher) makeScratch(req Request) (string, error) {
	if req.Voice == nil && req.Video == nil {
		return "", nil
	}
	return os.MkdirTemp(d.scratch, "herald-media-*")
}
