package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"herald/internal/accounts"
	"herald/internal/dispatch"
	"herald/pkg/logx"
)

// Ops is the application surface the console drives.
type Ops interface {
	RegisterAccount(ctx context.Context) (accounts.Account, error)
	ListAccounts() []accounts.Account
	ActiveAccountIDs() []string
	AssignDestination(ctx context.Context, accountID, ref string) (accounts.AssignOutcome, error)
	Broadcast(ctx context.Context, req dispatch.Request) dispatch.Report
}

type Config struct {
	Token        string
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

// draft collects media an operator attached before /broadcast.
type draft struct {
	voice *dispatch.Media
	video *dispatch.Media
}

type Console struct {
	cfg     Config
	ops     Ops
	log     logx.Logger
	bot     *tele.Bot
	prompts *Prompts
	owners  map[int64]bool

	runMu   sync.Mutex
	running bool

	draftMu sync.Mutex
	drafts  map[int64]*draft
}

func New(cfg Config, ops Ops, log logx.Logger) (*Console, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("console token is empty")
	}
	if len(cfg.OwnerUserIDs) == 0 {
		return nil, errors.New("console needs at least one owner")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	c := &Console{
		cfg:    cfg,
		ops:    ops,
		log:    log,
		bot:    b,
		owners: make(map[int64]bool, len(cfg.OwnerUserIDs)),
		drafts: map[int64]*draft{},
	}
	for _, id := range cfg.OwnerUserIDs {
		c.owners[id] = true
	}
	c.prompts = NewPrompts(c.Alert, log.With(logx.String("comp", "console.prompts")))
	c.registerHandlers()
	return c, nil
}

// Prompts returns the challenge registry logins block on.
func (c *Console) Prompts() *Prompts { return c.prompts }

// Alert pushes text to every owner. Used for credential-loss warnings and
// login prompts; delivery is best-effort.
func (c *Console) Alert(text string) {
	for _, id := range c.cfg.OwnerUserIDs {
		if _, err := c.bot.Send(&tele.Chat{ID: id}, text); err != nil {
			c.log.Warn("alert delivery failed",
				logx.Int64("owner", id), logx.Err(err))
		}
	}
}

// Start begins long polling. No-op if already running.
func (c *Console) Start() {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return
	}
	c.running = true
	c.runMu.Unlock()

	go func() {
		c.log.Info("console polling started")
		c.bot.Start()
		c.log.Info("console polling stopped")
	}()
}

func (c *Console) Stop() {
	c.runMu.Lock()
	wasRunning := c.running
	c.running = false
	c.runMu.Unlock()
	if wasRunning {
		c.bot.Stop()
	}
}

func (c *Console) registerHandlers() {
	c.bot.Use(c.ownerOnly)

	c.bot.Handle("/help", c.handleHelp)
	c.bot.Handle("/start", c.handleHelp)
	c.bot.Handle("/accounts", c.handleAccounts)
	c.bot.Handle("/register", c.handleRegister)
	c.bot.Handle("/assign", c.handleAssign)
	c.bot.Handle("/broadcast", c.handleBroadcast)
	c.bot.Handle("/cancel", c.handleCancel)
	c.bot.Handle(tele.OnText, c.handleText)
	c.bot.Handle(tele.OnVoice, c.handleVoice)
	c.bot.Handle(tele.OnVideoNote, c.handleVideoNote)
}

// ownerOnly drops every update from a non-owner. The console is a private
// control surface, not a public bot.
func (c *Console) ownerOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(tc tele.Context) error {
		s := tc.Sender()
		if s == nil || !c.owners[s.ID] {
			if s != nil {
				c.log.Debug("update from non-owner ignored", logx.Int64("from", s.ID))
			}
			return nil
		}
		return next(tc)
	}
}

func (c *Console) handleHelp(tc tele.Context) error {
	return tc.Send(strings.Join([]string{
		"/accounts - list registered accounts",
		"/register - log a new account in",
		"/assign <account> <@group> - add a broadcast destination",
		"/broadcast <all|id,id,...> <text> - send to assigned destinations",
		"/cancel - abort a pending login challenge or clear attached media",
		"",
		"Send a voice or video note before /broadcast to attach it.",
	}, "\n"))
}

func (c *Console) handleAccounts(tc tele.Context) error {
	accs := c.ops.ListAccounts()
	if len(accs) == 0 {
		return tc.Send("No accounts registered. Use /register.")
	}
	var b strings.Builder
	for _, a := range accs {
		state := "active"
		if !a.Active {
			state = "inactive"
		}
		fmt.Fprintf(&b, "%s  %s  (%s, %d destinations)\n",
			a.ID, a.DisplayName, state, len(a.Destinations))
	}
	return tc.Send(b.String())
}

func (c *Console) handleRegister(tc tele.Context) error {
	if err := tc.Send("Starting login. Answer the challenges as they arrive."); err != nil {
		return err
	}
	// Login rounds can take minutes of operator back-and-forth; never hold
	// the update handler for that long.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		acc, err := c.ops.RegisterAccount(ctx)
		if err != nil {
			c.reply(tc, fmt.Sprintf("Registration failed: %v", err))
			return
		}
		c.reply(tc, fmt.Sprintf("Registered %s as %s.", acc.DisplayName, acc.ID))
	}()
	return nil
}

func (c *Console) handleAssign(tc tele.Context) error {
	args := tc.Args()
	if len(args) != 2 {
		return tc.Send("Usage: /assign <account> <@group>")
	}
	accountID, ref := args[0], args[1]

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	outcome, err := c.ops.AssignDestination(ctx, accountID, ref)
	switch outcome {
	case accounts.Assigned:
		return tc.Send(fmt.Sprintf("Assigned %s to %s.", ref, accountID))
	case accounts.Cancelled:
		return tc.Send("Assignment cancelled.")
	default:
		return tc.Send(fmt.Sprintf("Rejected: %v", err))
	}
}

func (c *Console) handleBroadcast(tc tele.Context) error {
	args := tc.Args()
	if len(args) < 2 {
		return tc.Send("Usage: /broadcast <all|id,id,...> <text>")
	}
	ids := c.expandAccountsArg(args[0])
	if len(ids) == 0 {
		return tc.Send("No matching accounts.")
	}
	text := strings.TrimSpace(strings.Join(args[1:], " "))

	voice, video := c.takeDraft(tc.Chat().ID)
	if err := tc.Send(fmt.Sprintf("Broadcasting to %d account(s)...", len(ids))); err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		rep := c.ops.Broadcast(ctx, dispatch.Request{
			Message:    text,
			AccountIDs: ids,
			Voice:      voice,
			Video:      video,
		})
		c.reply(tc, summarizeReport(rep))
	}()
	return nil
}

func (c *Console) handleCancel(tc tele.Context) error {
	if c.prompts.Cancel() {
		return tc.Send("Login challenge cancelled.")
	}
	if c.clearDraft(tc.Chat().ID) {
		return tc.Send("Attached media cleared.")
	}
	return tc.Send("Nothing to cancel.")
}

// handleText routes plain messages to the oldest pending login challenge.
func (c *Console) handleText(tc tele.Context) error {
	text := strings.TrimSpace(tc.Text())
	if text == "" {
		return nil
	}
	if c.prompts.Answer(text) {
		return tc.Send("Got it.")
	}
	return tc.Send("No pending challenge. See /help.")
}

func (c *Console) handleVoice(tc tele.Context) error {
	m := tc.Message()
	if m == nil || m.Voice == nil {
		return nil
	}
	data, err := c.download(&m.Voice.File)
	if err != nil {
		c.log.Warn("voice download failed", logx.Err(err))
		return tc.Send("Could not fetch the voice note.")
	}
	c.setDraft(tc.Chat().ID, &dispatch.Media{Name: "voice_note.ogg", Data: data}, nil)
	return tc.Send("Voice note attached to the next /broadcast.")
}

func (c *Console) handleVideoNote(tc tele.Context) error {
	m := tc.Message()
	if m == nil || m.VideoNote == nil {
		return nil
	}
	data, err := c.download(&m.VideoNote.File)
	if err != nil {
		c.log.Warn("video note download failed", logx.Err(err))
		return tc.Send("Could not fetch the video note.")
	}
	c.setDraft(tc.Chat().ID, nil, &dispatch.Media{Name: "video_note.mp4", Data: data})
	return tc.Send("Video note attached to the next /broadcast.")
}

func (c *Console) download(f *tele.File) ([]byte, error) {
	rc, err := c.bot.File(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (c *Console) setDraft(chat int64, voice, video *dispatch.Media) {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	d := c.drafts[chat]
	if d == nil {
		d = &draft{}
		c.drafts[chat] = d
	}
	if voice != nil {
		d.voice = voice
	}
	if video != nil {
		d.video = video
	}
}

func (c *Console) takeDraft(chat int64) (voice, video *dispatch.Media) {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	d := c.drafts[chat]
	if d == nil {
		return nil, nil
	}
	delete(c.drafts, chat)
	return d.voice, d.video
}

func (c *Console) clearDraft(chat int64) bool {
	c.draftMu.Lock()
	defer c.draftMu.Unlock()
	if c.drafts[chat] == nil {
		return false
	}
	delete(c.drafts, chat)
	return true
}

// expandAccountsArg turns the account selector of /broadcast into ids.
func (c *Console) expandAccountsArg(arg string) []string {
	if strings.EqualFold(strings.TrimSpace(arg), "all") {
		return c.ops.ActiveAccountIDs()
	}
	var ids []string
	for _, part := range strings.Split(arg, ",") {
		if p := strings.TrimSpace(part); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func summarizeReport(rep dispatch.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Broadcast finished: %d delivered, %d failed.",
		rep.Delivered(), rep.Failed())
	if len(rep.SkippedAccounts) > 0 {
		fmt.Fprintf(&b, "\nSkipped accounts: %s.", strings.Join(rep.SkippedAccounts, ", "))
	}
	for _, s := range rep.Sends {
		if s.Err != nil {
			fmt.Fprintf(&b, "\n%s -> %s (%s): %v", s.Account, s.Destination, s.Kind, s.Err)
		}
	}
	return b.String()
}

func (c *Console) reply(tc tele.Context, text string) {
	if err := tc.Send(text); err != nil {
		c.log.Warn("console reply failed", logx.Err(err))
	}
}
