// Package convo orchestrates the conversation pipeline: it decides which
// inbound messages deserve a reply, assembles the completion request from
// persona data and per-user memory, persists the exchanged turns, and hands
// the reply to the dispatcher. It also implements reaction-triggered
// regeneration of a previous reply.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/ayatsuji/kotori/common/trace"
	"github.com/ayatsuji/kotori/internal/kotori/dispatch"
	"github.com/ayatsuji/kotori/internal/kotori/llm"
	"github.com/ayatsuji/kotori/internal/kotori/memory"
	"github.com/ayatsuji/kotori/internal/kotori/persona"
	"github.com/ayatsuji/kotori/internal/kotori/prompt"
)

const (
	// recentWindow is how many stored turns are replayed into each
	// completion request.
	recentWindow = 20

	// regenerateScanLimit bounds the history lookback when locating the
	// message that triggered a reply being regenerated.
	regenerateScanLimit = 10

	// apologyMessage is the in-character reply for any pipeline failure.
	apologyMessage = "*Something went wrong. Try again?*"

	typingTimeout = 30 * time.Second
)

// Platform is the messaging surface the orchestrator drives. It extends
// the dispatcher's sender with the lookback, redaction and identity
// operations regeneration and eligibility checks need.
type Platform interface {
	dispatch.Sender

	RedactMessage(ctx context.Context, roomID, eventID string) error
	SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error
	GetMessage(ctx context.Context, roomID, eventID string) (*event.Event, error)
	RecentMessagesBefore(ctx context.Context, roomID, eventID string, limit int) ([]*event.Event, error)
	IsDirectRoom(ctx context.Context, roomID string) bool
	Mentioned(content *event.MessageEventContent) bool
	StripMention(body string) string
	GetDisplayName(ctx context.Context, userID string) string
	UserID() string
}

// Orchestrator coordinates one reply pipeline per triggering message.
// Pipelines for different users run concurrently; pipelines for the same
// user are serialized so the read-modify-write of that user's memory log
// cannot race.
type Orchestrator struct {
	platform   Platform
	persona    *persona.Store
	memory     memory.Store
	llm        llm.Client
	dispatcher *dispatch.Dispatcher
	prefix     string

	modeMu sync.RWMutex
	mode   persona.Mode

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New creates an Orchestrator. prefix is the command prefix whose messages
// the orchestrator must leave to the command router.
func New(platform Platform, personaStore *persona.Store, mem memory.Store, client llm.Client, prefix string) *Orchestrator {
	return &Orchestrator{
		platform:   platform,
		persona:    personaStore,
		memory:     mem,
		llm:        client,
		dispatcher: dispatch.New(platform),
		prefix:     prefix,
		mode:       persona.ModeChat,
		userLocks:  make(map[string]*sync.Mutex),
	}
}

// Mode returns the current conversation mode.
func (o *Orchestrator) Mode() persona.Mode {
	o.modeMu.RLock()
	defer o.modeMu.RUnlock()
	return o.mode
}

// SetMode switches the conversation mode. The mode survives only until
// process restart.
func (o *Orchestrator) SetMode(m persona.Mode) {
	o.modeMu.Lock()
	o.mode = m
	o.modeMu.Unlock()
}

// HandleMessage inspects an inbound message and, when it is eligible,
// spawns an asynchronous reply pipeline. It returns immediately so the
// event loop is never blocked on a completion call.
func (o *Orchestrator) HandleMessage(ctx context.Context, evt *event.Event) {
	content := evt.Content.AsMessage()
	if content == nil {
		return
	}
	body := content.Body

	// Spoiler-wrapped messages are deliberately invisible to the bot.
	if strings.HasPrefix(body, "||") && strings.HasSuffix(body, "||") {
		return
	}

	roomID := evt.RoomID.String()
	eventID := evt.ID.String()
	senderID := evt.Sender.String()

	// Canned commands answer on exact match regardless of mentions and
	// never touch memory or the completion endpoint.
	doc := o.persona.Snapshot()
	if resp, ok := doc.CannedResponse(body); ok {
		if _, err := o.platform.ReplyToMessage(ctx, roomID, eventID, resp); err != nil {
			slog.Error("send canned response", "room", roomID, "err", err)
		}
		return
	}

	if !o.platform.Mentioned(content) && !o.platform.IsDirectRoom(ctx, roomID) {
		return
	}

	text := o.platform.StripMention(body)
	if strings.HasPrefix(text, o.prefix) {
		return
	}

	go o.respond(context.WithoutCancel(ctx), roomID, eventID, senderID, text)
}

// HandleReaction routes feedback reactions on the bot's own messages.
func (o *Orchestrator) HandleReaction(ctx context.Context, evt *event.Event) {
	reaction := evt.Content.AsReaction()
	if reaction == nil {
		return
	}

	roomID := evt.RoomID.String()
	targetID := reaction.RelatesTo.EventID.String()

	switch reaction.RelatesTo.Key {
	case dispatch.ReactRegenerate:
		go o.regenerate(context.WithoutCancel(ctx), roomID, targetID)
	case dispatch.ReactGood:
		slog.Info("positive feedback", "persona", o.persona.Name(), "room", roomID)
	case dispatch.ReactBad:
		slog.Info("negative feedback", "persona", o.persona.Name(), "room", roomID)
	}
}

// respond runs the full reply pipeline for one triggering message.
// On any failure it sends the in-character apology and persists nothing.
func (o *Orchestrator) respond(ctx context.Context, roomID, eventID, senderID, content string) {
	unlock := o.lockUser(senderID)
	defer unlock()

	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := slog.With("trace", trace.FromContext(ctx), "room", roomID, "sender", senderID)

	if err := o.platform.SetTyping(ctx, roomID, true, typingTimeout); err != nil {
		log.Warn("typing indicator on", "err", err)
	}
	defer func() {
		if err := o.platform.SetTyping(ctx, roomID, false, 0); err != nil {
			log.Warn("typing indicator off", "err", err)
		}
	}()

	reply, err := o.generate(ctx, senderID, content)
	if err != nil {
		log.Error("reply pipeline failed", "err", err)
		if _, err := o.platform.ReplyToMessage(ctx, roomID, eventID, apologyMessage); err != nil {
			log.Error("send apology", "err", err)
		}
		return
	}

	if _, err := o.dispatcher.Deliver(ctx, roomID, eventID, reply); err != nil {
		log.Error("deliver reply", "err", err)
	}
}

// generate produces and persists a reply for one user turn. Memory is only
// written once a completion has been obtained, so failed turns leave no
// trace in the log.
func (o *Orchestrator) generate(ctx context.Context, senderID, content string) (string, error) {
	history, err := o.memory.Recent(ctx, senderID, recentWindow)
	if err != nil {
		return "", fmt.Errorf("fetch history: %w", err)
	}

	doc := o.persona.Snapshot()
	system := prompt.Build(doc, o.Mode(), &prompt.UserContext{
		DisplayName: o.platform.GetDisplayName(ctx, senderID),
		UserID:      senderID,
	})

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, e := range history {
		msgs = append(msgs, llm.Message{Role: string(e.Role), Content: e.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: content})

	reply, err := o.llm.Complete(ctx, msgs)
	if err != nil {
		return "", err
	}

	if err := o.memory.Append(ctx, senderID, memory.RoleUser, content); err != nil {
		return "", fmt.Errorf("persist user turn: %w", err)
	}
	if err := o.memory.Append(ctx, senderID, memory.RoleAssistant, reply); err != nil {
		return "", fmt.Errorf("persist assistant turn: %w", err)
	}

	return reply, nil
}

// regenerate deletes a bot reply and reruns the pipeline for the message
// that triggered it. The trigger is the nearest eligible non-bot message
// among the regenerateScanLimit messages preceding the bot's reply; when
// none is found within the window, regeneration is a no-op.
func (o *Orchestrator) regenerate(ctx context.Context, roomID, botEventID string) {
	target, err := o.platform.GetMessage(ctx, roomID, botEventID)
	if err != nil {
		slog.Warn("regenerate: fetch target message", "room", roomID, "err", err)
		return
	}
	if target.Sender.String() != o.platform.UserID() {
		return
	}

	prior, err := o.platform.RecentMessagesBefore(ctx, roomID, botEventID, regenerateScanLimit)
	if err != nil {
		slog.Warn("regenerate: history lookback", "room", roomID, "err", err)
		return
	}

	for _, msg := range prior {
		if msg.Sender.String() == o.platform.UserID() {
			continue
		}
		content := msg.Content.AsMessage()
		if content == nil {
			continue
		}
		if !o.platform.Mentioned(content) && !o.platform.IsDirectRoom(ctx, roomID) {
			continue
		}

		text := o.platform.StripMention(content.Body)

		if err := o.platform.RedactMessage(ctx, roomID, botEventID); err != nil {
			slog.Error("regenerate: delete bot reply", "room", roomID, "err", err)
			return
		}
		o.respond(ctx, roomID, msg.ID.String(), msg.Sender.String(), text)
		return
	}
}

// lockUser acquires the per-user pipeline lock, creating it on first use.
func (o *Orchestrator) lockUser(userID string) (unlock func()) {
	o.lockMu.Lock()
	mu, ok := o.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		o.userLocks[userID] = mu
	}
	o.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
