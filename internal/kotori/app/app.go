// Package app assembles and runs the Kotori bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"maunium.net/go/mautrix/event"

	"github.com/ayatsuji/kotori/internal/kotori/commands"
	"github.com/ayatsuji/kotori/internal/kotori/convo"
	"github.com/ayatsuji/kotori/internal/kotori/llm"
	"github.com/ayatsuji/kotori/internal/kotori/matrix"
	"github.com/ayatsuji/kotori/internal/kotori/memory"
	"github.com/ayatsuji/kotori/internal/kotori/persona"
	"github.com/ayatsuji/kotori/internal/kotori/store"
)

// commandPrefix introduces bot commands in chat.
const commandPrefix = "!"

// Config holds application configuration.
type Config struct {
	// PersonaPath is the persona document (.json or .yaml/.yml). A missing
	// file falls back to the built-in template persona.
	PersonaPath string

	// DataDir is where the file memory backend keeps its per-persona logs.
	DataDir string

	// DatabasePath is the SQLite database used for the Matrix sync token
	// and, when MemoryBackend is "sqlite", for conversation memory.
	DatabasePath string

	// MemoryBackend selects the conversation memory storage.
	// Supported values: "file" (default), "sqlite".
	MemoryBackend string

	Matrix matrix.Config

	// APIURL and APIKey are the process-wide completion API defaults. The
	// persona document's language_model section overrides them per field.
	APIURL string
	APIKey string

	// Admins is the allowlist of Matrix user IDs permitted to edit the
	// persona and switch models in chat.
	Admins []string

	// PresenceStatus is published as the bot's presence status message on
	// startup. Empty disables the presence update.
	PresenceStatus string
}

// App is the assembled Kotori bot.
type App struct {
	config       *Config
	store        *store.Store
	matrix       *matrix.Client
	persona      *persona.Store
	memory       memory.Store
	orchestrator *convo.Orchestrator
	router       *commands.Router
}

// New creates the application: database, Matrix client, persona store,
// memory backend, completion client, orchestrator, and command surface.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = db.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	personaStore, err := persona.Open(config.PersonaPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}
	slog.Info("persona loaded", "name", personaStore.Name(), "path", config.PersonaPath)

	var mem memory.Store
	switch config.MemoryBackend {
	case "sqlite":
		mem = memory.NewSQLiteStore(db, personaStore.Name())
		slog.Info("memory backend: sqlite", "path", config.DatabasePath)
	default:
		fileStore, err := memory.NewFileStore(config.DataDir, personaStore.Name())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize memory store: %w", err)
		}
		mem = fileStore
		slog.Info("memory backend: file", "dir", config.DataDir)
	}

	// The persona document's language_model section wins over the process
	// defaults, re-read on every request so !model changes apply live.
	completions := llm.NewHTTPClient(
		llm.ModelConfig{BaseURL: config.APIURL, APIKey: config.APIKey},
		func() llm.ModelConfig {
			doc := personaStore.Snapshot()
			return llm.ModelConfig{
				BaseURL:  doc.Model.APIURL,
				APIKey:   doc.Model.APIKey,
				Primary:  doc.Model.SelectedModel,
				Fallback: doc.Model.FallbackModel,
			}
		},
	)

	orchestrator := convo.New(matrixClient, personaStore, mem, completions, commandPrefix)

	router := commands.NewRouter(commandPrefix)
	handlers := commands.NewHandlers(commands.HandlersConfig{
		Persona:      personaStore,
		Memory:       mem,
		Orchestrator: orchestrator,
		RoomSender:   matrixClient,
		Admins:       config.Admins,
	})
	router.Register("mode", handlers.HandleMode)
	router.Register("character", handlers.HandleCharacter)
	router.Register("show", handlers.HandleShow)
	router.Register("init", handlers.HandleInit)
	router.Register("reset_memory", handlers.HandleResetMemory)
	router.Register("model", handlers.HandleModel)
	router.Register("version", handlers.HandleVersion)

	return &App{
		config:       config,
		store:        db,
		matrix:       matrixClient,
		persona:      personaStore,
		memory:       mem,
		orchestrator: orchestrator,
		router:       router,
	}, nil
}

// Run starts the bot and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage, a.handleReaction); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	if a.config.PresenceStatus != "" {
		if err := a.matrix.SetPresence(ctx, a.config.PresenceStatus); err != nil {
			slog.Warn("failed to set presence", "err", err)
		}
	}

	slog.Info("Kotori is running; press Ctrl+C to stop",
		"persona", a.persona.Name(),
		"mode", a.orchestrator.Mode())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage routes commands first and hands everything else to the
// conversation orchestrator.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	response, err := a.router.Route(ctx, msgContent.Body, evt)
	if err != nil {
		if forwardToConvo(err) {
			a.orchestrator.HandleMessage(ctx, evt)
			return
		}
		// A registered command that errored.
		if _, err2 := a.matrix.ReplyToMessage(ctx, evt.RoomID.String(), evt.ID.String(),
			fmt.Sprintf("❌ Error: %s", err)); err2 != nil {
			slog.Error("failed to send error reply", "room", evt.RoomID.String(), "err", err2)
		}
		return
	}

	if response != "" {
		if _, err := a.matrix.ReplyToMessage(ctx, evt.RoomID.String(), evt.ID.String(), response); err != nil {
			slog.Error("failed to send command response", "room", evt.RoomID.String(), "err", err)
		}
	}
}

// forwardToConvo reports whether a routing miss belongs to the conversation
// layer: plain chat, a persona canned command, or a prefixed command meant
// for another bot in the room. Only errors from registered commands get an
// error reply.
func forwardToConvo(err error) bool {
	return errors.Is(err, commands.ErrNotACommand) || errors.Is(err, commands.ErrUnknownCommand)
}

func (a *App) handleReaction(ctx context.Context, evt *event.Event) {
	a.orchestrator.HandleReaction(ctx, evt)
}

var _ convo.Platform = (*matrix.Client)(nil)
