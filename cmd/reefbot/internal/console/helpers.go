package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal"
	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/command"
	"github.com/tinyland-inc/reefbot/pkg/dispatch"
	gw "github.com/tinyland-inc/reefbot/pkg/gateway"
	"github.com/tinyland-inc/reefbot/pkg/logger"
	"github.com/tinyland-inc/reefbot/pkg/ratelimit"
	"github.com/tinyland-inc/reefbot/pkg/security"
	"github.com/tinyland-inc/reefbot/pkg/session"
	"github.com/tinyland-inc/reefbot/pkg/transport"
)

const consoleThread = "repl"

// consoleCmd runs the full pipeline against an in-process transport, so
// the command set and conversation flow can be exercised without any
// chat platform. Plain lines reply to the bot's last message, which
// continues the conversation once one is started with ai.
func consoleCmd(sender string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	provider, err := internal.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := session.NewStore(nil, session.Options{
		MaxTurns:   cfg.Session.MaxTurns,
		SessionTTL: cfg.Session.SessionTTL(),
		PendingTTL: cfg.Session.PendingTTL(),
	})
	// The console operator is always an admin and never rate limited.
	gate := security.NewGate(security.Config{
		Admins:        append([]string{sender}, cfg.Security.Admins...),
		MaxBodyLength: cfg.Security.MaxBodyLength,
	})
	limiter := ratelimit.NewLimiter(cfg.Pipeline.RateWindow(), 1<<30)

	eb := bus.NewEventBus()
	local := transport.NewLocal(eb)
	transports := map[string]transport.Transport{local.Name(): local}

	// lastBotMsg lets plain input continue the conversation by replying
	// to the most recent answer.
	var mu sync.Mutex
	var lastBotMsg string
	local.SetOutputFunc(func(o transport.Outbound) {
		mu.Lock()
		lastBotMsg = o.MessageID
		mu.Unlock()
		if o.Emoji != "" {
			fmt.Printf("[reefbot reacted %s]\n", o.Emoji)
			return
		}
		fmt.Printf("reefbot> %s\n", o.Content)
	})

	stats := gw.NewAggregateStats()
	registry := command.NewRegistry()
	if err := dispatch.RegisterBuiltins(registry, provider, sessions, stats,
		internal.GetVersion(), transports, dispatch.AIOptions{
			Model:        cfg.Provider.Model,
			SystemPrompt: cfg.Session.SystemPrompt,
			MaxTokens:    cfg.Provider.MaxTokens,
			Temperature:  cfg.Provider.Temperature,
		}); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(registry, gate, limiter, sessions, transports, stats,
		dispatch.Options{
			HandlerTimeout:  cfg.Pipeline.HandlerTimeout(),
			DefaultCooldown: 0,
		})

	orch := gw.NewOrchestrator(eb, dispatcher, transports, sessions, limiter, nil, stats,
		gw.Options{ShutdownGrace: cfg.Pipeline.ShutdownGrace()})
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("error starting orchestrator: %w", err)
	}
	defer orch.Stop(context.Background())

	fmt.Println("reefbot console. Start with: ai <question>. Type exit to quit.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".reefbot_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		mu.Lock()
		replyTo := lastBotMsg
		mu.Unlock()
		if _, err := local.Inject(ctx, sender, consoleThread, replyTo, input); err != nil {
			fmt.Printf("Error injecting message: %v\n", err)
		}
	}
}
