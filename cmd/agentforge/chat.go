package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"agentforge/internal/domain"
	"agentforge/internal/usecase"
	"agentforge/internal/usecase/eventbus"
)

// runChat runs the interactive terminal session against one agent.
func runChat(flags cliFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := initCore(ctx, flags)
	if err != nil {
		return err
	}
	defer c.cleanup()

	name := flags.Agent
	if name == "" {
		if last, err := c.store.LastAgent(); err == nil && last != "" {
			name = last
		} else {
			name = domain.BootstrapAgentName
		}
	}

	record, err := c.store.Load(name)
	if err != nil {
		return fmt.Errorf("agent '%s' not found (use --list to see available agents)", name)
	}
	if flags.NoHistory {
		record.Config.PreserveHistory = false
	}

	bus := eventbus.New(c.log)
	defer bus.Close()

	// streamed flips when the current turn printed incremental output, so
	// the fallback print of the final reply is skipped.
	var streamed atomic.Bool
	unsub := bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		switch event.Type {
		case domain.EventStreamDelta:
			var p domain.StreamDeltaPayload
			if json.Unmarshal(event.Payload, &p) == nil && p.Content != "" {
				streamed.Store(true)
				fmt.Print(p.Content)
			}
		case domain.EventToolCallStarted:
			var p domain.ToolStartPayload
			if json.Unmarshal(event.Payload, &p) == nil {
				fmt.Printf("\n[tool] %s\n", p.Tool)
			}
		case domain.EventStreamError:
			var p domain.StreamErrorPayload
			if json.Unmarshal(event.Payload, &p) == nil {
				fmt.Printf("\n! %s\n", p.Error)
			}
		}
	})
	defer unsub()

	agent, usage, tools, err := buildAgent(c, record, bus, flags.Model)
	if err != nil {
		return err
	}

	session := usecase.NewSession(record.Name)
	if record.Config.PreserveHistory {
		if entries, err := c.store.LoadHistory(record.Name); err == nil {
			session.SeedHistory(entries)
		}
	}
	defer func() {
		if record.Config.PreserveHistory {
			c.store.SaveHistory(record.Name, session.HistoryEntries())
		}
		c.store.SetLastAgent(record.Name)
	}()

	fmt.Printf("Connected to agent: %s\n", record.Name)
	if record.Description != "" {
		fmt.Println(record.Description)
	}
	fmt.Println("Type /help for commands, /exit to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := chatCommand(line, record, session, c, tools, usage); quit {
				return nil
			}
			continue
		}

		streamed.Store(false)
		reply, err := agent.HandleMessageStream(ctx, session, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("! %v\n", err)
			continue
		}
		if !streamed.Load() && reply != "" {
			fmt.Print(reply)
		}
		fmt.Println()

		if record.Config.PreserveHistory {
			c.store.SaveHistory(record.Name, session.HistoryEntries())
		}
	}
}

// chatCommand handles a slash command. Returns true when the session should
// end.
func chatCommand(line string, record *domain.AgentRecord, session *usecase.Session, c *core, tools []string, usage *usecase.UsageTracker) bool {
	switch line {
	case "/exit", "/quit":
		fmt.Println("Goodbye.")
		return true
	case "/help":
		fmt.Println(`Commands:
  /help          Show this help
  /capabilities  Show the agent's capabilities
  /tools         Show the agent's available tools
  /usage         Show session token usage
  /clear         Clear conversation history
  /exit          Quit`)
	case "/capabilities":
		if len(record.Capabilities) == 0 {
			fmt.Println("Capabilities: none (chat only)")
		} else {
			fmt.Printf("Capabilities: %s\n", strings.Join(record.Capabilities, ", "))
		}
	case "/tools":
		fmt.Printf("Tools: %s\n", strings.Join(tools, ", "))
	case "/usage":
		total := usage.Total()
		fmt.Printf("Tokens: %d prompt, %d completion, %d total\n",
			total.PromptTokens, total.CompletionTokens, total.TotalTokens)
	case "/clear":
		session.Clear()
		if record.Config.PreserveHistory {
			c.store.SaveHistory(record.Name, nil)
		}
		fmt.Println("History cleared")
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", line)
	}
	return false
}
