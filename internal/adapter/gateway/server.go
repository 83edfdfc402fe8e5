package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agentforge/internal/domain"
	"agentforge/internal/infra/middleware"
	"agentforge/internal/usecase"
)

// ChatHandler runs one streamed turn of the execution loop.
type ChatHandler interface {
	HandleMessageStream(ctx context.Context, session *usecase.Session, userMsg string) (string, error)
}

// AgentFactory builds a per-connection execution loop for an agent record.
// Events of the loop are published on bus; the returned tool names are the
// agent's resolved grant, in grant order.
type AgentFactory func(record *domain.AgentRecord, bus domain.EventBus) (ChatHandler, []string, error)

// BusFactory creates the per-connection event bus.
type BusFactory func() domain.EventBus

// Config holds gateway server settings.
type Config struct {
	Addr      string
	RateLimit float64 // requests/sec per client, 0 = default
	RateBurst int
}

// Server exposes the REST API and the WebSocket chat endpoint.
type Server struct {
	store    domain.AgentStore
	newAgent AgentFactory
	newBus   BusFactory
	cfg      Config
	logger   *slog.Logger
	httpSrv  *http.Server

	mu        sync.Mutex
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(store domain.AgentStore, newAgent AgentFactory, newBus BusFactory, cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2 // 120 req/min
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	return &Server{
		store:    store,
		newAgent: newAgent,
		newBus:   newBus,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins serving. Blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimit(ctx, int(s.cfg.RateLimit*60), s.cfg.RateBurst))

	r.Get("/api/agents", s.handleListAgents)
	r.Get("/api/agents/{name}", s.handleGetAgent)
	r.Get("/ws/chat/{name}", s.handleChat)

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()
	s.httpSrv = &http.Server{Handler: r}

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to, or "" before the
// listener is up.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// agentSummary is one entry of the agent list response.
type agentSummary struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Created      string   `json:"created"`
	LastUsed     string   `json:"last_used"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	agents := make([]agentSummary, 0, len(names))
	for _, name := range names {
		record, err := s.store.Load(name)
		if err != nil {
			agents = append(agents, agentSummary{
				Name:         name,
				Description:  fmt.Sprintf("Error loading agent: %v", err),
				Capabilities: []string{},
			})
			continue
		}
		agents = append(agents, agentSummary{
			Name:         record.Name,
			Description:  record.Description,
			Capabilities: record.Capabilities,
			Created:      record.Created.Format(time.RFC3339),
			LastUsed:     record.LastUsed.Format(time.RFC3339),
		})
	}

	lastAgent, _ := s.store.LastAgent()
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":     agents,
		"last_agent": lastAgent,
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if !s.store.Exists(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"detail": fmt.Sprintf("Agent '%s' not found", name),
		})
		return
	}

	record, err := s.store.Load(name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": fmt.Sprintf("Error loading agent: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":          record.Name,
		"description":   record.Description,
		"capabilities":  record.Capabilities,
		"system_prompt": record.SystemPrompt,
		"config":        record.Config,
		"created":       record.Created.Format(time.RFC3339),
		"last_used":     record.LastUsed.Format(time.RFC3339),
		"version":       record.Version,
		"metadata":      record.Metadata,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// chatConn tracks a single WebSocket chat connection.
type chatConn struct {
	ws        *websocket.Conn
	sendCh    chan any // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

func (cc *chatConn) close() {
	cc.closeOnce.Do(func() { close(cc.done) })
}

// send queues a message for the client. Messages for a slow client are
// dropped rather than blocking the event pipeline.
func (cc *chatConn) send(logger *slog.Logger, msg any) {
	select {
	case cc.sendCh <- msg:
	case <-cc.done:
	default:
		logger.Warn("gateway: dropped message for slow client")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	cc := &chatConn{
		ws:     ws,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
	go s.writeLoop(cc)
	defer func() {
		cc.close()
		ws.Close(websocket.StatusNormalClosure, "")
	}()

	// Accept hijacks the connection, so r.Context() does not end on client
	// disconnect. Tie the turn context to cc.done instead: when the write
	// loop detects the dead peer, an in-flight turn stops issuing upstream
	// requests and running tools.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-cc.done
		cancel()
	}()

	if !s.store.Exists(name) {
		s.writeDirect(ctx, ws, ErrorMsg{
			Type:        MsgError,
			Message:     fmt.Sprintf("Agent '%s' not found", name),
			Recoverable: false,
		})
		return
	}

	record, err := s.store.Load(name)
	if err != nil {
		s.writeDirect(ctx, ws, ErrorMsg{
			Type:        MsgError,
			Message:     fmt.Sprintf("Server error: %v", err),
			Recoverable: false,
		})
		return
	}

	// Each connection gets its own bus so this client only sees its own
	// events, delivered in order.
	bus := s.newBus()
	defer bus.Close()
	unsub := bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		s.forwardEvent(cc, event)
	})
	defer unsub()

	handler, toolNames, err := s.newAgent(record, bus)
	if err != nil {
		s.writeDirect(ctx, ws, ErrorMsg{
			Type:        MsgError,
			Message:     fmt.Sprintf("Server error: %v", err),
			Recoverable: false,
		})
		return
	}

	session := usecase.NewSession(record.Name)
	if record.Config.PreserveHistory {
		if entries, err := s.store.LoadHistory(record.Name); err == nil {
			session.SeedHistory(entries)
		}
	}

	cc.send(s.logger, InfoMsg{
		Type:         MsgInfo,
		Message:      fmt.Sprintf("Connected to agent: %s", record.Name),
		Capabilities: record.Capabilities,
		Tools:        toolNames,
	})

	s.logger.Info("chat client connected", "agent", record.Name, "session", session.ID)
	defer func() {
		s.saveSession(record, session)
		s.logger.Info("chat client disconnected", "agent", record.Name, "session", session.ID)
	}()

	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame ClientFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			return // connection closed
		}

		switch frame.Type {
		case MsgUserMessage:
			// Turns run serially; the next client message is not read until
			// this turn finishes.
			if _, err := handler.HandleMessageStream(ctx, session, frame.Content); err != nil {
				s.logger.Warn("turn failed", "agent", record.Name, "error", err)
			}
			if record.Config.PreserveHistory {
				s.store.SaveHistory(record.Name, session.HistoryEntries())
			}

		case MsgClearHistory:
			session.Clear()
			if record.Config.PreserveHistory {
				s.store.SaveHistory(record.Name, nil)
			}
			cc.send(s.logger, InfoMsg{Type: MsgInfo, Message: "History cleared"})

		case MsgGetCapabilities:
			cc.send(s.logger, InfoMsg{
				Type:         MsgInfo,
				Capabilities: record.Capabilities,
				Tools:        toolNames,
			})

		default:
			cc.send(s.logger, ErrorMsg{
				Type:        MsgError,
				Message:     fmt.Sprintf("Unknown message type: %s", frame.Type),
				Recoverable: true,
			})
		}
	}
}

// forwardEvent translates a domain event into its protocol message.
func (s *Server) forwardEvent(cc *chatConn, event domain.Event) {
	switch event.Type {
	case domain.EventStreamDelta:
		var p domain.StreamDeltaPayload
		if json.Unmarshal(event.Payload, &p) != nil {
			return
		}
		cc.send(s.logger, StreamChunkMsg{Type: MsgStreamChunk, Content: p.Content})

	case domain.EventToolCallStarted:
		var p domain.ToolStartPayload
		if json.Unmarshal(event.Payload, &p) != nil {
			return
		}
		args := p.Arguments
		if args == nil {
			args = map[string]any{}
		}
		cc.send(s.logger, ToolStartMsg{Type: MsgToolStart, ToolName: p.Tool, Arguments: args})

	case domain.EventToolCallCompleted:
		var p domain.ToolResultPayload
		if json.Unmarshal(event.Payload, &p) != nil {
			return
		}
		cc.send(s.logger, ToolResultMsg{Type: MsgToolResult, ToolName: p.Tool, Result: p.Result, Success: p.Success})

	case domain.EventStreamCompleted:
		var p domain.StreamCompletedPayload
		if json.Unmarshal(event.Payload, &p) != nil {
			return
		}
		cc.send(s.logger, StreamChunkMsg{Type: MsgStreamChunk, Content: "", IsComplete: true})
		msg := AgentMessageMsg{Type: MsgAgentMessage, Content: p.Content}
		if p.Usage != nil {
			msg.Usage = &UsagePayload{
				PromptTokens:     p.Usage.PromptTokens,
				CompletionTokens: p.Usage.CompletionTokens,
				TotalTokens:      p.Usage.TotalTokens,
			}
		}
		cc.send(s.logger, msg)

	case domain.EventStreamError:
		var p domain.StreamErrorPayload
		if json.Unmarshal(event.Payload, &p) != nil {
			return
		}
		cc.send(s.logger, ErrorMsg{Type: MsgError, Message: p.Error, Recoverable: p.Recoverable})
	}
}

func (s *Server) writeLoop(cc *chatConn) {
	for {
		select {
		case <-cc.done:
			return
		case msg := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, msg)
			cancel()
			if err != nil {
				cc.close()
				return
			}
		}
	}
}

// writeDirect sends one message synchronously, for pre-session failures.
func (s *Server) writeDirect(ctx context.Context, ws *websocket.Conn, msg any) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	wsjson.Write(writeCtx, ws, msg)
}

// saveSession persists the session's history and records the agent as last
// used.
func (s *Server) saveSession(record *domain.AgentRecord, session *usecase.Session) {
	if record.Config.PreserveHistory {
		if err := s.store.SaveHistory(record.Name, session.HistoryEntries()); err != nil {
			s.logger.Warn("save history failed", "agent", record.Name, "error", err)
		}
	}
	if err := s.store.SetLastAgent(record.Name); err != nil {
		s.logger.Warn("record last agent failed", "agent", record.Name, "error", err)
	}
}
