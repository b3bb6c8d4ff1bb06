package application

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/felixgeelhaar/edimap/pkg/domain/chat"
	"github.com/felixgeelhaar/edimap/pkg/domain/events"
	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/felixgeelhaar/edimap/pkg/domain/stream"
)

// ChatAPI streams one assistant turn.
type ChatAPI interface {
	Chat(ctx context.Context, sessionID, query string, onChunk func([]byte)) error
}

// SessionSource supplies the session the conversation is scoped to.
type SessionSource interface {
	SessionID() string
}

// Refresher re-fetches the grid after the assistant may have changed it.
type Refresher interface {
	RefreshFromServer(ctx context.Context) error
}

// TurnObserver is called with the index and a copy of the last turn after
// every change. It runs on the streaming goroutine.
type TurnObserver func(index int, turn chat.Turn)

// ChatService runs the conversational assistant over the active session.
type ChatService struct {
	mu         sync.Mutex
	api        ChatAPI
	source     SessionSource
	refresher  Refresher
	transcript chat.Transcript
	observers  []TurnObserver
	epoch      int
	logger     *slog.Logger
}

// NewChatService creates a chat service. refresher may be nil.
func NewChatService(api ChatAPI, source SessionSource, refresher Refresher, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{api: api, source: source, refresher: refresher, logger: logger}
}

// Subscribe registers an observer.
func (s *ChatService) Subscribe(obs TurnObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// ClearOnReset wires the service to drop its transcript when the session resets.
func (s *ChatService) ClearOnReset(d *events.EventDispatcher) {
	d.RegisterHandler("chat-reset", func(ctx context.Context, event events.DomainEvent) error {
		s.Reset()
		return nil
	}, events.TypeReset)
}

// Submit asks query and blocks until the response stream ends. Parsed
// events are routed into the placeholder turn as they arrive. After the
// stream ends the grid is refreshed; a refresh failure is only logged.
func (s *ChatService) Submit(ctx context.Context, query string) (chat.Turn, error) {
	if strings.TrimSpace(query) == "" {
		return chat.Turn{}, chat.ErrEmptyQuery
	}
	sessionID := s.source.SessionID()
	if sessionID == "" {
		return chat.Turn{}, session.ErrNoSession
	}

	s.mu.Lock()
	if s.transcript.Busy() {
		s.mu.Unlock()
		return chat.Turn{}, ErrChatBusy
	}
	if _, err := s.transcript.Ask(query); err != nil {
		s.mu.Unlock()
		return chat.Turn{}, err
	}
	epoch := s.epoch
	s.mu.Unlock()
	s.notify(epoch)

	parser := stream.NewParser(stream.WithLogger(s.logger))
	streamErr := s.api.Chat(ctx, sessionID, query, func(chunk []byte) {
		evs := parser.Feed(chunk)
		if len(evs) == 0 {
			return
		}
		s.mu.Lock()
		if s.epoch == epoch {
			for _, ev := range evs {
				s.transcript.Apply(ev)
			}
		}
		s.mu.Unlock()
		s.notify(epoch)
	})
	if parser.Flush() {
		s.logger.Debug("chat stream ended inside a document", "session", sessionID)
	}
	if streamErr != nil {
		s.logger.Warn("chat stream failed", "session", sessionID, "error", streamErr)
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.transcript.Finish(streamErr)
	}
	turn, _ := s.transcript.Last()
	s.mu.Unlock()
	s.notify(epoch)

	if s.refresher != nil {
		if err := s.refresher.RefreshFromServer(ctx); err != nil {
			s.logger.Warn("grid refresh after chat failed", "session", sessionID, "error", err)
		}
	}
	return turn, streamErr
}

// ToggleReasoning flips the reasoning panel of turn i.
func (s *ChatService) ToggleReasoning(i int) bool {
	s.mu.Lock()
	ok := s.transcript.ToggleReasoning(i)
	s.mu.Unlock()
	return ok
}

// Turns returns copies of the transcript.
func (s *ChatService) Turns() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Turns()
}

// Busy reports whether a response is streaming.
func (s *ChatService) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Busy()
}

// Reset drops the transcript. A response still streaming is detached from it.
func (s *ChatService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript.Clear()
	s.epoch++
}

func (s *ChatService) notify(epoch int) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	index := s.transcript.Len() - 1
	turn, ok := s.transcript.Last()
	observers := append([]TurnObserver(nil), s.observers...)
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, obs := range observers {
		obs(index, turn)
	}
}
