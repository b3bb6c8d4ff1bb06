// Package stream turns the chat endpoint's byte stream into typed events.
//
// The wire carries back-to-back JSON documents of the form
// {"type": "...", "content": "..."} with no guaranteed separator and no
// alignment between chunks and documents.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// DefaultMaxPending bounds the partial document retained between chunks.
const DefaultMaxPending = 1 << 20

// Kind classifies a parsed event.
type Kind string

const (
	KindReasoning Kind = "reasoning"
	KindAnswer    Kind = "answer"
	KindError     Kind = "error"
)

// Event is one decoded document.
type Event struct {
	Kind Kind
	Text string
}

// wire type names mapped to event kinds
var kinds = map[string]Kind{
	"thought": KindReasoning,
	"message": KindAnswer,
	"answer":  KindAnswer,
	"error":   KindError,
}

// Parser frames and decodes documents incrementally. It is not safe for
// concurrent use; one parser serves one response.
type Parser struct {
	buf        []byte
	maxPending int
	dropped    int
	logger     *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxPending sets the largest partial tail kept across chunks.
func WithMaxPending(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxPending = n
		}
	}
}

// WithLogger sets the logger used for dropped documents.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser creates a parser with an empty buffer.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxPending: DefaultMaxPending,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed appends chunk to the buffer and returns every event completed by it,
// in wire order. A document cut off at the end of the buffer is kept until
// the next chunk arrives.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)
	var out []Event

	for {
		start := bytes.IndexByte(p.buf, '{')
		if start < 0 {
			p.buf = p.buf[:0]
			break
		}
		p.buf = p.buf[start:]

		dec := json.NewDecoder(bytes.NewReader(p.buf))
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == nil {
			p.buf = p.buf[dec.InputOffset():]
			if ev, ok := p.decode(raw); ok {
				out = append(out, ev)
			}
			continue
		}

		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			if len(p.buf) > p.maxPending {
				p.drop("pending document exceeds limit", len(p.buf))
				p.buf = p.buf[:0]
			}
			break
		}

		// Broken document: resynchronise at the next opening brace.
		p.drop("malformed document", err)
		next := bytes.IndexByte(p.buf[1:], '{')
		if next < 0 {
			p.buf = p.buf[:0]
			break
		}
		p.buf = p.buf[1+next:]
	}

	// Compact so a long stream does not pin its already-consumed prefix.
	if cap(p.buf) > 2*len(p.buf)+4096 {
		p.buf = append([]byte(nil), p.buf...)
	}
	return out
}

// Flush ends the stream. Any partial tail is discarded; the return value
// reports whether there was one.
func (p *Parser) Flush() bool {
	pending := len(bytes.TrimSpace(p.buf)) > 0
	if pending {
		p.drop("stream ended inside a document", len(p.buf))
	}
	p.buf = nil
	return pending
}

// Pending returns the number of buffered bytes not yet decoded.
func (p *Parser) Pending() int {
	return len(p.buf)
}

// Dropped returns how many documents or tails were discarded so far.
func (p *Parser) Dropped() int {
	return p.dropped
}

func (p *Parser) decode(raw json.RawMessage) (Event, bool) {
	var doc struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		p.drop("undecodable document", err)
		return Event{}, false
	}
	kind, ok := kinds[doc.Type]
	if !ok {
		p.drop("unknown event type", doc.Type)
		return Event{}, false
	}
	var text string
	if err := json.Unmarshal(doc.Content, &text); err != nil {
		p.drop("non-string content", doc.Type)
		return Event{}, false
	}
	return Event{Kind: kind, Text: text}, true
}

func (p *Parser) drop(reason string, detail any) {
	p.dropped++
	p.logger.Debug("stream document dropped", "reason", reason, "detail", detail)
}
