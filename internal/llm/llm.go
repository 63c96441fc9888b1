package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Completion purposes, used for metrics and logging.
const (
	PurposeNormalize = "normalize"
	PurposePickSlug  = "pick_slug"
)

var (
	ErrEmptyCompletion   = errors.New("empty completion")
	ErrInvalidCompletion = errors.New("completion is not a valid document")
)

// Request is one completion call. When Schema is set the reply must be a JSON
// document matching it.
type Request struct {
	Purpose     string
	System      string
	Prompt      string
	SchemaName  string
	Schema      json.RawMessage
	Temperature float32
}

// Generator produces a completion for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenerateJSON runs a schema-constrained request and decodes the reply into T.
// Unknown fields are rejected.
func GenerateJSON[T any](ctx context.Context, g Generator, req Request) (*T, error) {
	reply, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return DecodeStrict[T](reply)
}

// DecodeStrict decodes a single JSON document, rejecting unknown fields and
// trailing data.
func DecodeStrict[T any](reply string) (*T, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, ErrEmptyCompletion
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(reply)))
	dec.DisallowUnknownFields()

	var out T
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCompletion, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON document", ErrInvalidCompletion)
	}
	return &out, nil
}

// StubGenerator replies through a function and records every request.
type StubGenerator struct {
	Reply func(req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

// NewStubGenerator returns a stub that always gives the same reply.
func NewStubGenerator(reply string, err error) *StubGenerator {
	return &StubGenerator{Reply: func(Request) (string, error) { return reply, err }}
}

func (s *StubGenerator) Generate(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Reply == nil {
		return "", ErrEmptyCompletion
	}
	return s.Reply(req)
}

// Calls returns the recorded requests.
func (s *StubGenerator) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}
