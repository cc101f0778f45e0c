package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Request captures the normalized generation input.
type Request struct {
	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitempty"`
	Prompt       string `json:"prompt"`
	// MaxTokens bounds the completion; 0 uses the adapter default.
	MaxTokens int64 `json:"max_tokens,omitempty"`
	// JSONMode asks for a JSON-only reply where the provider supports it.
	JSONMode bool `json:"json_mode,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the text-generation collaborator. Implementations may fail, time
// out or return malformed structured output; callers must degrade.
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder is the embedding collaborator producing fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GenerateText is a helper issuing a single prompt and returning the text.
func GenerateText(ctx context.Context, m Model, prompt string) (string, error) {
	resp, err := m.Generate(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are matched by substring against the prompt in registration order.
type MockModel struct {
	info Info

	mu        sync.Mutex
	rules     []mockRule
	fallback  string
	err       error
	delay     time.Duration
	callCount int
	prompts   []string
}

type mockRule struct {
	contains string
	response string
	err      error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock"}}
}

// AddResponse registers a canned completion returned when the prompt contains substr.
func (m *MockModel) AddResponse(substr, response string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, response: response})
	return m
}

// AddError registers an error returned when the prompt contains substr.
func (m *MockModel) AddError(substr string, err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, err: err})
	return m
}

// SetFallback sets the completion returned when no rule matches.
func (m *MockModel) SetFallback(response string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// SetError makes every call fail with err.
func (m *MockModel) SetError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// SetDelay delays every call by d (honouring ctx cancellation).
func (m *MockModel) SetDelay(d time.Duration) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Calls returns how many times Generate has been invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns every prompt received so far.
func (m *MockModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, req.Prompt)
	delay, globalErr := m.delay, m.err
	rules := append([]mockRule(nil), m.rules...)
	fallback := m.fallback
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if globalErr != nil {
		return Response{}, globalErr
	}
	for _, r := range rules {
		if strings.Contains(req.Prompt, r.contains) {
			if r.err != nil {
				return Response{}, r.err
			}
			return Response{Text: r.response, FinishReason: "stop"}, nil
		}
	}
	if fallback == "" {
		return Response{}, fmt.Errorf("mock model %s: no response for prompt", m.info.Name)
	}
	return Response{Text: fallback, FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// MockEmbedder is a deterministic bag-of-words Embedder: every token is hashed
// into one of Dim buckets and the vector is L2-normalised, so texts sharing
// words have positive cosine similarity.
type MockEmbedder struct {
	Dim int

	mu    sync.Mutex
	err   error
	calls int
}

// NewMockEmbedder constructs a MockEmbedder with the given dimension (default 256).
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &MockEmbedder{Dim: dim}
}

// SetError makes every call fail with err (nil restores normal behaviour).
func (e *MockEmbedder) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns how many times Embed has been invoked.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed implements Embedder.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	vec := make([]float64, e.Dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(e.Dim))]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// Tokenize lower-cases text and splits it on non letter/digit runes.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
