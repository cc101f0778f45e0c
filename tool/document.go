package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// ErrDocumentNotFound is returned by a DocumentStore for unknown ids.
var ErrDocumentNotFound = errors.New("document not found")

// Document is a stored document referenced by id from a query.
type Document struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
	Source  string `json:"source,omitempty" yaml:"source"`
}

// DocumentStore resolves document ids. Upload and chunk storage live outside
// toolmesh; this is the read side the document tool needs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (Document, error)
}

// MemoryDocumentStore is an in-memory DocumentStore keyed by
// core.CanonicalDocumentID.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryDocumentStore creates a store holding docs.
func NewMemoryDocumentStore(docs ...Document) *MemoryDocumentStore {
	s := &MemoryDocumentStore{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		s.Put(d)
	}
	return s
}

// Put stores or replaces a document.
func (s *MemoryDocumentStore) Put(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[core.CanonicalDocumentID(doc.ID)] = doc
}

// Get implements DocumentStore.
func (s *MemoryDocumentStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[core.CanonicalDocumentID(id)]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

// DocumentOptions configure the document analysis tool.
type DocumentOptions struct {
	Name string
	// ExcerptLength bounds the excerpt of each document in the result text.
	ExcerptLength int
}

// DocumentTool resolves the document identifiers referenced in the input and
// returns excerpts of their content.
type DocumentTool struct {
	store DocumentStore
	opts  DocumentOptions
}

// NewDocumentTool creates the document analysis capability.
func NewDocumentTool(store DocumentStore, optFns ...func(o *DocumentOptions)) *DocumentTool {
	opts := DocumentOptions{Name: "document_analysis", ExcerptLength: 800}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DocumentTool{store: store, opts: opts}
}

// Metadata implements Capability.
func (t *DocumentTool) Metadata() core.ToolMetadata {
	return core.ToolMetadata{
		Name:           t.opts.Name,
		Category:       core.CategoryDocument,
		Priority:       80,
		Triggers:       []string{"document", "pdf", "file", "attachment"},
		Description:    "Analyzes uploaded documents referenced by their identifier",
		UsageExamples:  []string{"summarize doc-3f2a91bc", "what does the attached document say"},
		Semantic:       "analyze summarize read uploaded document file pdf attachment report contents",
		SideEffectFree: true,
	}
}

// Kind implements Capability.
func (t *DocumentTool) Kind() Kind { return KindDocument }

// Invoke implements Capability.
func (t *DocumentTool) Invoke(cc *core.CallContext, input string) (*core.ToolResult, error) {
	ids := core.DocumentRefs(input)
	if len(ids) == 0 {
		ids = core.DocumentRefs(cc.Query())
	}
	if len(ids) == 0 {
		return nil, NewToolError(t.opts.Name, "no document reference in input", CodeValidation)
	}

	var (
		sections []string
		sources  []string
		missing  []string
	)
	for _, id := range ids {
		doc, err := t.store.Get(cc.Context(), id)
		if err != nil {
			if errors.Is(err, ErrDocumentNotFound) {
				missing = append(missing, id)
				continue
			}
			return nil, wrapError(t.opts.Name, err)
		}
		title := doc.Title
		if title == "" {
			title = doc.ID
		}
		sections = append(sections, fmt.Sprintf("%s:\n%s", title, util.Truncate(doc.Content, t.opts.ExcerptLength)))
		source := doc.Source
		if source == "" {
			source = doc.ID
		}
		sources = append(sources, source)
	}

	if len(sections) == 0 {
		return nil, NewToolError(t.opts.Name, "documents not found: "+strings.Join(missing, ", "), CodeNotFound)
	}
	if len(missing) > 0 {
		cc.Logger().Warn("tool.document.missing", "tool", t.opts.Name, "ids", missing)
	}

	return &core.ToolResult{
		Text:    strings.Join(sections, "\n\n"),
		Sources: sources,
		Count:   len(sections),
	}, nil
}
