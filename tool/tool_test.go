package tool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callCtx(query string) *core.CallContext {
	return core.NewCallContext(context.Background(), core.CallInfo{RequestID: "req-1", Query: query, StepID: "step-1"}, logging.NoOpLogger{})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_JSONInput(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool(core.ToolMetadata{Name: "sum"}, params, func(_ *core.CallContext, args map[string]any) (*core.ToolResult, error) {
		sum := args["a"].(float64) + args["b"].(float64)
		return &core.ToolResult{Data: sum, Count: 1}, nil
	})

	result, err := sumTool.Invoke(callCtx(""), `{"a": 2, "b": 3}`)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.Data)
	assert.Equal(t, KindFunction, sumTool.Kind())
}

func TestFunctionTool_PlainInputBoundToInputKey(t *testing.T) {
	echo := NewFunctionTool(core.ToolMetadata{Name: "echo"}, nil, func(_ *core.CallContext, args map[string]any) (*core.ToolResult, error) {
		return &core.ToolResult{Text: args[InputKey].(string)}, nil
	})

	result, err := echo.Invoke(callCtx(""), "weather in Paris")
	require.NoError(t, err)
	assert.Equal(t, "weather in Paris", result.Text)
}

func TestFunctionTool_PlainInputBoundToSingleStringField(t *testing.T) {
	type args struct {
		City string `json:"city"`
	}
	weather := NewFunctionToolFromStruct(core.ToolMetadata{Name: "weather"}, args{}, func(_ *core.CallContext, args map[string]any) (*core.ToolResult, error) {
		return &core.ToolResult{Text: args["city"].(string)}, nil
	})

	result, err := weather.Invoke(callCtx(""), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "Paris", result.Text)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool(core.ToolMetadata{Name: "test"}, params, func(_ *core.CallContext, _ map[string]any) (*core.ToolResult, error) {
		return nil, nil
	})

	_, err := tTool.Invoke(callCtx(""), `{}`)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = tTool.Invoke(callCtx(""), `{not json`)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool(core.ToolMetadata{Name: "fail"}, nil, func(_ *core.CallContext, _ map[string]any) (*core.ToolResult, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Invoke(callCtx(""), "x")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	execTool := NewFunctionTool(core.ToolMetadata{Name: "nf"}, nil, func(_ *core.CallContext, _ map[string]any) (*core.ToolResult, error) {
		return nil, NewToolError("nf", "missing", CodeNotFound)
	})

	_, err := execTool.Invoke(callCtx(""), "x")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

type cityArgs struct {
	City string `json:"city" description:"City name"`
}

func TestFunctionToolFromStruct(t *testing.T) {
	ft := NewFunctionToolFromStruct(core.ToolMetadata{Name: "weather"}, cityArgs{}, func(_ *core.CallContext, args map[string]any) (*core.ToolResult, error) {
		return &core.ToolResult{Text: "sunny in " + args["city"].(string)}, nil
	})

	res, err := ft.Invoke(callCtx(""), `{"city":"Oslo"}`)
	require.NoError(t, err)
	assert.Equal(t, "sunny in Oslo", res.Text)

	// plain text binds to the single required string field
	res, err = ft.Invoke(callCtx(""), "Oslo")
	require.NoError(t, err)
	assert.Equal(t, "sunny in Oslo", res.Text)

	_, err = ft.Invoke(callCtx(""), `{"town":"Oslo"}`)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

// -------------------- Variant Tests --------------------

func TestClockTool(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	clock := NewClockTool(func(o *ClockOptions) { o.Now = func() time.Time { return fixed } })

	meta := clock.Metadata()
	assert.Equal(t, "clock", meta.Name)
	assert.True(t, meta.HasTrigger("time"))
	assert.True(t, meta.SideEffectFree)

	res, err := clock.Invoke(callCtx("what time is it"), "what time is it")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "09:30:00")
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.95, *res.Confidence, 1e-9)
}

func TestDocumentTool(t *testing.T) {
	store := NewMemoryDocumentStore(Document{ID: "doc-abc12345", Title: "Q3 Report", Content: "Revenue grew 12%.", Source: "s3://reports/q3.pdf"})
	docs := NewDocumentTool(store)

	res, err := docs.Invoke(callCtx(""), "summarize DOC-ABC12345 and doc-missing99")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Q3 Report")
	assert.Equal(t, []string{"s3://reports/q3.pdf"}, res.Sources)
	assert.Equal(t, 1, res.Count)

	// falls back to the original query for references
	res, err = docs.Invoke(callCtx("what is in doc_abc12345?"), "key figures")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	// either separator names the same stored document
	res, err = docs.Invoke(callCtx(""), "summarize doc_abc12345")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://reports/q3.pdf"}, res.Sources)

	underscored := NewDocumentTool(NewMemoryDocumentStore(Document{ID: "DOC_FFFF0000", Title: "Notes"}))
	res, err = underscored.Invoke(callCtx(""), "open doc-ffff0000")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Notes")

	_, err = docs.Invoke(callCtx(""), "no reference here")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	_, err = docs.Invoke(callCtx(""), "doc-zzzzzzzz")
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestHTTPTool_GET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "latest headlines", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"summary":"Two stories","articles":[{"url":"https://a"},{"url":"https://b"}]}`))
	}))
	defer srv.Close()

	news := NewHTTPTool(core.ToolMetadata{Name: "news"}, HTTPConfig{
		URL:         srv.URL,
		ResultPath:  "summary",
		ItemsPath:   "articles",
		SourcesPath: "articles.#.url",
	}, nil)

	res, err := news.Invoke(callCtx(""), "latest headlines")
	require.NoError(t, err)
	assert.Equal(t, "Two stories", res.Text)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"https://a", "https://b"}, res.Sources)
	assert.Equal(t, KindHTTP, news.Kind())
}

func TestHTTPTool_POSTAndErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	remote := NewHTTPTool(core.ToolMetadata{Name: "remote"}, HTTPConfig{URL: srv.URL, Method: "post"}, nil)

	_, err := remote.Invoke(callCtx(""), "anything")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Equal(t, "tool error in demo: x", (&ToolError{Tool: "demo", Message: "x"}).Error())
}
