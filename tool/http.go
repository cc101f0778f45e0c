package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/tidwall/gjson"
)

// HTTPConfig describes a remote capability reachable over HTTP.
type HTTPConfig struct {
	URL    string `json:"url" yaml:"url" validate:"required,url"`
	Method string `json:"method,omitempty" yaml:"method" validate:"omitempty,oneof=GET POST"`
	// QueryParam carries the input for GET requests (default "q"). POST
	// requests send {"input": ..., "query": ..., "context": ...} as JSON.
	QueryParam string            `json:"query_param,omitempty" yaml:"query_param"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers"`
	// ResultPath is a gjson path selecting the result text. Empty uses the
	// raw body.
	ResultPath string `json:"result_path,omitempty" yaml:"result_path"`
	// ItemsPath is a gjson path to an array whose length is the result count.
	ItemsPath string `json:"items_path,omitempty" yaml:"items_path"`
	// SourcesPath is a gjson path yielding source strings.
	SourcesPath string        `json:"sources_path,omitempty" yaml:"sources_path"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// HTTPTool invokes a remote endpoint and extracts the result with gjson.
type HTTPTool struct {
	meta   core.ToolMetadata
	cfg    HTTPConfig
	client *resty.Client
}

// NewHTTPTool creates an HTTP capability. The client may be shared between
// tools; per-tool headers and timeouts are applied per request. A nil client
// gets a fresh resty client.
func NewHTTPTool(meta core.ToolMetadata, cfg HTTPConfig, client *resty.Client) *HTTPTool {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.QueryParam == "" {
		cfg.QueryParam = "q"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = resty.New()
	}

	return &HTTPTool{meta: meta, cfg: cfg, client: client}
}

// Metadata implements Capability.
func (t *HTTPTool) Metadata() core.ToolMetadata { return t.meta }

// Kind implements Capability.
func (t *HTTPTool) Kind() Kind { return KindHTTP }

// Invoke implements Capability.
func (t *HTTPTool) Invoke(cc *core.CallContext, input string) (*core.ToolResult, error) {
	ctx, cancel := context.WithTimeout(cc.Context(), t.cfg.Timeout)
	defer cancel()

	req := t.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeaders(t.cfg.Headers)
	if t.cfg.Method == http.MethodPost {
		req.SetBody(map[string]any{
			"input":   input,
			"query":   cc.Query(),
			"context": cc.Prior(),
		})
	} else {
		req.SetQueryParam(t.cfg.QueryParam, input)
	}

	resp, err := req.Execute(t.cfg.Method, t.cfg.URL)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, NewToolError(t.meta.Name, err.Error(), CodeTimeout)
		}
		return nil, wrapError(t.meta.Name, err)
	}
	if resp.IsError() {
		code := CodeExecution
		if resp.StatusCode() == http.StatusNotFound {
			code = CodeNotFound
		}
		return nil, &ToolError{
			Tool:    t.meta.Name,
			Message: fmt.Sprintf("unexpected status %s", resp.Status()),
			Code:    code,
			Details: util.Truncate(string(resp.Body()), 200),
		}
	}

	return t.extract(resp.Body()), nil
}

func (t *HTTPTool) extract(body []byte) *core.ToolResult {
	result := &core.ToolResult{Text: string(body), Count: 1}
	if !gjson.ValidBytes(body) {
		return result
	}

	result.Data = gjson.ParseBytes(body).Value()
	if t.cfg.ResultPath != "" {
		result.Text = gjson.GetBytes(body, t.cfg.ResultPath).String()
	}
	if t.cfg.ItemsPath != "" {
		items := gjson.GetBytes(body, t.cfg.ItemsPath)
		if items.IsArray() {
			result.Count = len(items.Array())
		} else if !items.Exists() {
			result.Count = 0
		}
	}
	if t.cfg.SourcesPath != "" {
		gjson.GetBytes(body, t.cfg.SourcesPath).ForEach(func(_, v gjson.Result) bool {
			result.Sources = append(result.Sources, v.String())
			return true
		})
	}
	return result
}
