package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/model"
)

const synthesisInstructions = `You combine research findings into one clear answer.
Use only the findings provided. Mention uncertainty where findings disagree.`

const synthesisPrompt = `Question: {{.Query}}

Findings:
{{range $i, $s := .Steps}}
{{inc $i}}. {{$s.Question}}
{{$s.Result}}
{{end}}
Write a complete answer to the question.`

const templateResponse = `Results for: {{.Query}}
{{range $i, $s := .Steps}}
## {{inc $i}}. {{$s.Question}}
{{truncate $.Limit $s.Result}}
{{end}}`

const noResultsResponse = "No results could be gathered for: "

// synthesize produces the final response from the completed steps. The
// generated answer is kept only when it is longer than the raw step results;
// everything else falls back to the template.
func (o *Orchestrator) synthesize(ctx context.Context, query string, completed []core.ExecutionStep) (string, core.SynthesisMethod) {
	start := time.Now()

	if len(completed) == 0 {
		o.metrics.ObserveSynthesis(string(core.SynthesisTemplate), time.Since(start))
		return noResultsResponse + query, core.SynthesisTemplate
	}

	if text, ok := o.generate(ctx, query, completed); ok {
		o.metrics.ObserveSynthesis(string(core.SynthesisGenerated), time.Since(start))
		return text, core.SynthesisGenerated
	}

	o.metrics.ObserveSynthesis(string(core.SynthesisTemplate), time.Since(start))
	return o.template(query, completed), core.SynthesisTemplate
}

func (o *Orchestrator) generate(ctx context.Context, query string, completed []core.ExecutionStep) (string, bool) {
	if o.model == nil {
		return "", false
	}

	prompt, err := util.RenderTemplate(synthesisPrompt, map[string]any{"Query": query, "Steps": completed})
	if err != nil {
		o.logger.Error("orchestrator.synthesis.prompt", "error", err.Error())
		return "", false
	}

	if o.opts.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.SynthesisTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.model.Generate(ctx, model.Request{Instructions: synthesisInstructions, Prompt: prompt})
	logging.LogGeneration(o.logger, "orchestrator.synthesize", time.Since(start), err)
	if err != nil {
		err = core.Upstream("orchestrator.synthesize", err)
		o.metrics.ObserveUpstreamFailure("orchestrator.synthesize")
		o.logger.Warn("orchestrator.synthesis.fallback", "reason", err.Error(), "kind", core.KindOf(err))
		return "", false
	}

	text := strings.TrimSpace(resp.Text)
	if len(text) <= len(rawConcatenation(completed)) {
		o.logger.Warn("orchestrator.synthesis.fallback", "reason", "response not longer than step results", "length", len(text))
		return "", false
	}
	return text, true
}

func (o *Orchestrator) template(query string, completed []core.ExecutionStep) string {
	out, err := util.RenderTemplate(templateResponse, map[string]any{
		"Query": query,
		"Steps": completed,
		"Limit": o.opts.TemplateLimit,
	})
	if err != nil {
		o.logger.Error("orchestrator.synthesis.template", "error", err.Error())
		return rawConcatenation(completed)
	}
	return strings.TrimSpace(out)
}

func rawConcatenation(steps []core.ExecutionStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, s.Result)
	}
	return strings.Join(parts, "\n")
}
