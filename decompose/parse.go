package decompose

import (
	"fmt"
	"strings"

	"github.com/hupe1980/toolmesh/core"
	"github.com/tidwall/gjson"
)

// extractJSON strips code fences and surrounding prose from generated text,
// returning the outermost JSON object or array.
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if gjson.Valid(text) {
		return text, true
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", false
	}
	candidate := text[start : end+1]
	if !gjson.Valid(candidate) {
		return "", false
	}
	return candidate, true
}

// parseIntent reads {"intent": ...} or, failing that, the first intent name
// mentioned in the text.
func parseIntent(text string) (core.Intent, bool) {
	if js, ok := extractJSON(text); ok {
		if in, ok := core.ParseIntent(gjson.Get(js, "intent").String()); ok {
			return in, true
		}
	}
	upper := strings.ToUpper(text)
	for _, in := range core.Intents {
		if strings.Contains(upper, string(in)) {
			return in, true
		}
	}
	return core.IntentResearch, false
}

// parseSubQuestions decodes generated sub-questions. Unknown or
// self-referencing dependencies are dropped and reported in dropped;
// expected tools not in known (when known is non-nil) are discarded.
func parseSubQuestions(text string, max int, known map[string]bool) (subs []core.SubQuestion, dropped []string, err error) {
	js, ok := extractJSON(text)
	if !ok {
		return nil, nil, core.NewError(core.KindMalformedGeneration, "decompose.parse", fmt.Errorf("no JSON in response"))
	}

	list := gjson.Parse(js)
	if !list.IsArray() {
		list = list.Get("sub_questions")
	}
	if !list.IsArray() {
		return nil, nil, core.NewError(core.KindMalformedGeneration, "decompose.parse", fmt.Errorf("sub_questions array missing"))
	}

	items := list.Array()
	if len(items) > max {
		items = items[:max]
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		question := strings.TrimSpace(item.Get("question").String())
		if question == "" {
			return nil, nil, core.NewError(core.KindMalformedGeneration, "decompose.parse", fmt.Errorf("sub-question %d has no text", i))
		}
		id := strings.TrimSpace(item.Get("id").String())
		if id == "" || seen[id] {
			id = fmt.Sprintf("q%d", i+1)
		}
		seen[id] = true

		priority := (core.MinPriority + core.MaxPriority) / 2
		if p := item.Get("priority"); p.Exists() {
			priority = int(p.Int())
		}
		confidence := 0.7
		if c := item.Get("confidence"); c.Exists() {
			confidence = clamp(c.Float(), 0, 1)
		}

		sq := core.SubQuestion{
			ID:         id,
			Question:   question,
			Type:       core.ParseSubQuestionType(item.Get("type").String()),
			Priority:   core.ClampPriority(priority),
			Confidence: confidence,
		}
		for _, d := range item.Get("dependencies").Array() {
			sq.Dependencies = append(sq.Dependencies, strings.TrimSpace(d.String()))
		}
		for _, t := range item.Get("expected_tools").Array() {
			name := strings.TrimSpace(t.String())
			if name == "" || (known != nil && !known[name]) {
				continue
			}
			sq.ExpectedTools = append(sq.ExpectedTools, name)
		}
		subs = append(subs, sq)
	}

	if len(subs) == 0 {
		return nil, nil, core.NewError(core.KindMalformedGeneration, "decompose.parse", fmt.Errorf("no sub-questions"))
	}

	for i := range subs {
		kept := subs[i].Dependencies[:0]
		for _, d := range subs[i].Dependencies {
			if d == subs[i].ID || !seen[d] {
				dropped = append(dropped, subs[i].ID+"->"+d)
				continue
			}
			kept = append(kept, d)
		}
		subs[i].Dependencies = kept
	}

	return subs, dropped, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
