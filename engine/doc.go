// Package engine implements the coordination layer for toolmesh.
//
// The Engine is constructed once with its collaborators injected and owns
// every component of the pipeline. There are no package level globals; two
// engines never share a registry, cache or tracker.
//
// # Core Responsibilities
//
// Capability Management:
//   - Thread-safe tool registration, replacement and removal
//   - Embedding index kept in sync with tool metadata
//   - Selection cache purged whenever the catalog changes
//
// Query Handling:
//   - SelectTools: ensemble lexical and semantic selection
//   - DecomposeQuery: intent, sub-questions, execution order, complexity
//   - ExecuteQuery: step-by-step execution with partial-failure tolerance
//   - Answer: routes between single-shot selection and decomposition
//
// Request Control:
//   - Bounded concurrent requests with context-aware waiting
//   - Per-request cancellation by request id
//   - Lifecycle callbacks for auditing and tool vetoes
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│                        Engine                           │
//	│  ┌─────────────┐ ┌──────────────┐ ┌─────────────────┐   │
//	│  │ SelectTools │ │DecomposeQuery│ │ ExecuteQuery    │   │
//	│  └─────────────┘ └──────────────┘ └─────────────────┘   │
//	├─────────────────────────────────────────────────────────┤
//	│  ┌─────────────┐ ┌──────────────┐ ┌─────────────────┐   │
//	│  │  Selector   │ │  Decomposer  │ │  Orchestrator   │   │
//	│  │ lexical +   │ │  graph +     │ │  steps +        │   │
//	│  │ semantic    │ │  fallbacks   │ │  synthesis      │   │
//	│  └─────────────┘ └──────────────┘ └─────────────────┘   │
//	├─────────────────────────────────────────────────────────┤
//	│  ┌─────────────┐ ┌──────────────┐ ┌─────────────────┐   │
//	│  │  Registry   │ │  Embedding   │ │   Performance   │   │
//	│  │             │ │    Index     │ │     Tracker     │   │
//	│  └─────────────┘ └──────────────┘ └─────────────────┘   │
//	└─────────────────────────────────────────────────────────┘
//
// # Usage Patterns
//
// Engine Setup:
//
//	e := engine.New(func(o *engine.Options) {
//	    o.Model = openai.NewModel()
//	    o.Embedder = openai.NewEmbedder()
//	    o.Logger = logger
//	})
//
// Tool Registration:
//
//	if err := e.RegisterTool(ctx, tool.NewClockTool()); err != nil {
//	    return err
//	}
//
// Answering:
//
//	answer, err := e.Answer(ctx, "Compare the weather in Paris and Berlin")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(answer.Result.FinalResponse)
//
// # Error Handling
//
// Upstream failures (embedding, generation, tool invocation) degrade to
// deterministic fallbacks and never reach the caller. Only invalid input, an
// empty registry and a circular sub-question dependency are returned as
// errors, together with context cancellation while waiting for a request
// slot.
package engine
