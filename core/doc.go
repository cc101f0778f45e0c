// Package core provides the foundational domain types shared by every
// toolmesh component:
//
//   - ToolMetadata and ScoredTool (capability descriptions and rankings)
//   - Selection (the outcome of ensemble tool selection)
//   - SubQuestion and QueryDecomposition (multi-step plans)
//   - ExecutionStep, ToolOutcome and ExecutionResult (runtime state)
//   - CallContext (the scoped surface handed to a tool on invocation)
//   - Error and ErrorKind (the failure taxonomy)
//
// The package holds no behaviour beyond small invariants (step lifecycle
// transitions, confidence aggregation) so that scorers, the decomposer and
// the orchestrator can depend on it without depending on each other.
package core
