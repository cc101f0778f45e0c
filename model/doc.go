// Package model defines the provider-agnostic abstractions for the two
// collaborators toolmesh consumes but never implements itself:
//
//   - Model: prompt in, text out (intent classification, sub-question
//     generation, answer synthesis)
//   - Embedder: text in, fixed-length vector out (tool and query embeddings)
//
// Providers (OpenAI, Anthropic) live in sub-packages so higher layers remain
// decoupled from vendor SDKs. MockModel and MockEmbedder are deterministic
// fakes for tests and examples.
package model
