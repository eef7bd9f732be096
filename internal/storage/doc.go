// Package storage keeps a bounded, ordered history per metric.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Sampler    │────▶│  Registry   │────▶│   Store     │
//	│             │     │ (per name)  │     │ (FIFO cap)  │
//	└─────────────┘     └─────────────┘     └──────┬──────┘
//	                                               │
//	                                 ┌─────────────┴─────────────┐
//	                                 ▼                           ▼
//	                          ┌─────────────┐             ┌─────────────┐
//	                          │  wal.Log    │             │ RingBuffer  │
//	                          │  (file)     │             │  (memory)   │
//	                          └─────────────┘             └─────────────┘
//
// A Registry owns one session directory, named smaug_<uuid>, and creates a
// Store for a metric the first time the name is requested. Each Store
// serialises its operations, evicts the oldest entries once its byte bound
// is reached, and rewrites its log atomically on deletion. Session
// directories left behind by crashed processes are swept on startup by the
// retention package.
package storage
