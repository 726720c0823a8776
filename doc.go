// Package batchmux is a deferred task batching and coalescing engine.
//
// Callers describe work declaratively as Task values, compose many of them
// into a MultiTask, and execute the whole set in the minimum number of batch
// calls. The engine groups leaf tasks by (handler, batch key), deduplicates
// identical requests by task key, and chains dependent steps through
// progression functions attached to SequenceTask values.
//
// Execution proceeds in phases. Within one phase every pending batch is
// dispatched to its handler exactly once; progression functions then consume
// the settled results and stage the next phase's work. Tasks carrying equal
// (handler, batch key, task key) triples are executed at most once per run,
// within a phase and across phases.
//
// The engine is synchronous and introduces no parallelism of its own;
// handlers are free to fan out internally.
package batchmux
