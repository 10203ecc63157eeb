// Package addon contains core domain types for catalog generation.
//
// It defines the declaration-line filter applied to metadata fragments and the
// per-item Result values the generator inspects instead of relying on panics
// or broad error swallowing, plus the Report summarizing a run.
package addon
