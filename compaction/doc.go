// Package compaction decides when a session's budget usage requires
// reclaiming space, plans which History-tier range to replace, applies the
// replacement as an all-or-nothing transform, and verifies the result.
//
// The summarizer that produces the replacement digest is an external
// collaborator behind the Summarizer interface. When it fails or times out,
// the planned range is still removed and replaced with a small structural
// placeholder so budget remains reclaimable; the placeholder is flagged as
// degraded and surfaced in status reports.
package compaction
