// Package ctxbudget tracks a conversation's token budget and keeps it
// inside a fixed capacity through tiered, verified compaction.
//
// Every piece of conversation content is a content unit with a token cost.
// Units are classified into three tiers: foundation (system directives and
// compaction digests, never removed), working (the most recent exchange
// pairs, protected from compaction), and history (everything older,
// eligible for compaction). As the conversation grows, working units age
// into history automatically.
//
// # Quick Start
//
//	client := anthropic.NewClient()
//	engine, err := ctxbudget.New(
//	    ctxbudget.Config{
//	        MaxBudget:  200000,
//	        Summarizer: compaction.NewAnthropicSummarizer(&client, "claude-3-5-haiku-20241022"),
//	    },
//	    ctxbudget.WithPreservePairs(8),
//	    ctxbudget.WithAutoCompaction(true),
//	)
//
// Record conversation turns and watch occupancy:
//
//	engine.AppendUserInput(ctx, "Help me migrate the billing schema")
//	engine.AppendAgentOutput(ctx, response)
//	status := engine.Status()
//	if status.Action == compaction.ActionRecommend {
//	    engine.Compact(ctx)
//	}
//
// # Compaction
//
// Compaction replaces the oldest contiguous run of history units with a
// single digest produced by the summarizer. The replacement is built on a
// clone and swapped in as one reference update, so readers never observe a
// half-compacted session. A verification probe checks budget conservation
// and the integrity of preserved units before the swap commits. If the
// summarizer fails or times out, the range is still dropped but replaced
// with a structural placeholder and the digest is flagged as degraded.
//
// Thresholds are fractions of the budget: 60% starts monitoring, 80%
// recommends compaction, 90% requires it (and triggers it automatically
// when auto compaction is on).
//
// # Checkpoints
//
// Checkpoints persist task state (goal, progress, decisions, touched
// resources) outside the conversation, in memory or PostgreSQL:
//
//	store := checkpoint.NewPostgresStore(pool)
//	engine, _ := ctxbudget.New(ctxbudget.Config{MaxBudget: 200000, CheckpointStore: store})
//	engine.SaveCheckpoint(ctx, rec)          // persists + drops a small marker in-conversation
//	engine.SeedCheckpoint(ctx, "billing-v2") // bootstraps a fresh session from a saved record
package ctxbudget
