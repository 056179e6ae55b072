package compaction

// DigestSystemPrompt instructs the summarizer to produce a digest that can
// stand in for the replaced conversation range. The section structure keeps
// digests legible to both the user and a resuming agent.
const DigestSystemPrompt = `You are a conversation summarizer for a long-running agent session. A range of older conversation turns is being replaced by your summary; everything not captured here is lost. Produce a structured digest with these sections (write "None" where a section is empty):

1. **Goal and Intent** - what the user is trying to accomplish, with any stated constraints.
2. **Key Facts and Decisions** - established facts, choices made, and the reasoning that should not be re-litigated.
3. **Resources Touched** - files, documents, or systems that were created, modified, or inspected, with identifiers.
4. **Errors and Resolutions** - problems hit and how they were resolved or worked around.
5. **Open Items** - pending tasks and unresolved questions.
6. **Current Position** - what was in progress at the newest end of the summarized range.

Guidelines:
- Be concise but complete; include specific names, paths, and values.
- Keep chronological order within sections.
- Preserve exact user wording where it carries intent.
- Do not invent information that was not present in the range.`

// BuildDigestUserPrompt wraps the transcript for the summarization request.
func BuildDigestUserPrompt(transcript string) string {
	return `Summarize the following conversation range according to the format in your instructions. The summary will permanently replace these turns.

<conversation>
` + transcript + `
</conversation>`
}
