package extraction

const beliefExtractionPrompt = `You are a belief extraction system. Analyze the following memory content and extract the distinct beliefs it expresses or implies about the agent's world.

For each belief, determine:
- statement: a clear, self-contained assertion (e.g. "User prefers dark mode")
- category: one of "preference", "fact", "skill", "goal", "relationship", "opinion", "general"
- confidence: 0.0-1.0 based on how directly the content supports the statement
- positive: true if the content asserts the statement, false if it denies or retracts it
- tags: short lowercase keywords
- reasoning: one sentence on how the belief was derived

A retraction like "I don't use Vim anymore" yields positive=false with the statement it denies ("User uses Vim"). A pure negation with nothing concrete to deny may use an empty statement.

Category hint for this memory: %s

Respond ONLY with a JSON array. No markdown, no explanation. Example:
[{"statement":"User prefers dark mode","category":"preference","confidence":0.9,"positive":true,"tags":["ui","theme"],"reasoning":"Directly stated"}]

If no beliefs can be extracted, respond with an empty array: []

Content:
%s`

const statementSimilarityPrompt = `Rate the semantic similarity of these two statements on a scale from 0.0 (unrelated) to 1.0 (same meaning):
Statement A: %s
Statement B: %s

Answer with ONLY a number between 0.0 and 1.0. No explanation.`

const conflictCheckPrompt = `Do these two statements conflict, such that an agent holding both would be inconsistent?
Statement A (%s): %s
Statement B (%s): %s

Statements in unrelated categories rarely conflict. Temporal succession ("used to X, now Y") is a conflict.

Answer only "true" or "false". No explanation.`

const categoryPrompt = `Classify this statement into exactly one category: "preference", "fact", "skill", "goal", "relationship", "opinion", or "general".

Statement: %s

Respond ONLY with JSON, no markdown:
{"category":"preference","confidence":0.8}`

const confidencePrompt = `Rate how confidently the source content supports the extracted statement.

Source content: %s
Statement: %s
Context: %s

Consider directness (stated vs. inferred), specificity, and hedging language.

Respond ONLY with JSON, no markdown:
{"confidence":0.8,"reasoning":"brief reason"}`
