package models

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultSeparator    = "\n"
	DefaultRetrievalK   = 4

	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	ContextSeparator = "\n---\n"
)

var (
	CondenseQuestionTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

	AnswerSystemTemplate = `Use the following pieces of context to answer the user's question. If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
%s`
)
