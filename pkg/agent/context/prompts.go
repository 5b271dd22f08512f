package context

// episodicMemorySystemPrompt is shared by the strategies that condense
// removed items through inference. The output is injected back into the
// agent's context as its own recalled experience.
const episodicMemorySystemPrompt = "You are writing episodic memory for a browser automation agent. " +
	"Your output will be injected directly into the agent's context window as its own recalled experience. " +
	"Write in operational first-person: declarative statements of completed actions " +
	"('I opened X, the page showed Y', 'I found Z in the search results') and never reflective narrative. " +
	"Uncertainty markers are forbidden: never write 'I think', 'I believe', 'I'm not sure'. " +
	"Be dense and exact. " +
	"Preserve every concrete artifact: URLs, element selectors, form values, prices, dates, names and error text. " +
	"Omit markup, role labels, conversational filler and hedging language."

const summarizeInstruction = "Summarize the following context items into one short paragraph of recalled experience. " +
	"Keep what a later step would need to continue the task."

const extractFactsInstruction = "Extract the key facts from the following context items as a bullet list, one fact per line. " +
	"Keep only concrete values (URLs, names, numbers, dates, outcomes). Drop everything else."
