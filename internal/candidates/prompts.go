package candidates

const reactTemplate = `You are given an input text representing a conversation between two or more people. Predict 50 important words that are likely to be used in this conversation. Give the results as a list of words separated by commas. You have access to the following tools:

{tools}

Use the following format:

Conversation: the input conversation for which you must find 50 important words
Thought: you should always think about what to do
Action: the action to take, should be one of [{tool_names}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: 50 important words

Begin!

Conversation: {input}
Thought:{agent_scratchpad}`

const predictTemplate = `
You are an expert at the English language, but you have no knowledge of recent news.
You are given an input text of a conversation between two or more people.
Predict 50 important words that are likely to be used in this conversation.
Give the results as a list of words separated by commas.

Conversation description: {query}

Answer:
`

const searchResultsTemplate = `
You are an expert at the English language.
You are given the output of a search engine query.
Predict 50 important words that are likely to be used in a
conversation among people talking about these search engine results.
Give the results as a list of words separated by commas.

Search engine results: {query}

Answer:
`
