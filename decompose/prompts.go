package decompose

const intentInstructions = `You classify user requests. Answer with JSON only.`

const intentPrompt = `Classify the intent of the request into exactly one of:
{{ join ", " .Intents }}

Respond as {"intent": "<INTENT>"}.

Request: {{ .Query }}`

const subQuestionInstructions = `You break complex requests into small, answerable sub-questions. Answer with JSON only.`

const subQuestionPrompt = `Break the request into {{ .Min }} to {{ .Max }} sub-questions that together answer it.
The request intent is {{ .Intent }}.

Each sub-question has:
- "id": short unique id such as "q1"
- "question": the sub-question text
- "type": one of research, analysis, comparison, verification, synthesis
- "priority": 1 (first) to 5 (last)
- "dependencies": ids of sub-questions whose answers it needs
- "expected_tools": names of tools that can answer it
- "confidence": 0 to 1
{{- if .Tools }}

Available tools:
{{- range .Tools }}
- {{ .Name }}: {{ .Description }}
{{- end }}
{{- end }}

Sub-questions that can be answered independently must not depend on each other.
Respond as {"sub_questions": [...]}.

Request: {{ .Query }}`
