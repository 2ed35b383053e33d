package usecases

import (
	"fmt"
	"strings"
)

const (
	answerMarker    = "<Answer>"
	answerMarkerEnd = "</Answer>"

	noTableContent   = "Can NOT find table content!"
	stallMessage     = "ERROR: Did not call tool with a suquery!"
	sqlFailurePlace  = "ExcelRAG execute fails, key does not exists."
	subAnswerFailure = "The subquery could not be answered."
	subAnswerPrefix  = "Subquery Answer: "
	tableHintPhrase  = " The given table is in "

	subqueryToolName = "solve_subquery"
	subqueryToolDesc = "Return answer for the decomposed subquery."
	subqueryArgName  = "subquery"
	subqueryArgDesc  = "The subquery to be solved, only take natural language as input."
)

var (
	continueOrFinalize = "If the subquery answers above are enough to answer the original question, reply with " +
		answerMarker + " followed by the final answer. Otherwise call " + subqueryToolName + " again with the next subquery."

	answerNowOrContinue = "Either give the final answer now, prefixed with " + answerMarker +
		", or call " + subqueryToolName + " with a subquery."
)

const explorePrompt = `You answer questions about tabular data. Break the question into simple subqueries and resolve them one at a time with the %s tool; each subquery is answered by running SQL over the table. When you have enough information, reply without calling the tool, starting the final answer with %s.

%s

Question: %s`

const multiTableInstruction = `Several tables were provided. Analyze each table independently first, then compare or combine the results to answer the question.`

const combinePrompt = `Answer the subquery using the material below. Prefer the SQL execution result; use the documents only for context.

Relevant documents:
%s

Table schema:
%s

Generated SQL:
%s

SQL execution result:
%s

Subquery: %s`

// renderedTable is one table section of the initial prompt.
type renderedTable struct {
	ID      string
	Content string
}

func buildInitialPrompt(question string, tables []renderedTable) string {
	var body string
	switch len(tables) {
	case 0:
		body = "Table content:\n" + noTableContent
	case 1:
		body = "Table content:\n" + tables[0].Content
	default:
		var b strings.Builder
		b.WriteString(multiTableInstruction)
		for i, t := range tables {
			fmt.Fprintf(&b, "\n\n### Table %d: %s\n%s", i+1, t.ID, t.Content)
		}
		body = b.String()
	}
	return fmt.Sprintf(explorePrompt, subqueryToolName, answerMarker, body, question)
}

func buildCombinePrompt(docs, schema, sql, result, subquery string) string {
	return fmt.Sprintf(combinePrompt, docs, schema, sql, result, subquery)
}

// extractAnswer returns the text after the last answer marker, without a
// closing tag.
func extractAnswer(content string) string {
	i := strings.LastIndex(content, answerMarker)
	if i < 0 {
		return ""
	}
	ans := content[i+len(answerMarker):]
	ans = strings.Replace(ans, answerMarkerEnd, "", 1)
	return strings.TrimSpace(ans)
}
