// Package usecases - query.go runs the question-answering agent loop.
package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
)

// maxIterationCap bounds the loop whatever the configuration says.
const maxIterationCap = 5

// TableCatalog is what the loop needs from the table resolver.
type TableCatalog interface {
	tables.Catalog
	ServiceAliases(id string) []string
	PreferredDataFile(id string) string
}

// TableSelector ranks tables for a query.
type TableSelector interface {
	Select(ctx context.Context, query string, topK int) (entities.Selection, error)
}

// QueryConfig is the fixed per-service bundle of loop settings.
type QueryConfig struct {
	MaxIterations int // capped at 5
	CorpusLimit   int // retrieval corpus size per sub-query
	RetrieveTopK  int // retrieval results kept per sub-query
	ContextDocs   int // unique documents quoted per sub-query
	SelectTopK    int // related tables picked automatically
}

func (c QueryConfig) withDefaults() QueryConfig {
	if c.MaxIterations <= 0 || c.MaxIterations > maxIterationCap {
		c.MaxIterations = maxIterationCap
	}
	if c.CorpusLimit <= 0 {
		c.CorpusLimit = 30
	}
	if c.RetrieveTopK <= 0 {
		c.RetrieveTopK = 5
	}
	if c.ContextDocs <= 0 {
		c.ContextDocs = 3
	}
	if c.SelectTopK <= 0 {
		c.SelectTopK = 3
	}
	return c
}

// QueryUseCase answers a question by letting the model decompose it into
// sub-queries that are each resolved with SQL over the selected tables.
// Each call to Answer owns its conversation; the use case itself is
// safe for concurrent use.
type QueryUseCase struct {
	catalog   TableCatalog
	selector  TableSelector
	retriever ports.Retriever
	chat      ports.ChatService
	sql       ports.SQLExecutor
	renderer  ports.TableRenderer
	cfg       QueryConfig
	logger    hclog.Logger
}

// NewQueryUseCase creates a QueryUseCase with injected dependencies.
func NewQueryUseCase(
	catalog TableCatalog,
	selector TableSelector,
	retriever ports.Retriever,
	chat ports.ChatService,
	sql ports.SQLExecutor,
	renderer ports.TableRenderer,
	cfg QueryConfig,
	logger hclog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &QueryUseCase{
		catalog:   catalog,
		selector:  selector,
		retriever: retriever,
		chat:      chat,
		sql:       sql,
		renderer:  renderer,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// conversation is the state of one Answer call.
type conversation struct {
	question string
	primary  string
	related  []string
	pinned   bool
	messages []entities.Message
}

// Answer runs the loop for question. tableHints pins tables explicitly;
// nil, empty or "auto" selects them from retrieval. The returned error is
// non-nil only when ctx is cancelled; running out of iterations is
// reported through Answered.
func (uc *QueryUseCase) Answer(ctx context.Context, question string, tableHints []string) (*entities.AnswerResult, error) {
	ctx, span := otel.Tracer("tablerag/query").Start(ctx, "answer")
	defer span.End()

	conv := &conversation{question: question}
	hints := normalizeHints(tableHints)
	if len(hints) > 0 {
		conv.pinned = true
		conv.primary, conv.related = uc.resolveHints(ctx, question, hints)
	} else {
		conv.primary, conv.related = uc.selectTables(ctx, question)
	}
	uc.logger.Info("tables chosen", "primary", conv.primary, "related", conv.related, "pinned", conv.pinned)
	span.SetAttributes(
		attribute.String("table.primary", conv.primary),
		attribute.StringSlice("table.related", conv.related),
	)

	conv.messages = []entities.Message{entities.UserMessage(uc.initialPrompt(ctx, conv))}
	tools := []entities.Tool{subqueryTool()}

	maxIter := uc.cfg.MaxIterations
	result := &entities.AnswerResult{PrimaryTable: conv.primary, RelatedTables: conv.related}
	for remaining := maxIter; remaining > 0; {
		remaining--
		iteration := maxIter - remaining
		result.Iterations = iteration
		if err := ctx.Err(); err != nil {
			result.Transcript = conv.messages
			return result, err
		}

		reply, err := uc.chat.Complete(ctx, conv.messages, tools)
		if err != nil {
			uc.logger.Warn("reasoning call failed", "iteration", iteration, "error", err)
			conv.messages = append(conv.messages, entities.UserMessage(stallMessage+" "+answerNowOrContinue))
			continue
		}

		calls := subqueryCalls(reply.ToolCalls)
		if len(calls) == 0 {
			if strings.Contains(reply.Content, answerMarker) && iteration > 1 {
				conv.messages = append(conv.messages, entities.AssistantMessage(reply.Content))
				result.Answer = extractAnswer(reply.Content)
				result.Answered = true
				result.Transcript = conv.messages
				span.SetAttributes(attribute.Int("iterations", iteration))
				uc.logger.Info("answer found", "iteration", iteration)
				return result, nil
			}
			if strings.TrimSpace(reply.Content) != "" {
				conv.messages = append(conv.messages, entities.AssistantMessage(reply.Content))
			}
			conv.messages = append(conv.messages, entities.UserMessage(stallMessage+" "+answerNowOrContinue))
			uc.logger.Debug("model stalled", "iteration", iteration)
			continue
		}

		// Only answered calls are echoed back; chat APIs reject unanswered ones.
		answered := make([]entities.ToolCall, len(calls))
		for i, call := range calls {
			answered[i] = call.call
		}
		conv.messages = append(conv.messages, entities.Message{
			Role:      entities.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: answered,
		})
		for _, call := range calls {
			uc.logger.Info("solving subquery", "iteration", iteration, "subquery", call.subquery)
			answer := uc.solveSubquery(ctx, conv, call.subquery)
			conv.messages = append(conv.messages, entities.ToolMessage(call.call.ID, subAnswerPrefix+answer))
		}
		conv.messages = append(conv.messages, entities.UserMessage(continueOrFinalize))
	}

	uc.logger.Warn("iteration budget exhausted", "iterations", maxIter)
	result.Transcript = conv.messages
	return result, nil
}

func normalizeHints(hints []string) []string {
	var out []string
	for _, h := range hints {
		for _, part := range strings.Split(h, ",") {
			part = strings.TrimSpace(part)
			if part == "" || strings.EqualFold(part, "auto") {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}

// resolveHints maps every hint to a table id: direct alias lookup, then
// retrieval hinted with the name, then the first known table.
func (uc *QueryUseCase) resolveHints(ctx context.Context, question string, hints []string) (string, []string) {
	var ids []string
	seen := make(map[string]bool)
	for _, hint := range hints {
		id, ok := uc.catalog.Resolve(hint)
		if !ok {
			sel, err := uc.selector.Select(ctx, question+tableHintPhrase+hint, 1)
			if err == nil && sel.Primary != "" {
				id, ok = sel.Primary, true
				uc.logger.Debug("hint resolved by retrieval", "hint", hint, "table", id)
			}
		}
		if !ok {
			if all := uc.catalog.AllIDs(); len(all) > 0 {
				id, ok = all[0], true
				uc.logger.Warn("hint not found, using first known table", "hint", hint, "table", id)
			}
		}
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], ids
}

func (uc *QueryUseCase) selectTables(ctx context.Context, question string) (string, []string) {
	sel, err := uc.selector.Select(ctx, question, uc.cfg.SelectTopK)
	if err != nil {
		if !errors.Is(err, tables.ErrNoTableAvailable) {
			uc.logger.Warn("table selection failed", "error", err)
		} else {
			uc.logger.Warn("no table available, answering without table content")
		}
		return "", nil
	}
	return sel.Primary, sel.Ranked
}

func (uc *QueryUseCase) initialPrompt(ctx context.Context, conv *conversation) string {
	var rendered []renderedTable
	if conv.pinned && len(conv.related) > 1 {
		for _, id := range conv.related {
			rendered = append(rendered, renderedTable{ID: id, Content: uc.tableContent(ctx, id)})
		}
	} else if conv.primary != "" {
		rendered = append(rendered, renderedTable{ID: conv.primary, Content: uc.tableContent(ctx, conv.primary)})
	}
	return buildInitialPrompt(conv.question, rendered)
}

func (uc *QueryUseCase) tableContent(ctx context.Context, id string) string {
	path := uc.catalog.PreferredDataFile(id)
	if path == "" || uc.renderer == nil {
		return noTableContent
	}
	md, err := uc.renderer.RenderTable(ctx, path)
	if err != nil {
		uc.logger.Warn("rendering table failed", "table", id, "path", path, "error", err)
		return noTableContent
	}
	return md
}

// solveSubquery always returns some text; failures degrade to placeholders.
func (uc *QueryUseCase) solveSubquery(ctx context.Context, conv *conversation, subquery string) string {
	var docs string
	if !conv.pinned && uc.retriever != nil {
		docs = uc.contextDocs(ctx, subquery)
	}

	sqlText, result, schema := sqlFailurePlace, sqlFailurePlace, sqlFailurePlace
	res, err := uc.sql.Execute(ctx, uc.serviceAliases(conv.related), subquery)
	if err != nil {
		uc.logger.Warn("nl2sql failed", "subquery", subquery, "error", err)
	} else {
		sqlText, result, schema = res.SQL, res.ExecutionResult, res.SchemaPrompt
	}

	prompt := buildCombinePrompt(docs, schema, sqlText, result, subquery)
	reply, err := uc.chat.Complete(ctx, []entities.Message{entities.UserMessage(prompt)}, nil)
	if err != nil {
		uc.logger.Warn("subquery answer failed", "subquery", subquery, "error", err)
		return subAnswerFailure
	}
	return reply.Content
}

// contextDocs joins the first few unique retrieved chunks.
func (uc *QueryUseCase) contextDocs(ctx context.Context, subquery string) string {
	hits, err := uc.retriever.Retrieve(ctx, subquery, uc.cfg.CorpusLimit, uc.cfg.RetrieveTopK)
	if err != nil {
		uc.logger.Warn("subquery retrieval failed", "error", err)
		return ""
	}
	var docs []string
	seen := make(map[string]bool)
	for _, h := range hits {
		if seen[h.Chunk.Content] {
			continue
		}
		seen[h.Chunk.Content] = true
		docs = append(docs, h.Chunk.Content)
		if len(docs) == uc.cfg.ContextDocs {
			break
		}
	}
	return strings.Join(docs, "\n")
}

func (uc *QueryUseCase) serviceAliases(ids []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, id := range ids {
		for _, a := range uc.catalog.ServiceAliases(id) {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

type subqueryCall struct {
	call     entities.ToolCall
	subquery string
}

// subqueryCalls extracts sub-queries in call order. Arguments that are
// not the expected JSON object are taken verbatim.
func subqueryCalls(calls []entities.ToolCall) []subqueryCall {
	var out []subqueryCall
	for _, c := range calls {
		if c.Name != "" && c.Name != subqueryToolName {
			continue
		}
		var args struct {
			Subquery string `json:"subquery"`
		}
		var sub string
		if err := json.Unmarshal([]byte(c.Arguments), &args); err == nil {
			sub = strings.TrimSpace(args.Subquery)
		} else {
			sub = strings.TrimSpace(c.Arguments)
		}
		if sub == "" {
			continue
		}
		out = append(out, subqueryCall{call: c, subquery: sub})
	}
	return out
}

func subqueryTool() entities.Tool {
	return entities.Tool{
		Name:        subqueryToolName,
		Description: subqueryToolDesc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				subqueryArgName: map[string]any{
					"type":        "string",
					"description": subqueryArgDesc,
				},
			},
			"required":             []string{subqueryArgName},
			"additionalProperties": false,
		},
		Strict: true,
	}
}
