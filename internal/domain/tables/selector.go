package tables

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// ErrNoTableAvailable is returned when the catalog knows no tables at all.
var ErrNoTableAvailable = errors.New("no table available")

const (
	noisyAliasPenalty = 0.2
	aliasMatchBonus   = 0.3
	idMatchBonus      = 0.5
)

var queryTerm = regexp.MustCompile(`[0-9a-zA-Z\x{4e00}-\x{9fa5}]{2,}`)

// SelectorConfig holds the scoring weights and thresholds.
type SelectorConfig struct {
	Alpha           float64 // content weight
	Beta            float64 // name weight
	TopM            int     // occurrences considered per table
	StrongThreshold float64 // content score that counts as a strong hit
	YearGuardMin    float64 // content a bare-year id needs to survive
	DefaultTopK     int
}

// DefaultSelectorConfig returns the tuned defaults.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Alpha:           0.85,
		Beta:            0.15,
		TopM:            3,
		StrongThreshold: 0.5,
		YearGuardMin:    1.0,
		DefaultTopK:     3,
	}
}

// Selector ranks catalog tables for a query from retrieval evidence.
// Output depends only on the retrieval results and the catalog.
type Selector struct {
	catalog   Catalog
	retriever ports.Retriever
	cfg       SelectorConfig
	logger    hclog.Logger
}

// NewSelector creates a Selector. Zero config fields take defaults.
func NewSelector(catalog Catalog, retriever ports.Retriever, cfg SelectorConfig, logger hclog.Logger) *Selector {
	def := DefaultSelectorConfig()
	if cfg.Alpha == 0 && cfg.Beta == 0 {
		cfg.Alpha, cfg.Beta = def.Alpha, def.Beta
	}
	if cfg.TopM <= 0 {
		cfg.TopM = def.TopM
	}
	if cfg.StrongThreshold <= 0 {
		cfg.StrongThreshold = def.StrongThreshold
	}
	if cfg.YearGuardMin <= 0 {
		cfg.YearGuardMin = def.YearGuardMin
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Selector{catalog: catalog, retriever: retriever, cfg: cfg, logger: logger}
}

// Select returns the primary table and up to topK ranked table ids.
func (s *Selector) Select(ctx context.Context, query string, topK int) (entities.Selection, error) {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	var hits []entities.QueryResult
	if s.retriever != nil {
		want := topK * 4
		if want < 5 {
			want = 5
		}
		var err error
		hits, err = s.retriever.Retrieve(ctx, query, want, want)
		if err != nil {
			s.logger.Warn("retrieval failed, falling back to catalog order", "error", err)
			hits = nil
		}
	}

	pool := s.rank(query, hits)
	if len(pool) == 0 {
		ids := s.catalog.AllIDs()
		if len(ids) == 0 {
			return entities.Selection{}, ErrNoTableAvailable
		}
		return entities.Selection{Primary: ids[0], Ranked: []string{ids[0]}}, nil
	}

	if len(pool) > topK {
		pool = pool[:topK]
	}
	sel := entities.Selection{Candidates: pool}
	for _, c := range pool {
		sel.Ranked = append(sel.Ranked, c.ID)
	}
	sel.Primary = sel.Ranked[0]
	return sel, nil
}

// rank scores, filters and orders the resolvable candidates.
func (s *Selector) rank(query string, hits []entities.QueryResult) []entities.SelectionCandidate {
	scores := make(map[string][]float64)
	var order []string
	for _, h := range hits {
		id, ok := s.catalog.Resolve(h.SourceDoc)
		if !ok {
			continue
		}
		if _, seen := scores[id]; !seen {
			order = append(order, id)
		}
		scores[id] = append(scores[id], h.Score)
	}

	terms := queryTerms(query)
	candidates := make([]entities.SelectionCandidate, 0, len(order))
	anyStrong := false
	for i, id := range order {
		c := entities.SelectionCandidate{
			ID:      id,
			Content: s.contentScore(scores[id]),
			Name:    nameScore(terms, id, s.catalog.AliasesOf(id)),
			Order:   i,
		}
		c.Strong = c.Content >= s.cfg.StrongThreshold
		anyStrong = anyStrong || c.Strong
		candidates = append(candidates, c)
	}

	pool := candidates[:0:0]
	for _, c := range candidates {
		if anyStrong && !c.Strong {
			continue
		}
		pool = append(pool, c)
	}

	hasNonYear := false
	for _, c := range pool {
		if !IsYear(c.ID) {
			hasNonYear = true
			break
		}
	}
	if hasNonYear {
		kept := pool[:0:0]
		for _, c := range pool {
			if IsYear(c.ID) && c.Content < s.cfg.YearGuardMin {
				continue
			}
			kept = append(kept, c)
		}
		pool = kept
	}

	for i := range pool {
		pool[i].Final = s.cfg.Alpha*pool[i].Content + s.cfg.Beta*pool[i].Name
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Final > pool[j].Final
	})
	return pool
}

// contentScore is the best of the table's top-m retrieval scores.
func (s *Selector) contentScore(scores []float64) float64 {
	top := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(top)))
	if len(top) > s.cfg.TopM {
		top = top[:s.cfg.TopM]
	}
	best := 0.0
	for i, v := range top {
		if i == 0 || v > best {
			best = v
		}
	}
	return best
}

func queryTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, t := range queryTerm.FindAllString(strings.ToLower(query), -1) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

func nameScore(terms []string, id string, aliases []string) float64 {
	score := 0.0
	for _, alias := range aliases {
		a := strings.ToLower(alias)
		if IsYear(a) || utf8.RuneCountInString(a) <= 2 {
			score -= noisyAliasPenalty
			continue
		}
		for _, t := range terms {
			if strings.Contains(a, t) || strings.Contains(t, a) {
				score += aliasMatchBonus
				break
			}
		}
	}
	for _, t := range terms {
		if strings.Contains(id, t) {
			score += idMatchBonus
			break
		}
	}
	return score
}
