// Package packer selects reranked chunks into a token-budgeted prompt
// context with per-document caps, a novelty filter, and deterministic
// ordering.
package packer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shiori-ai/shiori/internal/citation"
	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// DropReason explains why a candidate chunk was not selected.
type DropReason string

const (
	DropPerDocCap     DropReason = "per-doc-cap"
	DropPerSectionCap DropReason = "per-section-cap"
	DropNovelty       DropReason = "novelty"
	DropBudget        DropReason = "budget"
	DropEmpty         DropReason = "empty"
)

// Rejection records one dropped candidate for the packing trace.
type Rejection struct {
	DocID  string
	Reason DropReason
}

// Trace is the packing decision log, produced only when debug is enabled.
type Trace struct {
	Selected []string
	Rejected []Rejection
	Tokens   map[string]int
}

// Packer builds token-budgeted contexts.
type Packer struct {
	counter TokenCounter
	logger  *slog.Logger
	debug   bool
}

// New creates a Packer. counter may be nil; the character-ratio fallback
// then applies.
func New(counter TokenCounter, logger *slog.Logger) *Packer {
	if counter == nil {
		counter = RatioCounter{}
	}
	return &Packer{counter: counter, logger: logger}
}

// WithDebug enables trace production.
func (p *Packer) WithDebug(debug bool) *Packer {
	p.debug = debug
	return p
}

type candidate struct {
	hit      model.RerankedHit
	effScore float64
	tokens   map[string]struct{}
}

// Pack greedily selects chunks under cfg caps until the token budget is
// reached. Selection order is effective score descending, where the
// effective score adds an answerability bonus for chunks sharing query
// keywords. The first chunk is never rejected for size: it is truncated
// to fit with a visible ellipsis instead.
func (p *Packer) Pack(query string, hits []model.RerankedHit, budget int, cfg config.ContextConfig) (model.PackedContext, *Trace) {
	var trace *Trace
	if p.debug {
		trace = &Trace{Tokens: map[string]int{}}
	}

	if budget <= 0 {
		budget = cfg.MaxContextTokens
	}

	queryTokens := tokenize(query)
	cands := make([]candidate, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Content) == "" {
			p.reject(trace, h.DocID, DropEmpty)
			continue
		}
		toks := tokenize(h.Content)
		bonus := 0.0
		if keywordOverlap(queryTokens, toks) >= 2 {
			bonus = cfg.AnswerabilityBonus
		}
		cands = append(cands, candidate{hit: h, effScore: h.RerankScore + bonus, tokens: toks})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.effScore != b.effScore {
			return a.effScore > b.effScore
		}
		if a.hit.FusionScore != b.hit.FusionScore {
			return a.hit.FusionScore > b.hit.FusionScore
		}
		return a.hit.DocID < b.hit.DocID
	})

	packed := model.PackedContext{
		Selected:     []model.RerankedHit{},
		PerDocTokens: map[string]int{},
	}

	docCount := map[string]int{}
	sectionCount := map[string]int{}
	var selected []candidate
	used := 0

	for i, c := range cands {
		h := c.hit

		if cfg.PerDocCap > 0 && docCount[h.DocID] >= cfg.PerDocCap {
			p.reject(trace, h.DocID, DropPerDocCap)
			continue
		}
		secKey := h.DocID + "\x00" + h.Payload.SectionPath
		if cfg.PerSectionCap > 0 && sectionCount[secKey] >= cfg.PerSectionCap &&
			!spansSections(h, selected) {
			p.reject(trace, h.DocID, DropPerSectionCap)
			continue
		}
		if len(selected) > 0 {
			maxSim := 0.0
			for _, s := range selected {
				if sim := jaccard(c.tokens, s.tokens); sim > maxSim {
					maxSim = sim
				}
			}
			if (1-cfg.NoveltyAlpha)*c.effScore-cfg.NoveltyAlpha*maxSim < 0 {
				p.reject(trace, h.DocID, DropNovelty)
				continue
			}
		}

		number := len(selected) + 1
		header := docHeader(number, h)
		cost := p.counter.Count(header) + p.counter.Count(h.Content)

		if used+cost > budget {
			if len(selected) == 0 {
				// The best chunk always ships, truncated to fit.
				allowed := budget - p.counter.Count(header)
				h.Content = p.truncateToFit(h.Content, allowed)
				c.hit = h
				cost = p.counter.Count(header) + p.counter.Count(h.Content)
				packed.Truncated = true
			} else {
				for _, rest := range cands[i:] {
					p.reject(trace, rest.hit.DocID, DropBudget)
				}
				break
			}
		}

		selected = append(selected, c)
		used += cost
		docCount[h.DocID]++
		sectionCount[secKey]++
		packed.PerDocTokens[h.DocID] += cost
		if trace != nil {
			trace.Selected = append(trace.Selected, h.DocID)
			trace.Tokens[h.DocID] = packed.PerDocTokens[h.DocID]
		}
	}

	used = p.reunify(selected, cands, used, budget, docCount)

	var sb strings.Builder
	for i, c := range selected {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(docHeader(i+1, c.hit))
		sb.WriteString(c.hit.Content)
		c.hit.FinalRank = i + 1
		packed.Selected = append(packed.Selected, c.hit)
	}

	packed.Text = sb.String()
	packed.TokensUsed = used
	return packed, trace
}

// reunify attaches section headers and one contiguous neighbor per
// selected chunk from the unselected pool, cheapest first, while budget
// remains. Attachment mutates the selected chunk's content in place.
func (p *Packer) reunify(selected []candidate, all []candidate, used, budget int, docCount map[string]int) int {
	if len(selected) == 0 || used >= budget {
		return used
	}

	isSelected := map[string]bool{}
	for _, s := range selected {
		isSelected[chunkKey(s.hit)] = true
	}

	type attachment struct {
		target int
		text   string
		cost   int
	}
	var attachments []attachment

	for ti := range selected {
		h := selected[ti].hit
		if h.Payload.Header != "" && !strings.Contains(h.Content, h.Payload.Header) {
			text := h.Payload.Header + "\n"
			attachments = append(attachments, attachment{ti, text, p.counter.Count(text)})
		}
		if h.Payload.OrderIndex == nil {
			continue
		}
		for _, c := range all {
			n := c.hit
			if n.DocID != h.DocID || n.Payload.OrderIndex == nil || isSelected[chunkKey(n)] {
				continue
			}
			d := *n.Payload.OrderIndex - *h.Payload.OrderIndex
			if d == 1 || d == -1 {
				text := "\n" + n.Content
				attachments = append(attachments, attachment{ti, text, p.counter.Count(text)})
				break
			}
		}
	}

	sort.SliceStable(attachments, func(i, j int) bool {
		return attachments[i].cost < attachments[j].cost
	})

	for _, a := range attachments {
		if used+a.cost > budget {
			continue
		}
		h := &selected[a.target].hit
		if strings.HasSuffix(a.text, "\n") {
			h.Content = a.text + h.Content
		} else {
			h.Content += a.text
		}
		used += a.cost
	}
	return used
}

// spansSections reports whether the chunk continues an already-selected
// span of the same document, detected by contiguous orderIndex. Such
// chunks bypass the per-section cap.
func spansSections(h model.RerankedHit, selected []candidate) bool {
	if h.Payload.OrderIndex == nil {
		return false
	}
	for _, s := range selected {
		sh := s.hit
		if sh.DocID != h.DocID || sh.Payload.OrderIndex == nil {
			continue
		}
		d := *h.Payload.OrderIndex - *sh.Payload.OrderIndex
		if d == 1 || d == -1 {
			return true
		}
	}
	return false
}

// truncateToFit trims content to at most allowed tokens, appending an
// ellipsis. Binary search keeps this exact for real tokenizers.
func (p *Packer) truncateToFit(content string, allowed int) string {
	const ellipsis = "..."
	if allowed <= p.counter.Count(ellipsis) {
		return ellipsis
	}

	runes := []rune(content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if p.counter.Count(string(runes[:mid])+ellipsis) <= allowed {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + ellipsis
}

func (p *Packer) reject(trace *Trace, docID string, reason DropReason) {
	if trace != nil {
		trace.Rejected = append(trace.Rejected, Rejection{DocID: docID, Reason: reason})
	}
}

func docHeader(number int, h model.RerankedHit) string {
	return fmt.Sprintf("[Document %d] (Source: %s)\n", number, citation.SourceOf(h))
}

func chunkKey(h model.RerankedHit) string {
	if h.InternalID != "" {
		return h.InternalID
	}
	if h.Payload.OrderIndex != nil {
		return fmt.Sprintf("%s#%d", h.DocID, *h.Payload.OrderIndex)
	}
	return h.DocID
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"this": {}, "to": {}, "was": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "how": {}, "with": {},
}

// tokenize lowercases and splits on non-alphanumerics, dropping stopwords.
func tokenize(text string) map[string]struct{} {
	out := map[string]struct{}{}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, f := range fields {
		if _, stop := stopwords[f]; stop || len(f) < 2 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func keywordOverlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

// jaccard computes token-set similarity, the cheap lexical proxy used by
// the novelty filter.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := keywordOverlap(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
