// Package fusion merges ranked backend lists with weighted reciprocal-rank
// fusion and classifies queries for adaptive weighting.
package fusion

import (
	"sort"

	"github.com/shiori-ai/shiori/internal/model"
)

// rrfK is the standard reciprocal-rank fusion constant. It dampens the
// advantage of rank 1 over rank 2 so deep agreement between backends can
// outweigh a single high rank.
const rrfK = 60

// Fuse merges the two ranked lists. Each hit contributes
// weight / (rrfK + rank) to its document's fusion score; contributions for
// the same docID sum across backends. The result is deduplicated by docID
// and ordered by fusion score descending with deterministic tie-breaks:
// backend coverage (both > one), then lower rank sum, then docID.
//
// Fusion is symmetric: swapping the lists together with their weights
// yields the identical set with identical scores.
func Fuse(vectorHits, lexicalHits []model.RetrievalHit, vectorWeight, lexicalWeight float64) []model.FusedHit {
	byDoc := make(map[string]*model.FusedHit, len(vectorHits)+len(lexicalHits))

	for _, h := range vectorHits {
		f := byDoc[h.DocID]
		if f == nil {
			f = &model.FusedHit{DocID: h.DocID, InternalID: h.InternalID, Payload: h.Payload, Content: h.Content}
			byDoc[h.DocID] = f
		}
		f.FusionScore += vectorWeight / float64(rrfK+h.Rank)
		f.Backends.Vector = true
		f.VectorRank = h.Rank
		f.VectorScore = h.Score
	}

	for _, h := range lexicalHits {
		f := byDoc[h.DocID]
		if f == nil {
			f = &model.FusedHit{DocID: h.DocID, InternalID: h.InternalID, Payload: h.Payload, Content: h.Content}
			byDoc[h.DocID] = f
		}
		f.FusionScore += lexicalWeight / float64(rrfK+h.Rank)
		f.Backends.Lexical = true
		f.LexicalRank = h.Rank
		f.LexicalScore = h.Score
	}

	fused := make([]model.FusedHit, 0, len(byDoc))
	for _, f := range byDoc {
		fused = append(fused, *f)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.FusionScore != b.FusionScore {
			return a.FusionScore > b.FusionScore
		}
		if a.Backends.Count() != b.Backends.Count() {
			return a.Backends.Count() > b.Backends.Count()
		}
		if a.RankSum() != b.RankSum() {
			return a.RankSum() < b.RankSum()
		}
		return a.DocID < b.DocID
	})

	return fused
}
