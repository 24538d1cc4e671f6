// Package citation assigns numbered source entries to selected documents
// and handles marker normalization in synthesized answers.
package citation

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/model"
)

// Builder derives citations from selected hits using tenant freshness
// thresholds.
type Builder struct {
	cfg    config.FreshnessConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder with the given freshness thresholds.
func NewBuilder(cfg config.FreshnessConfig, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, logger: logger, now: time.Now}
}

// Extract assigns dense 1-based citation numbers to hits in input order.
// The caller passes hits in their final packed order so numbers match the
// document headers in the context. A hit whose metadata cannot produce a
// source is skipped with a warning and numbering stays dense.
func (b *Builder) Extract(hits []model.RerankedHit) model.CitationMap {
	citations := make(model.CitationMap, len(hits))
	num := 1
	for _, h := range hits {
		source := SourceOf(h)
		if source == "" {
			b.logger.Warn("citation: no usable source metadata, skipping document",
				"doc_id", h.DocID)
			continue
		}
		c := model.Citation{
			Number:   num,
			DocID:    h.DocID,
			Source:   source,
			URL:      h.Payload.URL,
			Filepath: h.Payload.Filepath,
			Version:  h.Payload.Version,
			Authors:  h.Payload.Authors,
		}
		if touched := h.Payload.LastTouched(); touched != nil {
			c.Freshness = b.freshness(*touched)
		}
		citations[num] = c
		num++
	}
	return citations
}

// Stats summarizes the freshness distribution of a candidate set. Computed
// even for refused queries so callers can show corpus age context.
func (b *Builder) Stats(hits []model.RerankedHit) model.FreshnessStats {
	var stats model.FreshnessStats
	oldest, newest := -1, -1
	for _, h := range hits {
		touched := h.Payload.LastTouched()
		if touched == nil {
			stats.Unknown++
			continue
		}
		info := b.freshness(*touched)
		switch info.Category {
		case model.FreshnessFresh:
			stats.Fresh++
		case model.FreshnessRecent:
			stats.Recent++
		default:
			stats.Stale++
		}
		if oldest < 0 || info.AgeDays > oldest {
			oldest = info.AgeDays
		}
		if newest < 0 || info.AgeDays < newest {
			newest = info.AgeDays
		}
	}
	if oldest >= 0 {
		stats.OldestAgeDays = oldest
		stats.NewestAgeDays = newest
	}
	return stats
}

func (b *Builder) freshness(touched time.Time) *model.FreshnessInfo {
	age := int(b.now().Sub(touched).Hours() / 24)
	if age < 0 {
		age = 0
	}

	info := &model.FreshnessInfo{
		AgeDays:       age,
		HumanReadable: humanAge(age),
	}
	switch {
	case age <= b.cfg.FreshDays:
		info.Category = model.FreshnessFresh
		info.Badge = "●"
	case age <= b.cfg.RecentDays:
		info.Category = model.FreshnessRecent
		info.Badge = "◐"
	default:
		info.Category = model.FreshnessStale
		info.Badge = "○"
	}
	return info
}

// SourceOf builds the display source with fixed precedence:
// URL hostname+path, filename from filepath, docID, internal id.
func SourceOf(h model.RerankedHit) string {
	if h.Payload.URL != "" {
		if u, err := url.Parse(h.Payload.URL); err == nil && u.Host != "" {
			return u.Host + u.Path
		}
	}
	if h.Payload.Filepath != "" {
		return path.Base(h.Payload.Filepath)
	}
	if h.DocID != "" {
		return h.DocID
	}
	return h.InternalID
}

func humanAge(days int) string {
	switch {
	case days == 0:
		return "today"
	case days < 7:
		return fmt.Sprintf("%d %s ago", days, plural(days, "day"))
	case days < 30:
		w := days / 7
		return fmt.Sprintf("%d %s ago", w, plural(w, "week"))
	case days < 365:
		m := days / 30
		return fmt.Sprintf("%d %s ago", m, plural(m, "month"))
	default:
		y := days / 365
		return fmt.Sprintf("%d %s ago", y, plural(y, "year"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
