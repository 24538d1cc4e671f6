package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shiori-ai/shiori/internal/model"
)

// markerPattern matches both marker forms: [^3] and [3].
var markerPattern = regexp.MustCompile(`\[\^?(\d+)\]`)

// Validate reports whether every marker in the answer refers to an entry
// in the citation map. Missing lists the unreferenced numbers ascending.
func Validate(answer string, citations model.CitationMap) (ok bool, missing []int) {
	seen := map[int]bool{}
	for _, m := range markerPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, exists := citations[n]; !exists && !seen[n] {
			seen[n] = true
			missing = append(missing, n)
		}
	}
	sort.Ints(missing)
	return len(missing) == 0, missing
}

// Normalize rewrites every known marker to the [^n] form and silently
// deletes markers whose number is not in the map. Idempotent.
func Normalize(answer string, citations model.CitationMap) string {
	return markerPattern.ReplaceAllStringFunc(answer, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			return ""
		}
		if _, exists := citations[n]; !exists {
			return ""
		}
		return fmt.Sprintf("[^%d]", n)
	})
}

// Strip removes all citation markers, for plain-text output.
func Strip(answer string) string {
	return markerPattern.ReplaceAllString(answer, "")
}

// Bibliography renders the trailing markdown Sources section, entries
// ordered by citation number. Empty map renders nothing.
func Bibliography(citations model.CitationMap) string {
	if len(citations) == 0 {
		return ""
	}

	numbers := make([]int, 0, len(citations))
	for n := range citations {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var sb strings.Builder
	sb.WriteString("\n\n## Sources\n\n")
	for _, n := range numbers {
		c := citations[n]
		sb.WriteString(fmt.Sprintf("%d. ", c.Number))
		if len(c.Authors) > 0 {
			sb.WriteString(strings.Join(c.Authors, ", "))
			sb.WriteString(". ")
		}
		sb.WriteString("**" + c.Source + "**")
		if c.Version != "" {
			sb.WriteString(" (v" + c.Version + ")")
		}
		if c.Freshness != nil {
			sb.WriteString(fmt.Sprintf(" %s %s", c.Freshness.Badge, c.Freshness.HumanReadable))
		}
		switch {
		case c.URL != "":
			sb.WriteString(" — " + c.URL)
		case c.Filepath != "":
			sb.WriteString(" — " + c.Filepath)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
