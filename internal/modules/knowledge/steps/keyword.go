package steps

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	types "github.com/primestride/atlas-backend/internal/domain"
)

const (
	keywordTitleScore     = 120
	keywordPerOccurrence  = 6
	keywordMaxOccurrences = 12
	keywordEarlyBonus     = 18
	keywordEarlyWindow    = 800
)

const (
	WhyTitle = "keyword in title"
	WhyEarly = "match appears early"
)

// ScoreKeyword scores one document against query. ok is false when neither
// the title nor the content contains the query.
func ScoreKeyword(query, title, content string) (score int, why []string, ok bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0, nil, false
	}
	lt := strings.ToLower(title)
	lc := strings.ToLower(content)
	inTitle := strings.Contains(lt, q)
	first := strings.Index(lc, q)
	if !inTitle && first < 0 {
		return 0, nil, false
	}

	why = make([]string, 0, 3)
	if inTitle {
		score += keywordTitleScore
		why = append(why, WhyTitle)
	}
	if first >= 0 {
		occ := strings.Count(lc, q)
		if occ > keywordMaxOccurrences {
			occ = keywordMaxOccurrences
		}
		score += occ * keywordPerOccurrence
		why = append(why, fmt.Sprintf("keyword in content (%d)", strings.Count(lc, q)))
		if utf8.RuneCountInString(lc[:first]) < keywordEarlyWindow {
			score += keywordEarlyBonus
			why = append(why, WhyEarly)
		}
	}
	return score, why, true
}

// RankKeyword keeps matching documents sorted by descending score. Ties keep
// the input order.
func RankKeyword(query string, docs []*types.Document) []RetrievalResult {
	out := make([]RetrievalResult, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		score, why, ok := ScoreKeyword(query, d.Title, d.Content)
		if !ok {
			continue
		}
		out = append(out, RetrievalResult{
			DocumentID: d.ID,
			Title:      d.Title,
			DocType:    d.DocType,
			Score:      float64(score),
			Snippet:    ExtractSnippet(d.Content, query),
			WhyMatched: why,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
