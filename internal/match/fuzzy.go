package match

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// MinScore is the minimum token-set similarity (0-100) for a query to count
// as a match.
const MinScore = 70

// Result is the winning catalog entry for a query.
type Result struct {
	AppID int64
	Name  string
	Score int
}

// Resolve finds the best approximate match for query among the keys of
// universe, using a token-set scorer so word order and repeated tokens don't
// matter ("cyberpunk" matches "Cyberpunk 2077").
//
// The universe is caller-supplied on purpose: commands resolve against the
// full catalog, unsubscribe resolves against just the caller's own
// subscriptions. An empty universe simply yields no match.
func Resolve(query string, universe map[string]int64) (Result, bool) {
	if query == "" || len(universe) == 0 {
		return Result{}, false
	}

	best := Result{Score: -1}
	for name, id := range universe {
		score := fuzzy.TokenSetRatio(query, name)
		if score > best.Score {
			best = Result{AppID: id, Name: name, Score: score}
		}
	}
	if best.Score < MinScore {
		return Result{}, false
	}
	return best, true
}
