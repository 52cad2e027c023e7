package prediction

// Prediction is a single label/score pair returned by a remote classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the full table a classifier returns for one image, in the order
// the remote service sent it. Scores are not guaranteed to be sorted.
type Result []Prediction

// Top returns the entry with the highest score. Ties go to the entry that
// appears first. The boolean is false when the result is empty.
func Top(result Result) (Prediction, bool) {
	if len(result) == 0 {
		return Prediction{}, false
	}
	best := result[0]
	for _, p := range result[1:] {
		if p.Score > best.Score {
			best = p
		}
	}
	return best, true
}

// Outcome is what a Reducer derives from a result.
type Outcome struct {
	Top     *Prediction
	Verdict *bool
}

// Reducer turns a result table into the value a feature reports.
type Reducer interface {
	Reduce(result Result) Outcome
}

// Argmax reports the top-scoring entry.
type Argmax struct{}

// Reduce implements Reducer.
func (Argmax) Reduce(result Result) Outcome {
	top, ok := Top(result)
	if !ok {
		return Outcome{}
	}
	return Outcome{Top: &top}
}

// ArtificialLabel and ArtificialThreshold drive the "is this artificial" verdict.
const (
	ArtificialLabel     = "artificial"
	ArtificialThreshold = 0.20
)

// LabelThreshold matches when any entry carries Label with a score strictly
// above Threshold, whether or not that entry is the overall top.
type LabelThreshold struct {
	Label     string
	Threshold float64
}

// ArtificialRule is the verdict rule used by the is-artificial feature.
var ArtificialRule = LabelThreshold{Label: ArtificialLabel, Threshold: ArtificialThreshold}

// Match reports whether the rule fires for result.
func (r LabelThreshold) Match(result Result) bool {
	for _, p := range result {
		if p.Label == r.Label && p.Score > r.Threshold {
			return true
		}
	}
	return false
}

// Reduce implements Reducer. An empty result yields no verdict.
func (r LabelThreshold) Reduce(result Result) Outcome {
	if len(result) == 0 {
		return Outcome{}
	}
	verdict := r.Match(result)
	out := Outcome{Verdict: &verdict}
	if top, ok := Top(result); ok {
		out.Top = &top
	}
	return out
}
