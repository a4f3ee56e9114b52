package grading

import (
	"strconv"
	"strings"
)

// Question kinds understood by the default grader.
const (
	KindMultipleChoice = "MultipleChoice"
	KindTrueFalse      = "TrueFalse"
	KindText           = "Text"
)

// Choice is the grading view of a question option.
type Choice struct {
	ID        string
	Text      string
	IsCorrect bool
}

// Q is a minimal view of a question needed for grading.
// Keep this in sync with exam.Question.
type Q struct {
	Kind    string
	Points  int
	Options []Choice
}

// Response is what the student submitted for one question. At most one field
// is expected to be set, but strategies only look at the one they need.
type Response struct {
	Text             *string
	SelectedOptionID *string
	Boolean          *bool
}

// Result is the outcome of grading a single question response.
type Result struct {
	AutoPoints  int      // points awarded automatically
	MaxPoints   int      // the question's max points
	NeedsManual bool     // true if teacher review is required
	Feedback    []string // optional notes
}

// Strategy grades a single question kind.
type Strategy interface {
	Grade(q Q, r Response) Result
}

// Grader routes by question kind to the correct Strategy. Grading never fails:
// unknown kinds and malformed responses score zero.
type Grader struct {
	strategies map[string]Strategy
}

func (g *Grader) Grade(q Q, r Response) Result {
	s, ok := g.strategies[q.Kind]
	if !ok {
		return Result{MaxPoints: q.Points, Feedback: []string{"no strategy for kind " + q.Kind}}
	}
	return s.Grade(q, r)
}

// Score returns only the automatically awarded points.
func (g *Grader) Score(q Q, r Response) int {
	return g.Grade(q, r).AutoPoints
}

// Engine options

type Option func(*config)

type config struct {
	StrictTrueFalse bool // parse the correct option text instead of substring match
}

// WithStrictTrueFalse makes TrueFalse questions read the expected value by
// parsing the correct option's text ("true", "False", "1", ...) rather than
// looking for the substring "true".
func WithStrictTrueFalse(b bool) Option { return func(c *config) { c.StrictTrueFalse = b } }

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) *Grader {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &Grader{
		strategies: map[string]Strategy{
			KindMultipleChoice: multipleChoiceStrategy{},
			KindTrueFalse:      trueFalseStrategy{strict: cfg.StrictTrueFalse},
			KindText:           textStrategy{},
		},
	}
}

// Total sums the automatic points of a set of results.
func Total(results []Result) int {
	sum := 0
	for _, r := range results {
		sum += r.AutoPoints
	}
	return sum
}

// --- Strategies ---

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q Q, r Response) Result {
	res := Result{MaxPoints: q.Points}
	if r.SelectedOptionID == nil {
		return res
	}
	for _, o := range q.Options {
		if o.ID == *r.SelectedOptionID {
			if o.IsCorrect {
				res.AutoPoints = q.Points
			}
			return res
		}
	}
	res.Feedback = append(res.Feedback, "selected option does not belong to question")
	return res
}

type trueFalseStrategy struct{ strict bool }

func (s trueFalseStrategy) Grade(q Q, r Response) Result {
	res := Result{MaxPoints: q.Points}
	if r.Boolean == nil {
		return res
	}
	correct, ok := firstCorrect(q.Options)
	if !ok {
		res.Feedback = append(res.Feedback, "no option flagged correct")
		return res
	}
	var expected bool
	if s.strict {
		v, err := strconv.ParseBool(strings.TrimSpace(correct.Text))
		if err != nil {
			res.Feedback = append(res.Feedback, "correct option text is not a boolean")
			return res
		}
		expected = v
	} else {
		expected = strings.Contains(strings.ToLower(correct.Text), "true")
	}
	if *r.Boolean == expected {
		res.AutoPoints = q.Points
	}
	return res
}

type textStrategy struct{}

func (textStrategy) Grade(q Q, _ Response) Result {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}
}

// helpers

func firstCorrect(opts []Choice) (Choice, bool) {
	for _, o := range opts {
		if o.IsCorrect {
			return o, true
		}
	}
	return Choice{}, false
}
