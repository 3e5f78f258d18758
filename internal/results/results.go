// Package results maps bubble classifications onto the question structure
// of a template, resolves multi-mark conflicts and summarizes read quality.
package results

import (
	"math"
	"sort"
	"strings"

	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/template"
)

// maxListedOrphans bounds how many orphaned ids an error message names.
const maxListedOrphans = 5

// Option is one answer option of a question after conflict resolution.
type Option struct {
	BubbleID  string    `json:"bubble_id"`
	Label     string    `json:"label"`
	State     omr.State `json:"state"`
	FillRatio float64   `json:"fill_ratio"`
}

// Question is the resolved answer to one question.
type Question struct {
	QuestionNumber int      `json:"question_number"`
	GroupID        string   `json:"group_id"`
	Row            int      `json:"row"`
	Options        []Option `json:"options"`

	// MarkedOptions holds at most one label.
	MarkedOptions []string `json:"marked_options"`

	// AmbiguousOptions lists labels read as ambiguous, followed by marked
	// labels demoted during conflict resolution.
	AmbiguousOptions []string `json:"ambiguous_options"`
}

// QualitySummary counts option states after conflict resolution.
type QualitySummary struct {
	TotalQuestions     int `json:"total_questions"`
	TotalOptions       int `json:"total_options"`
	MarkedOptions      int `json:"marked_options"`
	UnmarkedOptions    int `json:"unmarked_options"`
	AmbiguousOptions   int `json:"ambiguous_options"`
	AmbiguousQuestions int `json:"ambiguous_questions"`
}

// Answers is the question-level outcome of a read.
type Answers struct {
	Questions []Question     `json:"questions"`
	Summary   QualitySummary `json:"quality_summary"`
}

// NeedsReview returns the numbers of questions with no marked option or at
// least one ambiguous option, ascending.
func (a *Answers) NeedsReview() []int {
	var out []int
	for _, q := range a.Questions {
		if len(q.MarkedOptions) == 0 || len(q.AmbiguousOptions) > 0 {
			out = append(out, q.QuestionNumber)
		}
	}
	sort.Ints(out)
	return out
}

// Build binds every declared option to exactly one bubble result.
//
// # Algorithm
//
//  1. Index results by bubble id. A repeated id is a BubbleRead error.
//  2. Walk the questions in order. Every option must have a result
//     (BubbleRead "missing bubble result") and must not appear in an
//     earlier question (InvalidMetadata "duplicate bubble_id").
//  3. Results no option claimed are orphans (BubbleRead).
//  4. The declared option count must equal the result count (BubbleRead).
//  5. When a question has several marked options, the one with the highest
//     fill ratio stays marked and the others become ambiguous. On an exact
//     tie the first declared option wins.
//  6. Count option states and questions with any ambiguous option.
//
// Any failure aborts the whole build; no partial answers are returned.
func Build(items []template.QuestionItem, bubbleResults []omr.BubbleReadResult) (*Answers, error) {
	if len(items) == 0 {
		return nil, omr.InvalidMetadataf("question_items must be a non-empty list")
	}

	index := make(map[string]int, len(bubbleResults))
	for i, r := range bubbleResults {
		if _, dup := index[r.BubbleID]; dup {
			return nil, omr.BubbleReadf("duplicate bubble result detected: %s", r.BubbleID)
		}
		index[r.BubbleID] = i
	}

	claimed := make([]bool, len(bubbleResults))
	owner := make(map[string]int, len(bubbleResults))
	declared := 0

	questions := make([]Question, 0, len(items))
	for _, item := range items {
		if len(item.Options) == 0 {
			return nil, omr.InvalidMetadataf("question %d defines no options", item.QuestionNumber)
		}
		q := Question{
			QuestionNumber:   item.QuestionNumber,
			GroupID:          item.GroupID,
			Row:              item.Row,
			Options:          make([]Option, 0, len(item.Options)),
			MarkedOptions:    []string{},
			AmbiguousOptions: []string{},
		}
		for _, opt := range item.Options {
			if opt.BubbleID == "" {
				return nil, omr.InvalidMetadataf("question %d has an option without bubble_id", item.QuestionNumber)
			}
			if prev, dup := owner[opt.BubbleID]; dup {
				return nil, omr.InvalidMetadataf("duplicate bubble_id in question_items: %s (questions %d and %d)",
					opt.BubbleID, prev, item.QuestionNumber)
			}
			owner[opt.BubbleID] = item.QuestionNumber

			i, ok := index[opt.BubbleID]
			if !ok {
				return nil, omr.BubbleReadf("missing bubble result for question option bubble_id=%s", opt.BubbleID)
			}
			claimed[i] = true
			declared++

			r := bubbleResults[i]
			label := opt.Label
			if label == "" {
				label = r.Label
			}
			q.Options = append(q.Options, Option{
				BubbleID:  r.BubbleID,
				Label:     label,
				State:     r.State,
				FillRatio: round6(r.FillRatio),
			})
		}
		resolve(&q)
		questions = append(questions, q)
	}

	var orphans []string
	for i, ok := range claimed {
		if !ok {
			orphans = append(orphans, bubbleResults[i].BubbleID)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		listed := orphans
		if len(listed) > maxListedOrphans {
			listed = listed[:maxListedOrphans]
		}
		return nil, omr.BubbleReadf("bubble results contain %d ids not present in question_items: %s",
			len(orphans), strings.Join(listed, ", "))
	}
	if declared != len(bubbleResults) {
		return nil, omr.BubbleReadf("bubble count mismatch: expected=%d, reported=%d", declared, len(bubbleResults))
	}

	return &Answers{Questions: questions, Summary: Summarize(questions)}, nil
}

// resolve applies the single-winner rule to one question and fills its
// marked and ambiguous label lists.
func resolve(q *Question) {
	winner := -1
	marked := 0
	for i, o := range q.Options {
		switch o.State {
		case omr.Marked:
			marked++
			if winner < 0 || o.FillRatio > q.Options[winner].FillRatio {
				winner = i
			}
		case omr.Ambiguous:
			q.AmbiguousOptions = appendUnique(q.AmbiguousOptions, o.Label)
		}
	}
	if winner < 0 {
		return
	}
	if marked > 1 {
		for i := range q.Options {
			if i != winner && q.Options[i].State == omr.Marked {
				q.Options[i].State = omr.Ambiguous
				q.AmbiguousOptions = appendUnique(q.AmbiguousOptions, q.Options[i].Label)
			}
		}
	}
	q.MarkedOptions = []string{q.Options[winner].Label}
}

// Summarize counts option states across resolved questions.
func Summarize(questions []Question) QualitySummary {
	s := QualitySummary{TotalQuestions: len(questions)}
	for _, q := range questions {
		for _, o := range q.Options {
			s.TotalOptions++
			switch o.State {
			case omr.Marked:
				s.MarkedOptions++
			case omr.Unmarked:
				s.UnmarkedOptions++
			case omr.Ambiguous:
				s.AmbiguousOptions++
			}
		}
		if len(q.AmbiguousOptions) > 0 {
			s.AmbiguousQuestions++
		}
	}
	return s
}

func appendUnique(list []string, label string) []string {
	for _, l := range list {
		if l == label {
			return list
		}
	}
	return append(list, label)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
