package results

import (
	"sort"
	"strings"

	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/template"
)

// Review statuses an external reader may attach to an answer.
const (
	StatusOK     = "OK"
	StatusReview = "REVISAR"
)

// ExternalAnswer is one question as reported by an external reader, such as
// a multimodal model looking at the sheet crop.
type ExternalAnswer struct {
	QuestionNumber int      `json:"question_number"`
	MarkedOptions  []string `json:"marked_options"`
	Status         string   `json:"status,omitempty"`
}

// ExternalReview lists the questions an external read flags for a human.
type ExternalReview struct {
	AmbiguousQuestions  []int `json:"ambiguous_questions"`
	UnreadableQuestions []int `json:"unreadable_questions"`
}

// FromExternalAnswers converts external answers into bubble results so they
// flow through Build unchanged. A declared option is marked (fill 1.0) when
// its label appears in the question's marked_options, compared without
// case; every other option is unmarked (fill 0.0). Labels that match no
// declared option are ignored, and questions absent from answers read as
// blank.
//
// The review lists are derived the way a grader triages the external read:
// more than one mark makes a question ambiguous; a review status with at
// most one mark, or no mark at all, makes it unreadable.
func FromExternalAnswers(items []template.QuestionItem, answers []ExternalAnswer) ([]omr.BubbleReadResult, ExternalReview) {
	byQuestion := make(map[int]ExternalAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionNumber] = a
	}

	ambiguous := map[int]bool{}
	unreadable := map[int]bool{}
	var out []omr.BubbleReadResult

	for _, item := range items {
		ans := byQuestion[item.QuestionNumber]
		marked := normalizeLabels(ans.MarkedOptions)

		hits := 0
		for col, opt := range item.Options {
			label := strings.ToUpper(strings.TrimSpace(opt.Label))
			r := omr.BubbleReadResult{
				BubbleID: opt.BubbleID,
				GroupID:  item.GroupID,
				Row:      item.Row,
				Col:      col,
				Label:    label,
				State:    omr.Unmarked,
			}
			if marked[label] {
				r.FillRatio = 1
				r.State = omr.Marked
				hits++
			}
			out = append(out, r)
		}

		review := strings.EqualFold(strings.TrimSpace(ans.Status), StatusReview)
		switch {
		case hits > 1:
			ambiguous[item.QuestionNumber] = true
		case hits == 0 || review:
			unreadable[item.QuestionNumber] = true
		}
	}

	return out, ExternalReview{
		AmbiguousQuestions:  sortedKeys(ambiguous),
		UnreadableQuestions: sortedKeys(unreadable),
	}
}

func normalizeLabels(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l = strings.ToUpper(strings.TrimSpace(l)); l != "" {
			set[l] = true
		}
	}
	return set
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
