package template

import (
	"sort"

	"github.com/ironsheep/omr-reader/internal/geometry"
)

// Template is a validated answer-sheet description.
//
// Bubbles live in a flat slice; question options and lookups refer to them
// by index. A Template is immutable after Parse returns and may be shared by
// concurrent reads.
type Template struct {
	TemplateID   string
	Version      string
	DictionaryID string
	Page         geometry.Page

	// Markers is indexed by geometry.Corner.
	Markers [4]geometry.MarkerPlacement

	Bubbles   []geometry.BubblePlacement
	Questions []QuestionItem

	AuxiliaryBlocks []AuxiliaryBlock

	// MainBlock is the bounding box of the question grid, when the template
	// declares one. It is used to crop the sheet for external readers.
	MainBlock *geometry.Rect

	index map[string]int
}

// QuestionItem binds a question number to the bubbles that answer it.
type QuestionItem struct {
	QuestionNumber int      `json:"question_number"`
	GroupID        string   `json:"group_id"`
	Row            int      `json:"row"`
	Options        []Option `json:"options"`
}

// Option references one bubble of a question.
type Option struct {
	BubbleID string `json:"bubble_id"`
	Label    string `json:"label"`

	// Index is the position of the bubble in Template.Bubbles, or -1 when
	// the option was built outside a Template.
	Index int `json:"-"`
}

// BubbleIndex returns the arena position of a bubble id.
func (t *Template) BubbleIndex(id string) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// Marker returns the marker anchored at corner c.
func (t *Template) Marker(c geometry.Corner) geometry.MarkerPlacement {
	return t.Markers[c]
}

// MarkerIDs returns the four expected marker ids in ascending order.
func (t *Template) MarkerIDs() []int {
	ids := make([]int, 0, 4)
	for _, m := range t.Markers {
		ids = append(ids, m.MarkerID)
	}
	sort.Ints(ids)
	return ids
}

// OMRBlocks returns the auxiliary blocks read by bubble classification.
func (t *Template) OMRBlocks() []AuxiliaryBlock {
	var out []AuxiliaryBlock
	for _, b := range t.AuxiliaryBlocks {
		if b.BlockType == BlockTypeOMR {
			out = append(out, b)
		}
	}
	return out
}

// OptionCount returns the number of options declared across all questions.
func (t *Template) OptionCount() int {
	n := 0
	for _, q := range t.Questions {
		n += len(q.Options)
	}
	return n
}
