package pipeline

import (
	"image"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/template"
)

// Annotate draws the classified bubbles and the detected markers over the
// aligned sheet of a detailed read. Auxiliary bubbles are drawn too when
// the template declares OMR blocks.
func (r *Reader) Annotate(out *Outcome, tpl *template.Template, p imaging.Palette) (*image.RGBA, error) {
	placements := make(map[string]geometry.BubblePlacement, len(tpl.Bubbles))
	for _, b := range tpl.Bubbles {
		placements[b.BubbleID] = b
	}

	classified := append([]omr.BubbleReadResult(nil), out.Bubbles...)
	if rep := out.Report.Auxiliary; rep != nil {
		for _, block := range tpl.OMRBlocks() {
			synth, err := template.SynthesizeBubbles(block)
			if err != nil {
				return nil, omr.InvalidMetadataf("%v", err)
			}
			for _, b := range synth {
				placements[b.BubbleID] = b
			}
		}
		for _, block := range rep.Blocks {
			classified = append(classified, block.Bubbles...)
		}
	}

	marks := make([]imaging.Mark, 0, len(classified))
	for _, res := range classified {
		b, ok := placements[res.BubbleID]
		if !ok {
			continue
		}
		marks = append(marks, r.mark(b, res.State, res.FillRatio))
	}

	h := out.Alignment.Homography
	quads := make([]geometry.Quad, 0, len(out.Alignment.Markers))
	for _, m := range out.Alignment.Markers {
		var q geometry.Quad
		ok := true
		for i, c := range m.Corners {
			p, valid := h.Apply(c)
			q[i] = p
			ok = ok && valid
		}
		if ok {
			quads = append(quads, q)
		}
	}

	return imaging.Annotate(out.Alignment.Aligned, marks, quads, p), nil
}

func (r *Reader) mark(b geometry.BubblePlacement, state omr.State, ratio float64) imaging.Mark {
	pc := b.PixelCircle(r.cfg.PxPerMM, r.cfg.InnerRadiusFactor)
	return imaging.Mark{CX: pc.CX, CY: pc.CY, Radius: pc.Radius, Inner: pc.Inner, State: state, FillRatio: ratio}
}
