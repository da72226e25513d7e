package challenge

import (
	"context"
	"fmt"
	"image"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/vision"
)

// glyphMinArea drops ink specks when boxing characters.
const glyphMinArea = 40

// NewSelection builds a solver for click challenges: pick a color, pick a
// shape, or click characters in order. glyphs may be nil when no reference
// set is installed; ordered character prompts then refresh until the
// budget runs out.
func NewSelection(sel config.SelectorsConfig, cfg config.ChallengeConfig, prompts PromptReader, glyphs *vision.GlyphSet, opts Options) *Solver {
	if prompts == nil {
		prompts = NewPromptReader(cfg.PromptOCRURL)
	}
	return newSolver(&selectionHandler{
		widgetSel:    sel.ShapeWidget,
		imageSel:     sel.ShapeImage,
		promptSel:    sel.ShapePrompt,
		confirmSel:   sel.ShapeConfirm,
		refreshSel:   sel.ShapeRefresh,
		minColorArea: cfg.MinColorArea,
		margin:       cfg.BoxMargin,
		prompts:      prompts,
		glyphs:       glyphs,
	}, opts)
}

type selectionHandler struct {
	widgetSel  string
	imageSel   string
	promptSel  string
	confirmSel string
	refreshSel string

	minColorArea int
	margin       int
	prompts      PromptReader
	glyphs       *vision.GlyphSet
}

func (h *selectionHandler) kind() Kind     { return KindSelection }
func (h *selectionHandler) widget() string { return h.widgetSel }

func (h *selectionHandler) analyze(ctx context.Context, p page.Page, s *Solver) (plan, error) {
	text, err := h.prompts.ReadPrompt(ctx, p, h.promptSel)
	if err != nil {
		return plan{}, fmt.Errorf("read prompt: %w", err)
	}
	pr, err := ParsePrompt(text)
	if err != nil {
		return plan{}, err
	}
	shot, err := p.Screenshot(ctx, h.imageSel)
	if err != nil {
		return plan{}, fmt.Errorf("screenshot challenge: %w", err)
	}
	img, err := vision.Decode(shot)
	if err != nil {
		return plan{}, err
	}
	box, err := p.BoundingBox(ctx, h.imageSel)
	if err != nil {
		return plan{}, fmt.Errorf("challenge box: %w", err)
	}

	points, err := h.locate(img, pr)
	if err != nil {
		return plan{}, err
	}
	s.opts.Logger.WithField("prompt", pr.Kind.String()).WithField("targets", len(points)).Debug("selection targets located")

	origin := img.Bounds().Min
	clicks := make([]page.Point, 0, len(points))
	for _, pt := range points {
		local := vision.Point{X: pt.X - float64(origin.X), Y: pt.Y - float64(origin.Y)}
		clicks = append(clicks, toScreen(local, img.Bounds().Size(), box))
	}
	return plan{clicks: clicks, confirm: h.confirmSel}, nil
}

// locate returns image-space click targets in the order they must be clicked.
func (h *selectionHandler) locate(img image.Image, pr Prompt) ([]vision.Point, error) {
	switch pr.Kind {
	case PromptColor:
		pt, err := vision.FindColorRegionCentroid(img, pr.Color, h.minColorArea)
		if err != nil {
			return nil, err
		}
		return []vision.Point{pt}, nil
	case PromptShape:
		pt, err := vision.FindShapeCentroid(img, pr.Shape, vision.ShapeOptions{})
		if err != nil {
			return nil, err
		}
		return []vision.Point{pt}, nil
	case PromptCharacters:
		if h.glyphs == nil || h.glyphs.Len() == 0 {
			return nil, fmt.Errorf("%w: no reference glyphs installed", ErrLowConfidence)
		}
		boxes := vision.DetectGlyphBoxes(img, glyphMinArea)
		matches := vision.ClassifyCharacterRegions(img, boxes, pr.Chars, h.glyphs, vision.ClassifyOptions{Margin: h.margin})
		if len(matches) < len(pr.Chars) {
			return nil, fmt.Errorf("%w: matched %d of %d characters", vision.ErrNotFound, len(matches), len(pr.Chars))
		}
		out := make([]vision.Point, 0, len(matches))
		for _, m := range matches {
			out = append(out, m.Center)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: prompt kind %v", vision.ErrUnsupported, pr.Kind)
}

func (h *selectionHandler) refresh(ctx context.Context, p page.Page) error {
	if h.refreshSel == "" {
		return nil
	}
	return p.Click(ctx, h.refreshSel)
}
