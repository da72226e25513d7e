package challenge

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/vision"
)

// NewSlider builds a solver for the drag-to-fit puzzle.
func NewSlider(sel config.SelectorsConfig, cfg config.ChallengeConfig, opts Options) *Solver {
	widget := sel.SliderWidget
	if widget == "" {
		widget = sel.SliderButton
	}
	return newSolver(&sliderHandler{
		widgetSel:  widget,
		button:     sel.SliderButton,
		piece:      sel.SliderPiece,
		background: sel.SliderBackground,
		refreshSel: sel.SliderRefresh,
		minScore:   cfg.MinSimilarity,
		overshoot:  float64(cfg.SlideDifference),
	}, opts)
}

type sliderHandler struct {
	// widgetSel is the popup holding the puzzle; it closes once the drag fits.
	widgetSel  string
	button     string
	piece      string
	background string
	refreshSel string
	minScore   float64
	// overshoot is how far past the gap the drag travels before settling.
	overshoot float64
}

func (h *sliderHandler) kind() Kind     { return KindSlider }
func (h *sliderHandler) widget() string { return h.widgetSel }

func (h *sliderHandler) analyze(ctx context.Context, p page.Page, s *Solver) (plan, error) {
	piece, err := h.image(ctx, p, h.piece)
	if err != nil {
		return plan{}, err
	}
	bg, err := h.image(ctx, p, h.background)
	if err != nil {
		return plan{}, err
	}
	bgBox, err := p.BoundingBox(ctx, h.background)
	if err != nil {
		return plan{}, fmt.Errorf("background box: %w", err)
	}
	pieceBox, err := p.BoundingBox(ctx, h.piece)
	if err != nil {
		return plan{}, fmt.Errorf("piece box: %w", err)
	}
	btnBox, err := p.BoundingBox(ctx, h.button)
	if err != nil {
		return plan{}, fmt.Errorf("slider box: %w", err)
	}
	natural := bg.Bounds().Size()
	if natural.X == 0 || bgBox.Width <= 0 || bgBox.Height <= 0 {
		return plan{}, fmt.Errorf("%w: background not rendered", ErrLowConfidence)
	}

	top := int(math.Round((pieceBox.Y - bgBox.Y) * float64(natural.Y) / bgBox.Height))
	m, err := vision.FindSliderOffset(piece, bg, vision.SliderOptions{MinScore: h.minScore, Top: top})
	if err != nil {
		return plan{}, err
	}

	ratio := bgBox.Width / float64(natural.X)
	distance := float64(m.Offset)*ratio - (pieceBox.X - bgBox.X)
	if distance <= 0 {
		return plan{}, fmt.Errorf("%w: non-positive drag %.1f", ErrLowConfidence, distance)
	}
	s.opts.Logger.WithField("distance", math.Round(distance)).WithField("score", m.Score).Debug("slider gap located")

	from := btnBox.Center()
	return plan{dragFrom: from, drag: s.trajectory(from, distance, h.overshoot)}, nil
}

// image decodes the element's inline src, falling back to a screenshot when
// the source is a plain URL.
func (h *sliderHandler) image(ctx context.Context, p page.Page, selector string) (image.Image, error) {
	src, err := p.Attribute(ctx, selector, "src")
	if err != nil {
		return nil, fmt.Errorf("%s src: %w", selector, err)
	}
	if strings.HasPrefix(src, "data:") {
		img, err := vision.DecodeDataURI(src)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", selector, err)
		}
		return img, nil
	}
	shot, err := p.Screenshot(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", selector, err)
	}
	return vision.Decode(shot)
}

// refresh loads a new puzzle. A rejected drag does that on its own, but an
// unanswered analysis leaves the same images in place.
func (h *sliderHandler) refresh(ctx context.Context, p page.Page) error {
	if h.refreshSel == "" {
		return nil
	}
	return p.Click(ctx, h.refreshSel)
}
