package cover_render

import (
	"bytes"
	"fmt"
	"image/color"
	"strings"

	"github.com/fogleman/gg"
	"github.com/google/uuid"

	types "github.com/yungbote/recall-backend/internal/domain"
)

const (
	coverWidth  = 1200
	coverHeight = 630

	coverMargin   = 80.0
	titleMaxRunes = 140
)

// render draws the card. Everything it consumes comes from the content row,
// so the same row always produces the same bytes.
func (p *Pipeline) render(row *types.Content) ([]byte, error) {
	dc := gg.NewContext(coverWidth, coverHeight)

	top, bottom := gradientColors(row.ID)
	grad := gg.NewLinearGradient(0, 0, 0, coverHeight)
	grad.AddColorStop(0, top)
	grad.AddColorStop(1, bottom)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, coverWidth, coverHeight)
	dc.Fill()

	title := strings.TrimSpace(row.Title)
	if title == "" {
		title = "Untitled"
	}
	title = truncateRunes(title, titleMaxRunes)

	dc.SetFontFace(p.titleFace)
	dc.SetColor(color.White)
	dc.DrawStringWrapped(title, coverMargin, 180, 0, 0, coverWidth-2*coverMargin, 1.3, gg.AlignLeft)

	if badge := tierBadge(row.Tier); badge != "" {
		const r = 56.0
		cx, cy := float64(coverWidth)-120, 120.0
		dc.SetRGBA(1, 1, 1, 0.22)
		dc.DrawCircle(cx, cy, r)
		dc.Fill()

		dc.SetFontFace(p.badgeFace)
		dc.SetColor(color.White)
		tw, th := dc.MeasureString(badge)
		dc.DrawString(badge, cx-(tw/2), cy+(th/2)-4)
	}

	dc.SetFontFace(p.captionFace)
	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawString(strings.ToLower(row.ContentType), coverMargin, coverHeight-56)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// gradientColors maps the content id onto two mid-range colors so cards are
// distinct per content but stable across reruns.
func gradientColors(id uuid.UUID) (color.Color, color.Color) {
	b := id[:]
	top := color.NRGBA{
		R: 40 + b[0]%160,
		G: 40 + b[1]%160,
		B: 40 + b[2]%160,
		A: 255,
	}
	bottom := color.NRGBA{
		R: 20 + b[3]%120,
		G: 20 + b[4]%120,
		B: 20 + b[5]%120,
		A: 255,
	}
	return top, bottom
}

func tierBadge(tier string) string {
	t := strings.ToUpper(strings.TrimSpace(tier))
	if t == "" {
		return ""
	}
	return t[:1]
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
