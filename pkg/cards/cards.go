// Package cards renders social share images for published posts.
package cards

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Card is what gets drawn on a share image.
type Card struct {
	Title       string
	Category    string
	Site        string
	Breaking    bool
	PublishedAt time.Time
}

// Renderer draws cards at the Open Graph size.
type Renderer struct {
	Width         float64
	Height        float64
	Pad           float64
	AccentW       float64
	TitleSize     float64
	LabelSize     float64
	FooterSize    float64
	MaxTitleLines int
}

// NewRenderer creates a 1200x630 renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		Width:         1200,
		Height:        630,
		Pad:           72,
		AccentW:       14,
		TitleSize:     58,
		LabelSize:     26,
		FooterSize:    24,
		MaxTitleLines: 4,
	}
}

// DefaultAccent is used for categories without their own colour.
const DefaultAccent = "#4a9eff"

var accents = map[string]string{
	"Política":       "#e63946",
	"Economia":       "#2a9d8f",
	"Esportes":       "#43aa8b",
	"Tecnologia":     "#4a9eff",
	"Saúde":          "#00b4d8",
	"Educação":       "#f4a261",
	"Cultura":        "#b5179e",
	"Entretenimento": "#f72585",
	"Internacional":  "#577590",
	"Ciência":        "#7209b7",
	"Meio Ambiente":  "#52b788",
	"Segurança":      "#f3722c",
}

// AccentFor returns the accent colour of a category.
func AccentFor(category string) color.Color {
	if hex, ok := accents[category]; ok {
		return hexColor(hex)
	}
	return hexColor(DefaultAccent)
}

// Render draws c and returns the image.
func (r *Renderer) Render(c Card) (image.Image, error) {
	dc := gg.NewContext(int(r.Width), int(r.Height))

	r.drawBackground(dc)
	accent := AccentFor(c.Category)
	dc.SetColor(accent)
	dc.DrawRectangle(0, 0, r.AccentW, r.Height)
	dc.Fill()

	if err := setFont(dc, r.LabelSize, true); err != nil {
		return nil, err
	}
	y := r.Pad + r.LabelSize
	label := strings.ToUpper(c.Category)
	dc.SetColor(accent)
	dc.DrawString(label, r.Pad, y)
	if c.Breaking {
		lw, _ := dc.MeasureString(label)
		r.drawBadge(dc, "URGENTE", r.Pad+lw+24, y)
	}

	if err := setFont(dc, r.TitleSize, true); err != nil {
		return nil, err
	}
	dc.SetColor(color.White)
	y += r.TitleSize * 1.6
	for _, line := range r.titleLines(dc, c.Title) {
		dc.DrawString(line, r.Pad, y)
		y += r.TitleSize * 1.25
	}

	if err := r.drawFooter(dc, c); err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// WritePNG renders c as PNG into w.
func (r *Renderer) WritePNG(w io.Writer, c Card) error {
	img, err := r.Render(c)
	if err != nil {
		return err
	}
	return gg.NewContextForImage(img).EncodePNG(w)
}

// titleLines wraps title to the card width and clamps it to MaxTitleLines,
// ending a clamped title with an ellipsis.
func (r *Renderer) titleLines(dc *gg.Context, title string) []string {
	maxW := r.Width - 2*r.Pad
	lines := dc.WordWrap(strings.Join(strings.Fields(title), " "), maxW)
	if len(lines) <= r.MaxTitleLines {
		return lines
	}
	lines = lines[:r.MaxTitleLines]
	last := []rune(lines[len(lines)-1])
	for len(last) > 0 {
		candidate := strings.TrimRight(string(last), " ,.;:") + "…"
		if w, _ := dc.MeasureString(candidate); w <= maxW {
			lines[len(lines)-1] = candidate
			return lines
		}
		last = last[:len(last)-1]
	}
	lines[len(lines)-1] = "…"
	return lines
}

// ---- Drawing helpers ----

func (r *Renderer) drawBackground(dc *gg.Context) {
	grad := gg.NewLinearGradient(0, 0, r.Width, r.Height)
	grad.AddColorStop(0, hexColor("#0f172a"))
	grad.AddColorStop(1, hexColor("#1e293b"))
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, r.Width, r.Height)
	dc.Fill()
}

func (r *Renderer) drawBadge(dc *gg.Context, text string, x, baseline float64) {
	tw, th := dc.MeasureString(text)
	padX, padY := 14.0, 8.0
	dc.SetColor(hexColor("#ff2d55"))
	dc.DrawRoundedRectangle(x, baseline-th-padY, tw+2*padX, th+2*padY, 6)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawString(text, x+padX, baseline)
}

func (r *Renderer) drawFooter(dc *gg.Context, c Card) error {
	y := r.Height - r.Pad

	dc.SetColor(hexColor("#ffffff30"))
	dc.SetLineWidth(1)
	dc.DrawLine(r.Pad, y-r.FooterSize*1.6, r.Width-r.Pad, y-r.FooterSize*1.6)
	dc.Stroke()

	if err := setFont(dc, r.FooterSize, false); err != nil {
		return err
	}
	dc.SetColor(hexColor("#94a3b8"))
	if c.Site != "" {
		dc.DrawString(c.Site, r.Pad, y)
	}
	if !c.PublishedAt.IsZero() {
		dc.DrawStringAnchored(c.PublishedAt.Format("02/01/2006 15:04"), r.Width-r.Pad, y, 1, 0)
	}
	return nil
}

// ---- Helpers ----

var (
	fontsOnce sync.Once
	regular   *truetype.Font
	bold      *truetype.Font
	fontsErr  error
)

// setFont loads the embedded Go fonts, which cover Portuguese accents on any host.
func setFont(dc *gg.Context, size float64, isBold bool) error {
	fontsOnce.Do(func() {
		if regular, fontsErr = truetype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		bold, fontsErr = truetype.Parse(gobold.TTF)
	})
	if fontsErr != nil {
		return fmt.Errorf("load fonts: %w", fontsErr)
	}
	f := regular
	if isBold {
		f = bold
	}
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull}))
	return nil
}

func hexColor(hex string) color.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 8 {
		var r, g, b, a uint8
		fmt.Sscanf(hex, "%02x%02x%02x%02x", &r, &g, &b, &a)
		return color.NRGBA{r, g, b, a}
	}
	var cr, cg, cb uint8
	fmt.Sscanf(hex, "%02x%02x%02x", &cr, &cg, &cb)
	return color.RGBA{cr, cg, cb, 255}
}
