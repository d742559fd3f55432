package cards

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/fogleman/gg"
)

func TestRender(t *testing.T) {
	r := NewRenderer()
	img, err := r.Render(Card{
		Title:       "Câmara aprova reforma tributária em segundo turno",
		Category:    "Política",
		Site:        "portal.example",
		Breaking:    true,
		PublishedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1200 || b.Dy() != 630 {
		t.Fatalf("size = %dx%d, want 1200x630", b.Dx(), b.Dy())
	}

	got := color.RGBAModel.Convert(img.At(4, 315)).(color.RGBA)
	want := color.RGBAModel.Convert(AccentFor("Política")).(color.RGBA)
	if got != want {
		t.Errorf("accent bar = %v, want %v", got, want)
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer().WritePNG(&buf, Card{Title: "Teste", Category: "Desconhecida"}); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := color.RGBAModel.Convert(img.At(4, 100)).(color.RGBA)
	want := color.RGBAModel.Convert(hexColor(DefaultAccent)).(color.RGBA)
	if got != want {
		t.Errorf("default accent = %v, want %v", got, want)
	}
}

func TestTitleLinesClamp(t *testing.T) {
	r := NewRenderer()
	dc := gg.NewContext(int(r.Width), int(r.Height))
	if err := setFont(dc, r.TitleSize, true); err != nil {
		t.Fatal(err)
	}

	short := r.titleLines(dc, "Chuva forte em São Paulo")
	if len(short) != 1 {
		t.Errorf("short title wrapped into %d lines", len(short))
	}

	long := r.titleLines(dc, strings.Repeat("Governo anuncia investimentos ", 20))
	if len(long) != r.MaxTitleLines {
		t.Fatalf("got %d lines, want %d", len(long), r.MaxTitleLines)
	}
	last := long[len(long)-1]
	if !strings.HasSuffix(last, "…") {
		t.Errorf("last line %q should end with an ellipsis", last)
	}
	if w, _ := dc.MeasureString(last); w > r.Width-2*r.Pad {
		t.Errorf("last line overflows: %.0f", w)
	}
}

func TestHexColor(t *testing.T) {
	if got := hexColor("#ff0000"); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("hexColor(#ff0000) = %v", got)
	}
	if got := hexColor("ffffff30"); got != (color.NRGBA{255, 255, 255, 0x30}) {
		t.Errorf("hexColor(ffffff30) = %v", got)
	}
}
