// Package content is the portal's content store: categories, posts and the
// gateway the automation pipeline writes through.
package content

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCategory receives analyses whose category is not recognised.
const DefaultCategory = "Internacional"

// Categories is the fixed editorial enum, in display order.
var Categories = []string{
	"Política",
	"Economia",
	"Esportes",
	"Tecnologia",
	"Saúde",
	"Educação",
	"Cultura",
	"Entretenimento",
	"Internacional",
	"Ciência",
	"Meio Ambiente",
	"Segurança",
}

var important = map[string]bool{
	"Política":      true,
	"Economia":      true,
	"Saúde":         true,
	"Internacional": true,
}

// Category is a row of the categories table.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// IsValidCategory reports whether name is one of the fixed categories (exact match).
func IsValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// NormalizeCategory maps name onto the enum, tolerating case and accent
// differences. Unknown names become DefaultCategory.
func NormalizeCategory(name string) string {
	key := Slugify(name)
	for _, c := range Categories {
		if Slugify(c) == key {
			return c
		}
	}
	return DefaultCategory
}

// IsImportant reports whether the category earns the relevance bonus.
func IsImportant(name string) bool {
	return important[name]
}

// FindCategory returns the category whose name matches, ignoring case, or nil.
func FindCategory(cats []Category, name string) *Category {
	for i := range cats {
		if strings.EqualFold(cats[i].Name, name) {
			return &cats[i]
		}
	}
	return nil
}

// Slugify lowercases s, strips accents and joins words with dashes.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
