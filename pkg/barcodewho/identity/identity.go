// Package identity defines the composite key that names a recurring
// participant and the helpers around it: barcode name detection and
// mapping of localized category strings to canonical categories.
package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Key identifies a participant: an account handle combined with the
// category (side) it played. Keys are comparable and can be used as map keys.
type Key struct {
	Handle   string
	Category string
}

// Less orders keys by handle, then category.
func (k Key) Less(o Key) bool {
	if k.Handle != o.Handle {
		return k.Handle < o.Handle
	}
	return k.Category < o.Category
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k.Handle == "" && k.Category == ""
}

// String is for display only; keys are never parsed back from it.
func (k Key) String() string {
	return fmt.Sprintf("(%s, %s)", k.Handle, k.Category)
}

// Sort sorts keys in place using Less.
func Sort(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// IsBarcode reports whether every character of name is one of the glyphs
// that render as an identical vertical stroke ('l' and 'I').
func IsBarcode(name string) bool {
	for _, r := range name {
		if r != 'l' && r != 'I' {
			return false
		}
	}
	return true
}

// ErrUnknownCategory is returned by a strict CategoryMapper for raw
// category strings that have no mapping.
var ErrUnknownCategory = fmt.Errorf("unknown category: %w", internalerr.ErrInvalidInput)

// DefaultLocales maps localized category names seen in recordings to the
// canonical English names.
func DefaultLocales() map[string]string {
	return map[string]string{
		"Terran":   "Terran",
		"Protoss":  "Protoss",
		"Zerg":     "Zerg",
		"Терраны":  "Terran",
		"Протоссы": "Protoss",
		"Зерги":    "Zerg",
	}
}

// CategoryMapper turns raw category strings into canonical categories.
type CategoryMapper struct {
	table  map[string]string
	strict bool
}

// NewCategoryMapper builds a mapper from a locale table. Canonical values are
// also accepted as inputs. When strict is true, unmapped inputs are an error;
// otherwise they pass through unchanged.
func NewCategoryMapper(table map[string]string, strict bool) *CategoryMapper {
	m := &CategoryMapper{
		table:  make(map[string]string, len(table)*2),
		strict: strict,
	}
	for raw, canonical := range table {
		c := normalize(canonical)
		m.table[normalize(raw)] = c
		m.table[c] = c
	}
	return m
}

// Canonical returns the canonical category for raw. known is false when the
// value passed through without a mapping.
func (m *CategoryMapper) Canonical(raw string) (category string, known bool, err error) {
	key := normalize(raw)
	if key == "" {
		return "", false, fmt.Errorf("empty category: %w", internalerr.ErrInvalidInput)
	}
	if c, ok := m.table[key]; ok {
		return c, true, nil
	}
	if m.strict {
		return "", false, fmt.Errorf("%q: %w", raw, ErrUnknownCategory)
	}
	return key, false, nil
}

// IsUnknownCategory reports whether err came from a strict mapper miss.
func IsUnknownCategory(err error) bool {
	return errors.Is(err, ErrUnknownCategory)
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
