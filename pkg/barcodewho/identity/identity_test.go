package identity

import (
	"errors"
	"testing"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

func TestIsBarcode(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"lIlIlI", true},
		{"IIII", true},
		{"llll", true},
		{"", true},
		{"lIl1", false},
		{"Serral", false},
		{"lI lI", false},
	}
	for _, tc := range cases {
		if got := IsBarcode(tc.name); got != tc.want {
			t.Errorf("IsBarcode(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKeyOrdering(t *testing.T) {
	keys := []Key{
		{Handle: "2-S2-1-2", Category: "Zerg"},
		{Handle: "2-S2-1-1", Category: "Zerg"},
		{Handle: "2-S2-1-1", Category: "Protoss"},
	}
	Sort(keys)

	want := []Key{
		{Handle: "2-S2-1-1", Category: "Protoss"},
		{Handle: "2-S2-1-1", Category: "Zerg"},
		{Handle: "2-S2-1-2", Category: "Zerg"},
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestKeyAsMapKey(t *testing.T) {
	m := map[Key]int{}
	m[Key{"a", "Zerg"}]++
	m[Key{"a", "Zerg"}]++
	m[Key{"a", "Terran"}]++
	if len(m) != 2 || m[Key{"a", "Zerg"}] != 2 {
		t.Fatalf("unexpected map contents: %v", m)
	}
}

func TestCategoryMapperLocales(t *testing.T) {
	m := NewCategoryMapper(DefaultLocales(), false)

	cases := map[string]string{
		"Zerg":      "Zerg",
		"Терраны":   "Terran",
		" Протоссы": "Protoss",
		"Зерги":     "Zerg",
	}
	for raw, want := range cases {
		got, known, err := m.Canonical(raw)
		if err != nil {
			t.Fatalf("Canonical(%q): %v", raw, err)
		}
		if !known || got != want {
			t.Errorf("Canonical(%q) = %q (known=%v), want %q", raw, got, known, want)
		}
	}
}

func TestCategoryMapperPassthrough(t *testing.T) {
	m := NewCategoryMapper(DefaultLocales(), false)

	got, known, err := m.Canonical("Zergs")
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if known {
		t.Error("expected unmapped category to be reported as unknown")
	}
	if got != "Zergs" {
		t.Errorf("passthrough = %q, want Zergs", got)
	}
}

func TestCategoryMapperStrict(t *testing.T) {
	m := NewCategoryMapper(DefaultLocales(), true)

	_, _, err := m.Canonical("Zergs")
	if !IsUnknownCategory(err) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Error("ErrUnknownCategory should wrap ErrInvalidInput")
	}

	if _, _, err := m.Canonical("  "); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("empty category should be invalid input, got %v", err)
	}
}
