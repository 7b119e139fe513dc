// Package report turns classifier results into explainable cards.
package report

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/classify"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
)

// NameLookup returns the display names seen for a handle, oldest first.
type NameLookup interface {
	Names(handle string) []string
}

// Builder constructs report cards. It is not safe for concurrent use.
type Builder struct {
	entropy *ulid.MonotonicEntropy
}

// New creates a new card builder
func New() *Builder {
	return &Builder{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Card is one classification, ready to print.
type Card struct {
	ID      string
	Method  string
	Subject identity.Key
	// SubjectNames is the name history of the classified handle.
	SubjectNames []string
	// Neighbors are the closest non-barcode identities, nearest first.
	Neighbors []Neighbor
	// Closest is the nearest identity counting barcodes.
	Closest *Neighbor
	Reason  classify.Reason
}

// Neighbor is one ranked identity.
type Neighbor struct {
	Key      identity.Key
	Distance float64
	Barcode  bool
	Names    []string
}

// Estimate returns the closest non-barcode identity, if any.
func (c Card) Estimate() *Neighbor {
	if len(c.Neighbors) == 0 {
		return nil
	}
	return &c.Neighbors[0]
}

// Build creates a card listing the k closest non-barcode identities.
func (b *Builder) Build(method string, subject identity.Key, res classify.Result, k int, names NameLookup) Card {
	card := Card{
		ID:      ulid.MustNew(ulid.Now(), b.entropy).String(),
		Method:  method,
		Subject: subject,
		Reason:  res.Reason,
	}
	lookup := func(handle string) []string {
		if names == nil {
			return nil
		}
		return names.Names(handle)
	}
	if !subject.IsZero() {
		card.SubjectNames = lookup(subject.Handle)
	}

	top := res.Top(k, false)
	card.Neighbors = make([]Neighbor, 0, len(top))
	for _, e := range top {
		card.Neighbors = append(card.Neighbors, Neighbor{
			Key:      e.Key,
			Distance: e.Distance,
			Barcode:  e.Barcode,
			Names:    lookup(e.Key.Handle),
		})
	}
	if res.Best != nil {
		card.Closest = &Neighbor{
			Key:      res.Best.Key,
			Distance: res.Best.Distance,
			Barcode:  res.Best.Barcode,
			Names:    lookup(res.Best.Key.Handle),
		}
	}
	return card
}

// Render writes the card as plain text.
func (c Card) Render(w io.Writer) error {
	var sb strings.Builder
	subject := "anonymous"
	if !c.Subject.IsZero() {
		subject = c.Subject.String()
	}
	fmt.Fprintf(&sb, "[%s] %s classification of %s\n", c.ID, c.Method, subject)
	if len(c.SubjectNames) > 0 {
		fmt.Fprintf(&sb, "  known as: %s\n", strings.Join(c.SubjectNames, ", "))
	}
	if c.Reason != classify.ReasonNone {
		fmt.Fprintf(&sb, "  no estimate: %s\n", c.Reason)
	}
	for i, n := range c.Neighbors {
		fmt.Fprintf(&sb, "  %d. %-32s %12.4f  %s\n", i+1, n.Key.String(), n.Distance, lastName(n.Names))
	}
	if c.Closest != nil && c.Closest.Barcode {
		fmt.Fprintf(&sb, "  closest including barcodes: %s at %.4f\n", c.Closest.Key.String(), c.Closest.Distance)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func lastName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}
