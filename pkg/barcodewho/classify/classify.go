// Package classify ranks candidate identities against one test observation.
//
// Two scorers share the same outcome shape: an n-gram distance over token
// histograms and a weighted nearest-neighbor search over mean feature
// vectors. Both exclude the observation's owner and report a second pick
// that ignores barcode identities. Missing data is reported through
// Result.Reason, never as an error.
package classify

import (
	"sort"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
)

// Reason explains why a pick is missing.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNoCandidates     Reason = "no candidates in category"
	ReasonTooFewCandidates Reason = "fewer than two candidates in category"
	ReasonOnlyBarcodes     Reason = "only barcode candidates in category"
)

// BarcodeChecker reports whether every known name of a handle is a barcode.
type BarcodeChecker interface {
	IsBarcodeHandle(handle string) bool
}

// BarcodeFunc adapts a function to BarcodeChecker.
type BarcodeFunc func(handle string) bool

// IsBarcodeHandle implements BarcodeChecker.
func (f BarcodeFunc) IsBarcodeHandle(handle string) bool { return f(handle) }

// Query describes the observation being classified.
type Query struct {
	// Owner is the identity the observation belongs to, when known. It is
	// never returned as an estimate.
	Owner *identity.Key
}

// Estimate is one ranked candidate.
type Estimate struct {
	Key      identity.Key
	Distance float64
	Barcode  bool
}

// Result is the outcome of one classification.
type Result struct {
	// Ranked holds every scored candidate, closest first, barcodes included.
	Ranked []Estimate
	// Best is the closest candidate, nil when there is none.
	Best *Estimate
	// NonBarcode is the closest candidate that is not a barcode identity.
	NonBarcode *Estimate
	Reason     Reason
}

// OK reports whether a non-barcode estimate is available.
func (r Result) OK() bool {
	return r.NonBarcode != nil
}

// Top returns at most k ranked estimates, optionally without barcodes.
func (r Result) Top(k int, withBarcodes bool) []Estimate {
	var out []Estimate
	for _, e := range r.Ranked {
		if len(out) == k {
			break
		}
		if e.Barcode && !withBarcodes {
			continue
		}
		out = append(out, e)
	}
	return out
}

// finish drops the owner, sorts by distance (ties by key) and picks the
// best and best non-barcode estimates.
func finish(q Query, scored []Estimate, barcodes BarcodeChecker) Result {
	ranked := scored[:0:0]
	for _, e := range scored {
		if q.Owner != nil && e.Key == *q.Owner {
			continue
		}
		e.Barcode = barcodes != nil && barcodes.IsBarcodeHandle(e.Key.Handle)
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].Key.Less(ranked[j].Key)
	})

	res := Result{Ranked: ranked}
	if len(ranked) == 0 {
		res.Reason = ReasonNoCandidates
		return res
	}
	best := ranked[0]
	res.Best = &best
	for _, e := range ranked {
		if !e.Barcode {
			nb := e
			res.NonBarcode = &nb
			return res
		}
	}
	res.Reason = ReasonOnlyBarcodes
	return res
}
