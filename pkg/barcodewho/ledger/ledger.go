// Package ledger remembers which recordings have already been processed.
//
// A recording is identified by the md5 of its full contents, so the ledger
// never has to parse a file to know it was seen. Recordings judged
// irrelevant (too short, AI participants, ...) are recorded too, which means
// not every hash in the ledger has observations in the database.
package ledger

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Ledger is a set of content hashes.
type Ledger struct {
	hashes map[string]struct{}
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{hashes: make(map[string]struct{})}
}

// FromHashes creates a ledger holding hashes.
func FromHashes(hashes []string) *Ledger {
	l := New()
	for _, h := range hashes {
		l.Add(h)
	}
	return l
}

// InDB reports whether hash was already recorded.
func (l *Ledger) InDB(hash string) bool {
	_, ok := l.hashes[hash]
	return ok
}

// Add records hash. Adding a known hash is a no-op.
func (l *Ledger) Add(hash string) {
	l.hashes[hash] = struct{}{}
}

// Remove forgets hash. Removing an unknown hash is a precondition violation.
func (l *Ledger) Remove(hash string) error {
	if _, ok := l.hashes[hash]; !ok {
		return fmt.Errorf("ledger: remove %s: %w", hash, internalerr.ErrPrecondition)
	}
	delete(l.hashes, hash)
	return nil
}

// Len returns the number of recorded hashes.
func (l *Ledger) Len() int {
	return len(l.hashes)
}

// Hashes returns all hashes in sorted order.
func (l *Ledger) Hashes() []string {
	out := make([]string, 0, len(l.hashes))
	for h := range l.hashes {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{hashes: make(map[string]struct{}, len(l.hashes))}
	for h := range l.hashes {
		c.hashes[h] = struct{}{}
	}
	return c
}

// HashReader returns the hex md5 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex md5 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}
