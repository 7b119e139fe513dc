package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

func TestLedgerAddIsIdempotent(t *testing.T) {
	l := New()
	l.Add("abc")
	l.Add("abc")

	if !l.InDB("abc") {
		t.Fatal("expected hash to be recorded")
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

func TestLedgerRemove(t *testing.T) {
	l := FromHashes([]string{"a", "b"})

	if err := l.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if l.InDB("a") {
		t.Error("hash should be gone after Remove")
	}

	err := l.Remove("a")
	if !errors.Is(err, internalerr.ErrPrecondition) {
		t.Fatalf("removing absent hash: got %v, want ErrPrecondition", err)
	}
}

func TestLedgerCloneIsIndependent(t *testing.T) {
	l := FromHashes([]string{"a"})
	c := l.Clone()
	c.Add("b")

	if l.InDB("b") {
		t.Error("clone mutation leaked into original")
	}
	if got := c.Hashes(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Hashes = %v", got)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.SC2Replay")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	// md5("hello")
	if got != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("HashFile = %s", got)
	}

	fromReader, err := HashReader(strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if fromReader != got {
		t.Error("HashReader and HashFile disagree")
	}
}
