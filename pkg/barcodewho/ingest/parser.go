package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Parser decodes a recording.
type Parser interface {
	Parse(ctx context.Context, path string) (Session, error)
}

// DefaultDumpSuffix is appended to a recording path to find its dump.
const DefaultDumpSuffix = ".msgpack"

// DumpParser reads sessions exported next to each recording as msgpack
// dumps. For a recording "a.SC2Replay" the dump is "a.SC2Replay.msgpack";
// a path that already carries the suffix is read as is.
type DumpParser struct {
	Suffix string
}

func (p DumpParser) suffix() string {
	if p.Suffix == "" {
		return DefaultDumpSuffix
	}
	return p.Suffix
}

// DumpPath returns the dump file read for a recording.
func (p DumpParser) DumpPath(path string) string {
	if strings.HasSuffix(path, p.suffix()) {
		return path
	}
	return path + p.suffix()
}

// Parse implements Parser.
func (p DumpParser) Parse(ctx context.Context, path string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	data, err := os.ReadFile(p.DumpPath(path))
	if err != nil {
		return Session{}, fmt.Errorf("read dump: %w", err)
	}
	var s Session
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode dump %s: %w: %w", p.DumpPath(path), internalerr.ErrInvalidInput, err)
	}
	return s, nil
}

// WriteDump stores a session where DumpParser will look for it.
func (p DumpParser) WriteDump(path string, s Session) error {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return os.WriteFile(p.DumpPath(path), data, 0o644)
}
