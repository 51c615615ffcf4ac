package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"
)

// DefaultMaxEntrySize bounds the decompressed size of a single archive entry.
const DefaultMaxEntrySize = 10 << 20

// ErrEntryTooLarge marks an archive entry that exceeds the size limit.
var ErrEntryTooLarge = errors.New("archive entry too large")

// textExts are entry extensions read as text without guessing.
var textExts = map[string]struct{}{
	"txt": {}, "csv": {}, "py": {}, "html": {}, "js": {}, "css": {}, "php": {},
	"json": {}, "xml": {}, "c": {}, "cpp": {}, "java": {}, "cs": {}, "rb": {},
	"go": {}, "ts": {}, "swift": {}, "kt": {}, "rs": {}, "sh": {}, "sql": {},
}

// EntryStatus is the outcome of reading one archive entry.
type EntryStatus int

const (
	EntryText EntryStatus = iota
	EntryUnknownText
	EntryBinarySkipped
	EntryFailed
)

// EntryResult is the outcome for one archive entry. Text is set for the two
// text statuses and Err for EntryFailed.
type EntryResult struct {
	Name   string
	Status EntryStatus
	Text   string
	Err    error
}

type walkOptions struct {
	maxEntrySize int64
}

// WalkOption configures WalkArchive.
type WalkOption func(*walkOptions)

// WithMaxEntrySize overrides DefaultMaxEntrySize.
func WithMaxEntrySize(n int64) WalkOption {
	return func(o *walkOptions) {
		o.maxEntrySize = n
	}
}

// WalkArchive reads every file entry of a zip archive in archive order.
// Per-entry failures are recorded in the results and never stop the walk;
// an error is returned only when the archive itself cannot be opened.
func WalkArchive(data []byte, opts ...WalkOption) ([]EntryResult, error) {
	o := walkOptions{maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(&o)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: zip: %v", ErrDecodeFailure, err)
	}

	results := make([]EntryResult, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		results = append(results, readEntry(f, o.maxEntrySize))
	}
	return results, nil
}

func readEntry(f *zip.File, limit int64) EntryResult {
	res := EntryResult{Name: f.Name}

	raw, err := readLimited(f, limit)
	if err != nil {
		res.Status, res.Err = EntryFailed, err
		return res
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
	_, known := textExts[ext]
	valid := utf8.Valid(raw)

	switch {
	case known && valid:
		res.Status, res.Text = EntryText, string(raw)
	case known:
		res.Status, res.Err = EntryFailed, fmt.Errorf("%w: invalid UTF-8", ErrDecodeFailure)
	case valid:
		res.Status, res.Text = EntryUnknownText, string(raw)
	default:
		res.Status = EntryBinarySkipped
	}
	return res
}

func readLimited(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %d bytes", ErrEntryTooLarge, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The header size can lie, so the read itself is bounded too.
	raw, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrEntryTooLarge, limit)
	}
	return raw, nil
}

// RenderArchive concatenates the results into the annotated text block that
// stands in for the archive in a prompt. Every entry yields one section.
func RenderArchive(results []EntryResult) string {
	var sb strings.Builder
	sb.WriteString("ZIP Contents:\n")
	for _, r := range results {
		switch r.Status {
		case EntryText:
			fmt.Fprintf(&sb, "\n📄 %s:\n%s\n", r.Name, r.Text)
		case EntryUnknownText:
			fmt.Fprintf(&sb, "\n📄 %s (unknown extension):\n%s\n", r.Name, r.Text)
		case EntryBinarySkipped:
			fmt.Fprintf(&sb, "\n⚠️ Binary file ignored: %s\n", r.Name)
		case EntryFailed:
			fmt.Fprintf(&sb, "\n❌ Error reading %s: %v\n", r.Name, r.Err)
		}
	}
	return sb.String()
}
