// Package ingest turns uploaded artifacts into the normalized content that a
// chat turn can carry to the model: decoded images or extracted text.
package ingest

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for extensions outside the known set.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrDecodeFailure is returned when bytes are not a valid image or text.
	ErrDecodeFailure = errors.New("decode failure")
)

// Kind classifies an artifact by its filename extension.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindPlainText
	KindCodeText
	KindTabular
	KindPDF
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPlainText:
		return "plain-text"
	case KindCodeText:
		return "code-text"
	case KindTabular:
		return "tabular"
	case KindPDF:
		return "pdf"
	case KindArchive:
		return "archive"
	default:
		return "unsupported"
	}
}

var kindsByExt = map[string]Kind{
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"txt":  KindPlainText,
	"html": KindCodeText,
	"css":  KindCodeText,
	"php":  KindCodeText,
	"js":   KindCodeText,
	"py":   KindCodeText,
	"java": KindCodeText,
	"c":    KindCodeText,
	"cpp":  KindCodeText,
	"csv":  KindTabular,
	"xlsx": KindTabular,
	"pdf":  KindPDF,
	"zip":  KindArchive,
}

var uploadExts = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "txt": {}, "pdf": {}, "zip": {}, "csv": {},
	"xlsx": {}, "html": {}, "css": {}, "php": {}, "js": {}, "py": {},
}

var knowledgeExts = map[string]struct{}{
	"pdf": {}, "txt": {},
}

// Ext returns the lowercased trailing extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Sniff classifies name by its trailing extension only. Content is never inspected.
func Sniff(name string) Kind {
	if k, ok := kindsByExt[Ext(name)]; ok {
		return k
	}
	return KindUnsupported
}

// AcceptsUpload reports whether name may be sent to the general upload path.
func AcceptsUpload(name string) bool {
	_, ok := uploadExts[Ext(name)]
	return ok
}

// AcceptsKnowledge reports whether name may be added to the knowledge base.
func AcceptsKnowledge(name string) bool {
	_, ok := knowledgeExts[Ext(name)]
	return ok
}
