package ingest

import "unicode/utf8"

// Artifact is an uploaded file.
type Artifact struct {
	Name string
	Data []byte
}

// ContentKind tags the payload held by a Content.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentImage
	ContentText
	ContentError
)

func (k ContentKind) String() string {
	switch k {
	case ContentImage:
		return "image"
	case ContentText:
		return "text"
	case ContentError:
		return "error"
	default:
		return "empty"
	}
}

// Content is the normalized form of one artifact. At most one payload is set,
// and only the constructors below can set it. The zero value means nothing
// has been uploaded yet.
type Content struct {
	kind   ContentKind
	image  *Bitmap
	text   string
	reason string
}

func NewImageContent(b *Bitmap) Content {
	return Content{kind: ContentImage, image: b}
}

func NewTextContent(text string) Content {
	return Content{kind: ContentText, text: text}
}

func NewErrorContent(reason string) Content {
	return Content{kind: ContentError, reason: reason}
}

func (c Content) Kind() ContentKind { return c.kind }

func (c Content) IsZero() bool { return c.kind == ContentEmpty }

// Image returns the bitmap if c holds an image.
func (c Content) Image() (*Bitmap, bool) {
	return c.image, c.kind == ContentImage
}

// Text returns the extracted text if c holds text.
func (c Content) Text() (string, bool) {
	return c.text, c.kind == ContentText
}

// Reason returns the failure message if c holds an error.
func (c Content) Reason() (string, bool) {
	return c.reason, c.kind == ContentError
}

// Preview is a short human-readable summary of c, at most n runes of text.
func (c Content) Preview(n int) string {
	switch c.kind {
	case ContentImage:
		return c.image.String()
	case ContentText:
		if utf8.RuneCountInString(c.text) <= n {
			return c.text
		}
		return string([]rune(c.text)[:n]) + "..."
	case ContentError:
		return c.reason
	default:
		return ""
	}
}
