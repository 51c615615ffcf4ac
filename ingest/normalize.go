package ingest

import (
	"errors"
	"fmt"
)

const unsupportedKnowledgeMessage = "Unsupported file type for knowledge base."

// Normalize converts an artifact into Content. On failure it returns an error
// Content carrying the reason together with the underlying error.
func Normalize(a Artifact) (Content, error) {
	switch kind := Sniff(a.Name); kind {
	case KindImage:
		bmp, err := DecodeImage(a.Data)
		if err != nil {
			return failed("Error decoding image", err)
		}
		return NewImageContent(bmp), nil
	case KindPlainText, KindCodeText:
		text, err := DecodeText(a.Data)
		if err != nil {
			return failed("Error reading text file", err)
		}
		return NewTextContent(text), nil
	case KindTabular:
		text, err := ExtractTable(a.Name, a.Data)
		if err != nil {
			return failed("Error reading table", err)
		}
		return NewTextContent(text), nil
	case KindPDF:
		text, err := ExtractPDF(a.Data)
		if err != nil {
			return failed("Error reading PDF", err)
		}
		return NewTextContent(text), nil
	case KindArchive:
		results, err := WalkArchive(a.Data)
		if err != nil {
			return failed("Error reading ZIP file", err)
		}
		return NewTextContent(RenderArchive(results)), nil
	case KindUnsupported:
		return NewErrorContent("Unsupported file format"), ErrUnsupportedFormat
	default:
		panic(fmt.Sprintf("ingest: unhandled kind %v", kind))
	}
}

func failed(prefix string, err error) (Content, error) {
	return NewErrorContent(fmt.Sprintf("%s: %v", prefix, err)), err
}

// NormalizeKnowledge extracts text from a knowledge-base document. Only PDF
// and plain text are accepted.
func NormalizeKnowledge(a Artifact) (string, error) {
	switch Ext(a.Name) {
	case "pdf":
		return ExtractPDF(a.Data)
	case "txt":
		return DecodeText(a.Data)
	default:
		return unsupportedKnowledgeMessage, fmt.Errorf("%w: %s", ErrUnsupportedFormat, a.Name)
	}
}

// IsUserError reports whether err came from the artifact itself rather than
// from the service.
func IsUserError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrDecodeFailure)
}
