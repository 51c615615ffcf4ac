// Package knowledge keeps the reference documents users upload alongside
// their chats.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/room4-2/gemini-chat/ingest"
	"github.com/room4-2/gemini-chat/log"
)

var (
	// ErrEmptyDocument is returned when no text could be extracted.
	ErrEmptyDocument = errors.New("no text could be extracted from the document")
	ErrNotFound      = errors.New("document not found")
	ErrInvalidName   = errors.New("invalid document name")
)

const documentsKey = "kb_documents"

func documentKey(name string) string { return "kb:" + name }

// Document is an indexed knowledge-base file.
type Document struct {
	Name       string    `json:"name"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Content    string    `json:"content,omitempty"`
}

// Store saves documents under dir and indexes their text in Redis, or in
// memory when rdb is nil.
type Store struct {
	dir   string
	redis *redis.Client

	mu     sync.RWMutex
	memory map[string]Document
}

func NewStore(dir string, rdb *redis.Client) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	return &Store{dir: dir, redis: rdb, memory: make(map[string]Document)}, nil
}

// Add saves the raw file, extracts its text and indexes it under its base
// name. A document with the same name is replaced.
func (s *Store) Add(ctx context.Context, a ingest.Artifact) (Document, error) {
	name := filepath.Base(a.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return Document{}, ErrInvalidName
	}
	if !ingest.AcceptsKnowledge(name) {
		return Document{}, fmt.Errorf("%w: %s", ingest.ErrUnsupportedFormat, name)
	}

	text, err := ingest.NormalizeKnowledge(ingest.Artifact{Name: name, Data: a.Data})
	if err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, ErrEmptyDocument
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), a.Data, 0o644); err != nil {
		return Document{}, fmt.Errorf("save %s: %w", name, err)
	}

	doc := Document{Name: name, Size: len(a.Data), UploadedAt: time.Now().UTC(), Content: text}
	if err := s.index(ctx, doc); err != nil {
		return Document{}, err
	}
	log.Infof("📚 Knowledge document added: %s (%d chars)", name, len(text))
	return doc, nil
}

func (s *Store) index(ctx context.Context, doc Document) error {
	if s.redis == nil {
		s.mu.Lock()
		s.memory[doc.Name] = doc
		s.mu.Unlock()
		return nil
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, documentKey(doc.Name), map[string]interface{}{
		"content":     doc.Content,
		"size":        doc.Size,
		"uploaded_at": doc.UploadedAt.Format(time.RFC3339),
	})
	pipe.SAdd(ctx, documentsKey, doc.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index %s: %w", doc.Name, err)
	}
	return nil
}

// Get returns a document including its text.
func (s *Store) Get(ctx context.Context, name string) (Document, error) {
	if s.redis == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		doc, ok := s.memory[name]
		if !ok {
			return Document{}, ErrNotFound
		}
		return doc, nil
	}

	fields, err := s.redis.HGetAll(ctx, documentKey(name)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("load %s: %w", name, err)
	}
	if len(fields) == 0 {
		return Document{}, ErrNotFound
	}
	size, _ := strconv.Atoi(fields["size"])
	uploaded, _ := time.Parse(time.RFC3339, fields["uploaded_at"])
	return Document{Name: name, Size: size, UploadedAt: uploaded, Content: fields["content"]}, nil
}

// List returns every document without its text, sorted by name.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	var names []string
	if s.redis == nil {
		s.mu.RLock()
		for name := range s.memory {
			names = append(names, name)
		}
		s.mu.RUnlock()
	} else {
		var err error
		names, err = s.redis.SMembers(ctx, documentsKey).Result()
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		doc, err := s.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		doc.Content = ""
		docs = append(docs, doc)
	}
	return docs, nil
}
