package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"google.golang.org/genai"

	"github.com/room4-2/gemini-chat/log"
)

// Files up to this size are sent inline; larger ones go through the Files API.
const defaultInlineLimit = 16 << 20

var (
	// ErrSafetyBlock matches every *SafetyBlockError.
	ErrSafetyBlock = errors.New("response blocked for safety reasons")
	// ErrRemote wraps transport, quota and malformed-response failures.
	ErrRemote = errors.New("remote generation failed")
)

// SafetyBlockError reports a prompt or response the model refused.
// Reason is empty when the API did not name one.
type SafetyBlockError struct {
	Reason string
}

func (e *SafetyBlockError) Error() string {
	if e.Reason == "" {
		return ErrSafetyBlock.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSafetyBlock, e.Reason)
}

func (e *SafetyBlockError) Is(target error) bool { return target == ErrSafetyBlock }

// Part is one element of a prompt: text, or inline binary data.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// TextPart builds a text part.
func TextPart(text string) Part { return Part{Text: text} }

// BlobPart builds an inline binary part.
func BlobPart(mimeType string, data []byte) Part {
	return Part{MIMEType: mimeType, Data: data}
}

// IsBlob reports whether p carries binary data.
func (p Part) IsBlob() bool { return p.Data != nil }

// Request is a single generation call.
type Request struct {
	Model           string
	Parts           []Part
	Temperature     float32
	MaxOutputTokens int32
	SystemPrompt    string
}

// Reply is the model's answer.
type Reply struct {
	Text         string
	FinishReason string
}

// Client talks to the Gemini API. Each call is attempted once.
type Client struct {
	client             *genai.Client
	transcriptionModel string
	inlineLimit        int64
}

type options struct {
	baseURL            string
	httpClient         *http.Client
	transcriptionModel string
	inlineLimit        int64
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTranscriptionModel sets the model used by Transcribe.
func WithTranscriptionModel(model string) Option {
	return func(o *options) { o.transcriptionModel = model }
}

// WithInlineLimit sets the largest audio file Transcribe sends inline.
func WithInlineLimit(n int64) Option {
	return func(o *options) { o.inlineLimit = n }
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	o := options{
		transcriptionModel: "gemini-2.5-flash",
		inlineLimit:        defaultInlineLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  o.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: o.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{
		client:             client,
		transcriptionModel: o.transcriptionModel,
		inlineLimit:        o.inlineLimit,
	}, nil
}

// Generate submits req and classifies the outcome. A refused prompt or
// response yields a *SafetyBlockError; any other failure wraps ErrRemote.
func (c *Client) Generate(ctx context.Context, req Request) (*Reply, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsBlob() {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
		} else {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}

	reply, err := classify(resp)
	if err != nil {
		return nil, err
	}
	log.Debugf("📥 Received from Gemini: %d chars (%s)", len(reply.Text), reply.FinishReason)
	return reply, nil
}

func classify(resp *genai.GenerateContentResponse) (*Reply, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &SafetyBlockError{Reason: string(resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return nil, &SafetyBlockError{}
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, &SafetyBlockError{Reason: string(candidate.FinishReason)}
	}
	return &Reply{Text: resp.Text(), FinishReason: string(candidate.FinishReason)}, nil
}

// Transcribe sends the audio file at path with instruction to the
// transcription model and returns the raw text.
func (c *Client) Transcribe(ctx context.Context, path, mimeType, instruction string) (string, error) {
	audio, cleanup, err := c.audioPart(ctx, path, mimeType)
	if err != nil {
		return "", err
	}
	defer cleanup()

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(instruction),
		audio,
	}, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, c.transcriptionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemote, err)
	}
	reply, err := classify(resp)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (c *Client) audioPart(ctx context.Context, path, mimeType string) (*genai.Part, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}

	if info.Size() <= c.inlineLimit {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return genai.NewPartFromBytes(data, mimeType), func() {}, nil
	}

	file, err := c.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: upload audio: %v", ErrRemote, err)
	}
	log.Debugf("📤 Uploaded %s as %s", path, file.Name)

	cleanup := func() {
		// The request context may already be done.
		if _, err := c.client.Files.Delete(context.Background(), file.Name, nil); err != nil {
			log.Warnf("⚠️ Failed to delete remote file %s: %v", file.Name, err)
		}
	}
	return genai.NewPartFromURI(file.URI, mimeType), cleanup, nil
}
