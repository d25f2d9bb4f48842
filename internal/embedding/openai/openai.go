package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"commentmap/internal/logger"
	"commentmap/internal/sanitize"
)

const previewRunes = 30

var (
	// ErrMissingAPIKey is returned by NewClient when no credential is supplied.
	ErrMissingAPIKey = errors.New("openai: API key is empty")
	// ErrCountMismatch is returned when a response holds a different number of vectors than inputs.
	ErrCountMismatch = errors.New("openai: embedding count mismatch")
	// ErrDimensionMismatch is returned when vectors of one run differ in width.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	BatchSize         int
	RequestsPerMinute int
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger used for batch diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// WithProgress registers a callback invoked after every successful batch.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Client) { c.progress = fn }
}

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
// Batches are sent one at a time and never retried.
type Client struct {
	sdk       openaisdk.Client
	model     string
	batchSize int
	dimension int
	limiter   *rate.Limiter
	logger    *zap.SugaredLogger
	progress  func(done, total int)
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	c := &Client{
		sdk: openaisdk.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithHTTPClient(&http.Client{Timeout: t}),
			option.WithMaxRetries(0),
		),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		limiter:   limiter,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the width of the vectors returned so far, or 0 before the first batch.
func (c *Client) Dimension() int { return c.dimension }

// Embed sanitizes texts and embeds them batch by batch, preserving order.
// The first failing batch aborts the run with a *BatchError.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	clean := sanitize.All(texts)
	out := make([][]float32, 0, len(clean))
	for start := 0; start < len(clean); start += c.batchSize {
		end := min(start+c.batchSize, len(clean))
		batch := clean[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "wait for embedding rate limit")
		}
		began := time.Now()
		vecs, err := c.embedBatch(ctx, batch)
		if err != nil {
			be := newBatchError(start, batch, err)
			c.logFailure(be)
			return nil, be
		}
		out = append(out, vecs...)
		c.logger.Debugw("embedded batch",
			logger.FieldBatchStart, start,
			logger.FieldBatchSize, len(batch),
			logger.FieldDurationMS, time.Since(began).Milliseconds())
		if c.progress != nil {
			c.progress(end, len(clean))
		}
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		Model:          openaisdk.EmbeddingModel(c.model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, errors.Wrap(err, "openai embeddings")
	}
	if len(resp.Data) != len(batch) {
		return nil, errors.Wrapf(ErrCountMismatch, "got %d, want %d", len(resp.Data), len(batch))
	}

	out := make([][]float32, len(batch))
	for pos, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		if c.dimension == 0 {
			c.dimension = len(d.Embedding)
		}
		if len(d.Embedding) == 0 || len(d.Embedding) != c.dimension {
			return nil, errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(d.Embedding), c.dimension)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, errors.Newf("openai: no embedding returned for batch item %d", i)
		}
	}
	return out, nil
}

func (c *Client) logFailure(be *BatchError) {
	c.logger.Errorw("embedding request failed",
		logger.FieldBatchStart, be.Start,
		logger.FieldBatchSize, len(be.Items),
		logger.FieldError, be.Err)
	for _, it := range be.Items {
		c.logger.Errorw("batch item", "idx", it.Index, "len", it.Length, "preview", it.Preview)
	}
}

// ItemDiagnostic describes one input of a failed batch.
type ItemDiagnostic struct {
	// Index is the position within the full text sequence.
	Index   int
	Length  int
	Preview string
}

// BatchError reports a failed embedding request with enough context to locate the offending input.
type BatchError struct {
	// Start is the zero-based offset of the batch within the full text sequence.
	Start int
	Items []ItemDiagnostic
	Err   error
}

func newBatchError(start int, batch []string, err error) *BatchError {
	items := make([]ItemDiagnostic, len(batch))
	for j, s := range batch {
		items[j] = ItemDiagnostic{
			Index:   start + j,
			Length:  utf8.RuneCountInString(s),
			Preview: sanitize.Preview(s, previewRunes),
		}
	}
	return &BatchError{Start: start, Items: items, Err: err}
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding request failed at batch starting index %d: %v", e.Start, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Report renders the per-item diagnostics, one line per input.
func (e *BatchError) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Embedding request failed at batch starting index %d\n", e.Start)
	for _, it := range e.Items {
		fmt.Fprintf(&b, "  idx=%d len=%d preview=%q\n", it.Index, it.Length, it.Preview)
	}
	return b.String()
}
