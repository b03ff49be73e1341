package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// httpEmbedder talks to an OpenAI-compatible /v1/embeddings endpoint.
// vLLM, Ollama, ONNX Runtime Server and OpenAI all speak this format.
type httpEmbedder struct {
	base  string
	cfg   Config
	httpc *http.Client

	mu  sync.Mutex
	dim int // auto-detected from the first response when cfg.Dimension == 0
}

func newOpenAIClient(cfg Config) *httpEmbedder {
	return &httpEmbedder{
		base:  strings.TrimRight(cfg.Endpoint, "/"),
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		dim:   cfg.Dimension,
	}
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for lo := 0; lo < len(texts); lo += e.cfg.BatchSize {
		hi := min(lo+e.cfg.BatchSize, len(texts))
		vecs, err := e.request(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", lo, hi-1, err)
		}
		copy(out[lo:], vecs)
	}
	return out, nil
}

type embedPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResult struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// request posts one batch and returns vectors in input order. Transient
// server errors (429, 5xx) are retried twice with a short backoff since
// embedding backends routinely shed load under GPU pressure.
func (e *httpEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedPayload{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	var res embedResult
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		res, lastErr = e.post(ctx, body)
		if lastErr == nil {
			break
		}
		if !retriable(lastErr) {
			return nil, lastErr
		}
		e.cfg.Logger.Warn("embedding request retry", "attempt", attempt+1, "error", lastErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("empty response from %s", e.base)
	}

	e.noteDimension(len(res.Data[0].Embedding), res.Model)

	vecs := make([][]float32, len(texts))
	for _, d := range res.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("response index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("no embedding for input %d", i)
		}
	}
	return vecs, nil
}

type statusError struct {
	code int
	body string
}

func (s *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", s.code, s.body)
}

func retriable(err error) bool {
	se, ok := err.(*statusError)
	return ok && (se.code == http.StatusTooManyRequests || se.code >= 500)
}

func (e *httpEmbedder) post(ctx context.Context, body []byte) (embedResult, error) {
	var res embedResult

	url := e.base + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return res, fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, &statusError{code: resp.StatusCode, body: string(snippet)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}

func (e *httpEmbedder) noteDimension(got int, model string) {
	if got == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = got
		e.cfg.Logger.Info("detected embedding dimension", "dimension", got, "model", model)
	} else if e.dim != got {
		e.cfg.Logger.Warn("embedding dimension mismatch", "want", e.dim, "got", got)
	}
}

func (e *httpEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

func (e *httpEmbedder) Model() string { return e.cfg.Model }
