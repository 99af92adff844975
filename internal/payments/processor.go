package payments

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// ReleaseRequest is the submission sent to the processor. IntentID
// doubles as the processor-side idempotency key, so resubmitting the
// same intent can never double-pay.
type ReleaseRequest struct {
	IntentID     string `json:"intent_id"`
	EngagementID string `json:"engagement_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// ReleaseResult is the processor's view of one release.
type ReleaseResult struct {
	Status       string `json:"status" enum:"submitted,confirmed,failed"`
	ProcessorRef string `json:"processor_ref,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Processor moves money. Implementations must treat IntentID as an
// idempotency key.
type Processor interface {
	SubmitRelease(ctx context.Context, req ReleaseRequest) (ReleaseResult, error)
	CheckRelease(ctx context.Context, intentID string) (ReleaseResult, error)
}

// HTTPProcessor talks to a processor over HTTP with exponential backoff
// and jitter on transport errors and 5xx responses. A 4xx is final and
// returned as a failed result rather than retried.
type HTTPProcessor struct {
	BaseURL    string
	Client     *http.Client
	MaxRetries int
}

func NewHTTPProcessor(baseURL string, timeout time.Duration) *HTTPProcessor {
	return &HTTPProcessor{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Client:     &http.Client{Timeout: timeout},
		MaxRetries: 3,
	}
}

func (p *HTTPProcessor) SubmitRelease(ctx context.Context, req ReleaseRequest) (ReleaseResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ReleaseResult{}, err
	}
	return p.do(ctx, http.MethodPost, "/releases", body)
}

func (p *HTTPProcessor) CheckRelease(ctx context.Context, intentID string) (ReleaseResult, error) {
	return p.do(ctx, http.MethodGet, "/releases/"+intentID, nil)
}

func (p *HTTPProcessor) do(ctx context.Context, method, path string, body []byte) (ReleaseResult, error) {
	var lastErr error
	for i := 0; i <= p.MaxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(math.Pow(2, float64(i-1))) * 200 * time.Millisecond
			jitter := time.Duration(0)
			if n, err := rand.Int(rand.Reader, big.NewInt(100)); err == nil {
				jitter = time.Duration(n.Int64()) * time.Millisecond
			}
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ReleaseResult{}, ProcessorUnavailableError{Cause: ctx.Err()}
			}
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, reader)
		if err != nil {
			return ReleaseResult{}, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := p.Client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		result, retryable, err := decodeProcessorResponse(res)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return ReleaseResult{}, err
		}
	}
	return ReleaseResult{}, ProcessorUnavailableError{Cause: lastErr}
}

func decodeProcessorResponse(res *http.Response) (ReleaseResult, bool, error) {
	defer res.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode >= 500 {
		return ReleaseResult{}, true, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	if res.StatusCode >= 400 {
		return ReleaseResult{}, false, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	var result ReleaseResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ReleaseResult{}, false, fmt.Errorf("invalid processor response: %w", err)
	}
	return result, false, nil
}
