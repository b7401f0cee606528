// Package ocr invokes the external text recognition service and flattens its
// structured response into a single joined string of recognized words.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ocrPath and ocrQuery match the recognition service's REST contract:
	// unknown-language detection with automatic orientation correction.
	ocrPath  = "/vision/v2.1/ocr"
	ocrQuery = "language=unk&detectOrientation=true"

	// keyHeader carries the recognition service subscription key.
	keyHeader = "Ocp-Apim-Subscription-Key"

	// separator is appended after every recognized word, including the last.
	separator = ","
)

// ErrNotConfigured is returned when the subscription key or endpoint is
// missing. No network call is attempted in that case.
var ErrNotConfigured = errors.New("ocr: subscription key or endpoint not configured")

// RecognitionError is a typed failure from the recognition call. Exactly one
// attempt is made per call; there are no retries.
type RecognitionError struct {
	Stage      string // "transport", "status" or "decode"
	StatusCode int    // set for "status" failures
	Err        error
}

func (e *RecognitionError) Error() string {
	if e.Stage == "status" {
		return fmt.Sprintf("ocr: service returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ocr: %s failure: %v", e.Stage, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Result is the flattened output of one recognition call. Text joins every
// recognized word with a trailing separator; WordCount is the number of words
// before joining.
type Result struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// Client calls the recognition service.
type Client struct {
	endpoint        string
	subscriptionKey string
	client          *http.Client
}

// NewClient creates a recognition client. Either credential may be empty;
// Recognize then fails fast with ErrNotConfigured.
func NewClient(endpoint, subscriptionKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint:        strings.TrimRight(endpoint, "/"),
		subscriptionKey: subscriptionKey,
		client:          &http.Client{Timeout: timeout},
	}
}

// Configured reports whether both the endpoint and key are present.
func (c *Client) Configured() bool {
	return c.endpoint != "" && c.subscriptionKey != ""
}

// ocrResponse mirrors the service's region/line/word document structure.
type ocrResponse struct {
	Regions []struct {
		Lines []struct {
			Words []struct {
				Text string `json:"text"`
			} `json:"words"`
		} `json:"lines"`
	} `json:"regions"`
}

// Recognize submits raw document bytes and returns the flattened result.
// Word order is region-major, then line, then word, exactly as the service
// declares them.
func (c *Client) Recognize(ctx context.Context, data []byte) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	url := c.endpoint + ocrPath + "?" + ocrQuery
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &RecognitionError{Stage: "transport", Err: err}
	}
	req.Header.Set(keyHeader, c.subscriptionKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RecognitionError{Stage: "transport", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RecognitionError{
			Stage:      "status",
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(excerpt))),
		}
	}

	var doc ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &RecognitionError{Stage: "decode", Err: err}
	}

	words := flatten(doc)
	return &Result{Text: join(words), WordCount: len(words)}, nil
}

// flatten walks regions, then lines, then words, preserving declared order.
func flatten(doc ocrResponse) []string {
	var words []string
	for _, region := range doc.Regions {
		for _, line := range region.Lines {
			for _, word := range line.Words {
				words = append(words, word.Text)
			}
		}
	}
	return words
}

// join concatenates words with a separator after each one, the last included.
func join(words []string) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(w)
		b.WriteString(separator)
	}
	return b.String()
}
