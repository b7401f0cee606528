package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/alecgard/gabelle/internal/ocr"
	"github.com/alecgard/gabelle/internal/session"
	"github.com/alecgard/gabelle/internal/usage"
)

// recognizer is the OCR dependency of the documents handler.
type recognizer interface {
	Configured() bool
	Recognize(ctx context.Context, data []byte) (*ocr.Result, error)
}

// usageRecorder queues one usage record per successful recognition.
type usageRecorder interface {
	Record(sctx session.Context, text string, wordCount int) (string, error)
}

// ocrMetrics is an optional sink for recognition observability.
type ocrMetrics interface {
	IncOCRRequest(result string)
	ObserveOCRDuration(seconds float64)
	IncOCRError(stage string)
	ObserveDocumentSize(bytes float64)
}

// documentsHandler accepts document uploads, runs recognition, and meters
// each successful recognition against the session's subscription.
type documentsHandler struct {
	ocr       recognizer
	recorder  usageRecorder
	sessions  session.Store
	metrics   ocrMetrics
	maxUpload int64
}

func newDocumentsHandler(rec recognizer, recorder usageRecorder, sessions session.Store, maxUpload int64) *documentsHandler {
	return &documentsHandler{
		ocr:       rec,
		recorder:  recorder,
		sessions:  sessions,
		maxUpload: maxUpload,
	}
}

func (h *documentsHandler) setMetrics(m ocrMetrics) {
	h.metrics = m
}

// documentResult is the per-file outcome of a submission.
type documentResult struct {
	Filename  string       `json:"filename"`
	Text      string       `json:"text,omitempty"`
	WordCount int          `json:"word_count"`
	Metered   bool         `json:"metered"`
	RecordID  string       `json:"record_id,omitempty"`
	Error     *errorDetail `json:"error,omitempty"`
}

// documentsResponse is the submission response. SessionResolved tells the
// client whether recognitions were billable; text is returned either way.
type documentsResponse struct {
	SessionResolved bool             `json:"session_resolved"`
	Results         []documentResult `json:"results"`
}

// Submit handles POST /api/v1/documents. The body is multipart/form-data
// with one or more files under the "documents" field. Every file is
// processed independently: a recognition failure on one does not abort the
// others, and a failed recognition is never metered.
func (h *documentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ocr.Configured() {
		writeError(w, http.StatusServiceUnavailable, "ocr_not_configured",
			"the recognition service is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large",
			fmt.Sprintf("upload exceeds the %d byte limit or is not valid multipart data", h.maxUpload))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	files := r.MultipartForm.File["documents"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing_documents",
			"at least one file must be supplied under the 'documents' field")
		return
	}

	sctx, _, err := h.sessions.Get(r.Context(), SessionKeyFromContext(r.Context()))
	if err != nil {
		slog.Error("session lookup failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load session context")
		return
	}

	resp := documentsResponse{
		SessionResolved: sctx.Complete(),
		Results:         make([]documentResult, 0, len(files)),
	}

	for _, fh := range files {
		resp.Results = append(resp.Results, h.processFile(r.Context(), fh, sctx))
	}

	writeJSON(w, http.StatusOK, resp)
}

// processFile recognizes one uploaded file and queues a usage record when the
// session context is resolved. Recognition failures are reported per file and
// never metered.
func (h *documentsHandler) processFile(ctx context.Context, fh *multipart.FileHeader, sctx session.Context) documentResult {
	res := documentResult{Filename: fh.Filename}

	f, err := fh.Open()
	if err != nil {
		res.Error = &errorDetail{Code: "read_failed", Message: "could not open uploaded file"}
		return res
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload))
	if err != nil {
		res.Error = &errorDetail{Code: "read_failed", Message: "could not read uploaded file"}
		return res
	}
	if h.metrics != nil {
		h.metrics.ObserveDocumentSize(float64(len(data)))
	}

	start := time.Now()
	recognition, err := h.ocr.Recognize(ctx, data)
	if h.metrics != nil {
		h.metrics.ObserveOCRDuration(time.Since(start).Seconds())
	}
	if err != nil {
		res.Error = recognitionErrorDetail(err)
		if h.metrics != nil {
			h.metrics.IncOCRRequest("error")
			var rerr *ocr.RecognitionError
			if errors.As(err, &rerr) {
				h.metrics.IncOCRError(rerr.Stage)
			}
		}
		slog.Warn("recognition failed", "filename", fh.Filename, "error", err)
		return res
	}
	if h.metrics != nil {
		h.metrics.IncOCRRequest("ok")
	}

	res.Text = recognition.Text
	res.WordCount = recognition.WordCount

	recordID, err := h.recorder.Record(sctx, recognition.Text, recognition.WordCount)
	switch {
	case errors.Is(err, usage.ErrNoContext):
		// Unresolved session: the user still gets their text, nothing bills.
	case err != nil:
		slog.Error("usage recording failed", "filename", fh.Filename, "error", err)
	default:
		res.Metered = true
		res.RecordID = recordID
	}

	return res
}

// recognitionErrorDetail maps a recognition failure onto the per-file error
// shape without leaking upstream response bodies to the client.
func recognitionErrorDetail(err error) *errorDetail {
	var rerr *ocr.RecognitionError
	if errors.As(err, &rerr) {
		switch rerr.Stage {
		case "status":
			return &errorDetail{
				Code:    "ocr_rejected",
				Message: fmt.Sprintf("the recognition service returned status %d", rerr.StatusCode),
			}
		case "decode":
			return &errorDetail{Code: "ocr_bad_response", Message: "the recognition service returned an unreadable response"}
		default:
			return &errorDetail{Code: "ocr_unreachable", Message: "the recognition service could not be reached"}
		}
	}
	return &errorDetail{Code: "ocr_failed", Message: "recognition failed"}
}
