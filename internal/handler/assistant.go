package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/promptifyhq/promptify/internal/ai"
	"github.com/promptifyhq/promptify/internal/auth"
	"github.com/promptifyhq/promptify/internal/document"
	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/service"
)

// maxResumeUpload bounds resume PDF uploads.
const maxResumeUpload = 10 << 20 // 10MB

// AssistantHandler handles the AI tool HTTP requests.
//
// Routes handled:
//   - POST /api/ai/chat      -> Chat (SSE stream)
//   - POST /api/ai/resume    -> AnalyzeResume (PDF upload or JSON text)
//   - POST /api/ai/college   -> CollegeAdvice
//   - POST /api/ai/email     -> DraftEmail
//   - POST /api/ai/summarize -> Summarize
//   - GET  /api/ai/history   -> History
//   - GET  /api/ai/usage     -> Usage
type AssistantHandler struct {
	assistant service.AssistantService
	quota     service.QuotaService
	extractor document.Extractor
	logger    *slog.Logger
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(assistant service.AssistantService, quota service.QuotaService, extractor document.Extractor, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: assistant,
		quota:     quota,
		extractor: extractor,
		logger:    logger,
	}
}

// RegisterRoutes registers assistant routes on the provided mux.
// All routes require an authenticated user.
func (h *AssistantHandler) RegisterRoutes(mux *http.ServeMux, protected func(http.Handler) http.Handler) {
	mux.Handle("POST /api/ai/chat", protected(http.HandlerFunc(h.Chat)))
	mux.Handle("POST /api/ai/resume", protected(http.HandlerFunc(h.AnalyzeResume)))
	mux.Handle("POST /api/ai/college", protected(http.HandlerFunc(h.CollegeAdvice)))
	mux.Handle("POST /api/ai/email", protected(http.HandlerFunc(h.DraftEmail)))
	mux.Handle("POST /api/ai/summarize", protected(http.HandlerFunc(h.Summarize)))
	mux.Handle("GET /api/ai/history", protected(http.HandlerFunc(h.History)))
	mux.Handle("GET /api/ai/usage", protected(http.HandlerFunc(h.Usage)))
}

// =============================================================================
// Streaming Chat
// =============================================================================

// Chat streams a chat completion to the client as server-sent events.
//
// Each fragment is sent as `data: {"content": "..."}` and the stream is
// terminated with `data: [DONE]`. If the client disconnects, the request
// context cancels the provider call and no usage is recorded.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Messages []ai.Message `json:"messages"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.chat", "Invalid request body."))
		return
	}

	stream, err := h.assistant.ChatStream(r.Context(), user.ID, req.Messages)
	if err != nil {
		// Nothing has been written yet, so a normal JSON error still works.
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		InternalErrorResponse(w, r, h.logger, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
		if err != nil {
			// Headers are already sent; signal the failure in-band.
			h.logger.Error("chat stream failed", "error", err, "user_id", user.ID)
			fmt.Fprint(w, "data: {\"error\": \"Stream interrupted. Please try again.\"}\n\n")
			flusher.Flush()
			return
		}

		payload, err := json.Marshal(map[string]string{"content": frag})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

// =============================================================================
// Synchronous Tools
// =============================================================================

// AnalyzeResume accepts either a multipart PDF upload (field "resume", text
// extracted server-side) or a JSON body with pre-extracted resume_text.
func (h *AssistantHandler) AnalyzeResume(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.analyzeResumeUpload(w, r, user)
		return
	}

	var req struct {
		ResumeText string `json:"resume_text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.resume", "Invalid request body."))
		return
	}

	result, err := h.assistant.AnalyzeResume(r.Context(), user.ID, req.ResumeText)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"analysis": result})
}

// analyzeResumeUpload extracts text from an uploaded PDF and runs the
// analysis. The response carries the extracted text alongside the analysis so
// the client can display what was actually read from the file.
func (h *AssistantHandler) analyzeResumeUpload(w http.ResponseWriter, r *http.Request, user *domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxResumeUpload)

	file, header, err := r.FormFile("resume")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.resume", "A PDF upload is required in the resume field."))
		return
	}
	defer file.Close()

	text, err := h.extractor.ExtractText(file, header.Size)
	if err != nil {
		h.logger.Warn("resume text extraction failed", "error", err, "user_id", user.ID, "filename", header.Filename)
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.resume", "Could not extract text from the PDF."))
		return
	}

	analysis, err := h.assistant.AnalyzeResume(r.Context(), user.ID, text)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"text":     text,
		"analysis": analysis,
	})
}

func (h *AssistantHandler) CollegeAdvice(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.college", "Invalid request body."))
		return
	}

	result, err := h.assistant.CollegeAdvice(r.Context(), user.ID, req.Query)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"advice": result})
}

func (h *AssistantHandler) DraftEmail(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
		Tone   string `json:"tone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.email", "Invalid request body."))
		return
	}

	result, err := h.assistant.DraftEmail(r.Context(), user.ID, req.Prompt, req.Tone)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": result})
}

func (h *AssistantHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("assistant.summarize", "Invalid request body."))
		return
	}

	result, err := h.assistant.Summarize(r.Context(), user.ID, req.Text)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": result})
}

// =============================================================================
// History and Usage
// =============================================================================

// usageRecordResponse is the wire representation of a usage record.
type usageRecordResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"type"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Cost      int64  `json:"cost"`
	CreatedAt string `json:"created_at"`
}

func (h *AssistantHandler) History(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	records, err := h.assistant.History(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]usageRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, usageRecordResponse{
			ID:        rec.ID.String(),
			Kind:      string(rec.Kind),
			Prompt:    rec.Prompt,
			Response:  rec.Response,
			Cost:      rec.Cost,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (h *AssistantHandler) Usage(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	usage, err := h.quota.GetUsage(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests_today": usage.RequestsToday,
		"daily_limit":    usage.DailyLimit,
		"tokens":         usage.Tokens,
		"unlimited":      usage.IsUnlimited,
	})
}
