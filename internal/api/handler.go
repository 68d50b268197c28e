package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/nccd"
	"github.com/kalambet/evlink/internal/pipeline"
)

const maxRequestBodySize = 10 << 20 // 10MB

type ExtractRequest struct {
	Text         string          `json:"text"`
	DocumentType string          `json:"documentType"`
	Files        []nccd.FileInfo `json:"files"`
}

type BatchExtractRequest struct {
	Requests []ExtractRequest `json:"requests"`
}

type BatchExtractResponse struct {
	Success     bool              `json:"success"`
	Extractions []nccd.Extraction `json:"extractions"`
	Message     string            `json:"message"`
}

type LinkRequest struct {
	Adjustments []nccd.Adjustment `json:"adjustments"`
	Evidence    []nccd.Evidence   `json:"evidence"`
}

type LinkResponse struct {
	Success bool                `json:"success"`
	Links   []nccd.EvidenceLink `json:"links"`
	Message string              `json:"message"`
}

type ReviewRequest struct {
	AdjustmentID string `json:"adjustmentId"`
	EvidenceID   string `json:"evidenceId"`
	Status       string `json:"status"`
	Notes        string `json:"notes"`
}

type ReviewResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Updated bool   `json:"updated"`
}

type resetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewHandler returns the JSON API router.
func NewHandler(svc *pipeline.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", handleData(svc))
		r.Post("/extract", handleExtract(svc))
		r.Post("/extract/batch", handleExtractBatch(svc))
		r.Post("/link", handleLink(svc))
		r.Get("/links/{adjustmentID}/{evidenceID}", handleGetLink(svc))
		r.Post("/review", handleReview(svc))
		r.Post("/summary", handleSummary(svc))
		r.Get("/stats", handleStats(svc))
		r.Post("/reset", handleReset(svc))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleData(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Data(r.Context())
		if err != nil {
			stageError(w, r, "failed to fetch data", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleExtract(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExtractRequest
		if !decodeBody(w, r, &req) {
			return
		}

		out, err := svc.Extract(mutationContext(r), req.toExtract())
		if err != nil {
			stageError(w, r, "failed to extract document", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleExtractBatch(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchExtractRequest
		if !decodeBody(w, r, &req) {
			return
		}

		reqs := make([]extract.Request, len(req.Requests))
		for i, er := range req.Requests {
			reqs[i] = er.toExtract()
		}
		out, err := svc.ExtractAll(mutationContext(r), reqs)
		if err != nil {
			stageError(w, r, "failed to extract documents", err)
			return
		}
		writeJSON(w, http.StatusOK, BatchExtractResponse{
			Success:     true,
			Extractions: out,
			Message:     fmt.Sprintf("Processed %d documents", len(out)),
		})
	}
}

func (er ExtractRequest) toExtract() extract.Request {
	return extract.Request{
		Text:         er.Text,
		DocumentType: nccd.DocumentType(er.DocumentType),
		Files:        er.Files,
	}
}

func handleLink(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LinkRequest
		if !decodeBody(w, r, &req) {
			return
		}

		links, err := svc.Link(mutationContext(r), req.Adjustments, req.Evidence)
		if err != nil {
			stageError(w, r, "failed to generate links", err)
			return
		}
		writeJSON(w, http.StatusOK, LinkResponse{
			Success: true,
			Links:   links,
			Message: fmt.Sprintf("Generated %d evidence links", len(links)),
		})
	}
}

func handleGetLink(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := svc.GetLink(r.Context(), chi.URLParam(r, "adjustmentID"), chi.URLParam(r, "evidenceID"))
		if err != nil {
			stageError(w, r, "failed to fetch link", err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	}
}

func handleReview(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReviewRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res, err := svc.Review(mutationContext(r), pipeline.ReviewRequest{
			AdjustmentID: req.AdjustmentID,
			EvidenceID:   req.EvidenceID,
			Status:       req.Status,
			Notes:        req.Notes,
		})
		if err != nil {
			stageError(w, r, "failed to review link", err)
			return
		}
		writeJSON(w, http.StatusOK, ReviewResponse{
			Success: true,
			Message: fmt.Sprintf("Evidence link %s successfully", res.Status),
			Updated: res.Updated,
		})
	}
}

func handleSummary(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Summary(r.Context())
		if err != nil {
			stageError(w, r, "failed to generate summary", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleStats(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context())
		if err != nil {
			stageError(w, r, "failed to compute stats", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleReset(svc *pipeline.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Reset(mutationContext(r)); err != nil {
			stageError(w, r, "failed to reset data", err)
			return
		}
		writeJSON(w, http.StatusOK, resetResponse{Success: true, Message: "All data cleared"})
	}
}

// mutationContext keeps request values but drops cancellation, so a client
// that disconnects mid-delay still gets its records stored and only loses
// the response.
func mutationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// decodeBody reads a JSON request body into v. An empty body leaves v zeroed
// so that field validation reports the missing fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}
