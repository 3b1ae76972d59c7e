package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/policyhub/internal/core"
	"github.com/JonMunkholm/policyhub/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// handleUpload ingests a multipart "file" field. The request is traced even
// when the file is missing, so the client always gets an operation id once
// the upload slot was granted.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	name, data, err := readUploadFile(r, maxSize)
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}

	resp, err := s.service.Upload(r.Context(), core.UploadRequest{
		FileName:      name,
		Data:          data,
		CorrelationID: logging.CorrelationID(r.Context()),
	})
	if err != nil {
		var opID string
		if resp != nil {
			opID = resp.OperationID
		}
		s.respondError(w, r, err, opID)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// readUploadFile returns the uploaded file. A request without a file yields
// nil data and no error; the service reports that as ErrNoFile.
func readUploadFile(r *http.Request, maxSize int64) (string, []byte, error) {
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("%w: request body exceeds %d bytes", core.ErrFileTooLarge, tooLarge.Limit)
		}
		return "", nil, nil
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", core.ErrNoFile, err)
	}
	defer file.Close()

	// One byte past the limit lets the pipeline report the size error.
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: read upload: %w", core.ErrInvalidCSV, err)
	}
	return header.Filename, data, nil
}

type pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type policyListResponse struct {
	Items      []core.Policy `json:"items"`
	Pagination pagination    `json:"pagination"`
}

// handleListPolicies returns one page of stored policies.
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.service.ListPolicies(r.Context(), core.ListFilter{
		Limit:      parseIntParam(r, "limit", core.DefaultListLimit),
		Offset:     parseOffsetParam(r),
		Status:     core.PolicyStatus(q.Get("status")),
		PolicyType: core.PolicyType(q.Get("policy_type")),
		Query:      q.Get("q"),
	})
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}

	writeJSON(w, r, http.StatusOK, policyListResponse{
		Items:      page.Items,
		Pagination: pagination{Limit: page.Limit, Offset: page.Offset, Total: page.Total},
	})
}

// handleSummary returns portfolio aggregates.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.service.Summary(r.Context())
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// handleGetOperation returns one traced upload operation.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.service.Operation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, "")
		return
	}
	writeJSON(w, r, http.StatusOK, op)
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Checks  map[string]string        `json:"checks,omitempty"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleHealth pings each dependency and reports upload slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Uploads: s.service.UploadStatus()}
	status := http.StatusOK

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		for name, check := range s.checks {
			if err := check.Ping(ctx); err != nil {
				logging.FromContext(r.Context()).Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, r, status, resp)
}
