// Copyright 2025 The Doclens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/doclens/doclens/pkg/admission"
	"github.com/doclens/doclens/pkg/analyzer"
	"github.com/doclens/doclens/pkg/credits"
	"github.com/doclens/doclens/pkg/extract"
	"github.com/doclens/doclens/pkg/guestquota"
)

// analyzeResponse is the body of a successful analysis.
type analyzeResponse struct {
	Document documentInfo     `json:"document"`
	Analysis *analyzer.Result `json:"analysis"`
	Usage    *usageInfo       `json:"usage,omitempty"`
}

type documentInfo struct {
	Format extract.Format `json:"format"`
	Pages  int            `json:"pages,omitempty"`
	Words  int            `json:"words"`
}

// usageInfo reports the caller's remaining allowance after the operation.
type usageInfo struct {
	Class     string     `json:"class"`
	AccountID string     `json:"account_id,omitempty"`
	Credits   *int64     `json:"credits,omitempty"`
	Used      *int64     `json:"used,omitempty"`
	Remaining *int64     `json:"remaining,omitempty"`
	Limit     *int64     `json:"limit,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleAnalyze runs the gated analysis. The admission gate has already
// allowed the request; this handler performs the work and settles the
// bill afterwards, consume-on-success.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	identity, ok := admission.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "identity missing after admission")
		return
	}

	filename, data, err := readDocument(w, r, s.cfg.MaxUploadBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "DOCUMENT_TOO_LARGE", "document exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	doc, err := extract.Extract(r.Context(), filename, data)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", err.Error())
		case errors.Is(err, extract.ErrEmptyDocument):
			writeError(w, http.StatusBadRequest, "EMPTY_DOCUMENT", err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, "EXTRACTION_FAILED", err.Error())
		}
		return
	}

	start := time.Now()
	result, usage, err := s.analyzeAndSettle(r, identity, doc)
	s.metrics.RecordAnalyze(r.Context(), string(doc.Format), time.Since(start), doc.Words, err)
	if err != nil {
		s.writeSettleError(w, identity, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Document: documentInfo{Format: doc.Format, Pages: doc.Pages, Words: doc.Words},
		Analysis: result,
		Usage:    usage,
	})
}

// analyzeAndSettle runs the analyzer and charges the caller on success:
// a credit debit for registered accounts, a quota increment for guests.
func (s *Server) analyzeAndSettle(r *http.Request, identity admission.Identity, doc *extract.Document) (*analyzer.Result, *usageInfo, error) {
	ctx := r.Context()

	if identity.Class == admission.ClassRegistered {
		result, err := admission.ConsumeOnSuccess(ctx, s.guard, identity.AccountID, func(opCtx context.Context) (*analyzer.Result, error) {
			return s.analyzer.Analyze(opCtx, doc.Text)
		})
		if err != nil {
			return nil, nil, err
		}

		usage := &usageInfo{Class: string(identity.Class), AccountID: identity.AccountID}
		if balance, err := s.guard.CreditBalance(ctx, identity.AccountID); err == nil {
			usage.Credits = &balance
		}
		return result, usage, nil
	}

	result, err := s.analyzer.Analyze(ctx, doc.Text)
	if err != nil {
		return nil, nil, err
	}

	status, err := s.guard.ConsumeGuest(ctx, identity.GuestID)
	if err != nil {
		return nil, nil, err
	}

	return result, guestUsage(identity.GuestID, status), nil
}

// writeSettleError maps post-admission failures. Losing a race for the
// last credits or the last quota unit is a plain quota rejection; a debit
// that failed after successful work is a billing incident and is logged
// loudly before the request fails.
func (s *Server) writeSettleError(w http.ResponseWriter, identity admission.Identity, err error) {
	switch {
	case credits.IsInsufficientCredits(err):
		writeError(w, http.StatusPaymentRequired,
			string(admission.CodeInsufficientCredits), admission.CodeInsufficientCredits.Message())

	case errors.Is(err, guestquota.ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired,
			string(admission.CodeGuestQuotaExceeded), admission.CodeGuestQuotaExceeded.Message())

	case credits.IsBillingError(err):
		slog.Error("billing failure after successful analysis",
			"account", identity.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "BILLING_FAILED", "analysis completed but billing failed")

	default:
		slog.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ANALYSIS_FAILED", "analysis failed")
	}
}

// handleUsage reports the caller's current balance or allowance without
// consuming anything.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	identity, ok := admission.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "identity missing after admission")
		return
	}

	if identity.Class == admission.ClassRegistered {
		balance, err := s.guard.CreditBalance(r.Context(), identity.AccountID)
		if err != nil {
			// An account with no ledger row has simply never been
			// provisioned credits.
			if errors.Is(err, credits.ErrAccountNotFound) {
				balance = 0
			} else {
				writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to read balance")
				return
			}
		}
		writeJSON(w, http.StatusOK, usageInfo{
			Class:     string(identity.Class),
			AccountID: identity.AccountID,
			Credits:   &balance,
		})
		return
	}

	status, err := s.guard.GuestStatus(r.Context(), identity.GuestID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to read quota")
		return
	}
	writeJSON(w, http.StatusOK, *guestUsage(identity.GuestID, status))
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readDocument pulls the upload out of the request: the "document" part
// of a multipart form, or the raw body with an optional filename query
// parameter as the format hint.
func readDocument(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return "", nil, err
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			return "", nil, errors.New("multipart request needs a \"document\" file field")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, err
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, err
	}
	return r.URL.Query().Get("filename"), data, nil
}

func guestUsage(guestID string, status *guestquota.Status) *usageInfo {
	return &usageInfo{
		Class:     string(admission.ClassGuest),
		Used:      &status.Used,
		Remaining: &status.Remaining,
		Limit:     &status.Limit,
		ExpiresAt: &status.ExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
