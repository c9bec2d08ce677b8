package bridge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mCat-0/mCat-ac/internal/app"
	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/fetch"
	"github.com/mCat-0/mCat-ac/internal/progress"
	"github.com/mCat-0/mCat-ac/internal/reconcile"
	"github.com/mCat-0/mCat-ac/internal/sharecode"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// classify maps an error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, progress.ErrInvalidUser),
		errors.Is(err, app.ErrNoTokens),
		errors.Is(err, sharecode.ErrInvalidCode):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, app.ErrNothingRecorded),
		errors.Is(err, progress.ErrNothingToReset),
		errors.Is(err, sharecode.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrNothingExtracted),
		errors.Is(err, sharecode.ErrNoPayload):
		return http.StatusUnprocessableEntity, "nothing_extracted"
	case errors.Is(err, sharecode.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, app.ErrRefreshRunning):
		return http.StatusConflict, "refresh_running"
	case errors.Is(err, catalog.ErrCatalogFormat):
		return http.StatusInternalServerError, "catalog_malformed"
	case errors.Is(err, reconcile.ErrNoCatalog),
		errors.Is(err, catalog.ErrCatalogUnavailable),
		errors.Is(err, catalog.ErrNothingDownloaded):
		return http.StatusServiceUnavailable, "catalog_unavailable"
	case errors.Is(err, sharecode.ErrNetwork),
		errors.Is(err, fetch.ErrAllMirrorsFailed):
		return http.StatusBadGateway, "upstream"
	}
	var status *fetch.ErrHTTPStatus
	if errors.As(err, &status) {
		return http.StatusBadGateway, "upstream"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Code: code, Message: app.UserMessage(err)}
	if errors.Is(err, errBadRequest) {
		resp.Message = err.Error()
	}

	var nf *app.NotFoundError
	if errors.As(err, &nf) {
		resp.Details = notFoundJSON(nf.Items)
	}

	log := s.log.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
