package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bloodbank/internal/apperr"
)

type errorDetail struct {
	Kind    apperr.Kind       `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func mapErrorToStatus(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindNotReady, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case apperr.KindSourceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := mapErrorToStatus(kind)
	detail := errorDetail{Kind: kind, Message: err.Error()}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		detail.Message = ae.Message
		detail.Fields = ae.Fields
	}
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", "kind", kind, "err", err)
		if kind == apperr.KindInternal {
			detail.Message = "internal error"
		}
	default:
		log.Debug("request rejected", "kind", kind, "err", err)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
