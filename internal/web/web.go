// Package web holds the JSON response envelope and middleware shared by the
// worker and balancer HTTP layers.
package web

import (
	"net/http"

	"anvil/internal/codec"
	"anvil/internal/logger"
	"anvil/model"
)

// StatusFor maps a wire error code to its HTTP status. A busy worker is a
// 500 because the legacy clients key off that status before reading the
// code; changing it would strand them.
func StatusFor(code string) int {
	switch code {
	case model.CodeWorkerBusy:
		return http.StatusInternalServerError
	case model.CodeUnknownTicket:
		return http.StatusNotFound
	case model.CodeBadRequest:
		return http.StatusBadRequest
	case model.CodeNoWorkerAvailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := codec.Encode(v)
	if err != nil {
		logger.Log.Error().Err(err).Msg("unable to encode response")
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteError writes the error envelope for err, mapping the shared sentinels
// onto their wire codes.
func WriteError(w http.ResponseWriter, err error) {
	code := model.CodeFor(err)
	WriteJSON(w, StatusFor(code), model.ErrorBody{
		Error: model.ErrorDetail{Code: code, Message: err.Error()},
	})
}

// WriteBadRequest is for malformed input, which has no sentinel.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, model.ErrorBody{
		Error: model.ErrorDetail{Code: model.CodeBadRequest, Message: msg},
	})
}
