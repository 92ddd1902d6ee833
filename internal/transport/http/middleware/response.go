package middleware

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// errorBody mirrors handler.MessageEnvelope so middleware rejections and
// handler errors share one shape on the wire.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:     msg,
		ErrorCode: status,
		RequestID: chimw.GetReqID(r.Context()),
	})
}
