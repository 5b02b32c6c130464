package server

import (
	"encoding/json"
	"net/http"

	"wallet-score/internal/domain"
)

// envelope wraps every API response.
type envelope struct {
	Succeeded bool       `json:"succeeded"`
	Data      any        `json:"data,omitempty"`
	Messages  []string   `json:"messages"`
	Error     *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"succeeded":false,"error":{"code":"internal","message":"internal error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError reports err with its classification; causes never reach the caller.
func writeError(w http.ResponseWriter, err error, messages []string) {
	code := domain.CodeOf(err)
	msg := domain.PublicMessage(err)
	if len(messages) == 0 {
		messages = []string{msg}
	}
	writeJSON(w, statusFor(code), envelope{
		Succeeded: false,
		Messages:  messages,
		Error:     &errorBody{Code: code, Message: msg},
	})
}

// statusClientClosedRequest is nginx's non-standard code for an abandoned request.
const statusClientClosedRequest = 499

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidAddress, domain.CodeMissingRequiredInput:
		return http.StatusBadRequest
	case domain.CodeNoData:
		return http.StatusNotFound
	case domain.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case domain.CodeCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
