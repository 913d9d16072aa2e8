package gate

import (
	"encoding/json"
	"net/http"
)

// Messages of the structured error bodies.
const (
	MessageTokenExpired = "Token Expired"
	MessageBadToken     = "Bad Token"
)

// errorBody renders as {"error":{"code":401,"message":"Token Expired"}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: status, Message: message}})
}

// writePreflight answers a CORS preflight with an empty JSON array.
func writePreflight(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, []struct{}{})
}
