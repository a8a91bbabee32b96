package api

import (
	"encoding/json"
	"net/http"

	"InvoiceRecon/api/constants"
)

// RespondWithError sends {"success": false, "error": msg}.
func RespondWithError(w http.ResponseWriter, status int, errMsg string) {
	respond(w, status, map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

// RespondWithErrorDetails is RespondWithError plus a details payload.
func RespondWithErrorDetails(w http.ResponseWriter, status int, errMsg string, details interface{}) {
	respond(w, status, map[string]interface{}{
		"success": false,
		"error":   errMsg,
		"details": details,
	})
}

// RespondWithPayload sends a consistent JSON response and includes an arbitrary payload
func RespondWithPayload(w http.ResponseWriter, success bool, errMsg string, payload interface{}) {
	resp := map[string]interface{}{"success": success}
	if !success && errMsg != "" {
		resp["error"] = errMsg
	}
	if payload != nil {
		// use a conventional key `rows` for list payloads
		resp["rows"] = payload
	}
	respond(w, http.StatusOK, resp)
}

// RespondWithMessage sends a success response with a message and a payload.
func RespondWithMessage(w http.ResponseWriter, status int, msg string, payload interface{}) {
	respond(w, status, map[string]interface{}{
		"success": true,
		"message": msg,
		"data":    payload,
	})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
