package guard

import (
	"encoding/json"
	"net/http"
	"time"

	"sentinela-gateway/middleware/guard/domain"
)

type messageBody struct {
	Message string `json:"message"`
}

// WriteJSON escreve v como JSON com o status informado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage escreve {"message": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, messageBody{Message: msg})
}

// writeRejection traduz o resultado do gate para status + mensagem.
func writeRejection(w http.ResponseWriter, dec domain.Decision) {
	switch dec.Outcome {
	case domain.OutcomeMissingKey:
		WriteMessage(w, http.StatusUnauthorized, "API key required")
	case domain.OutcomeBlocked:
		WriteMessage(w, http.StatusForbidden, "Client blocked")
	case domain.OutcomeInvalidKey:
		WriteMessage(w, http.StatusForbidden, "Invalid API key")
	case domain.OutcomeRateLimited:
		if dec.RetryAfter > 0 {
			w.Header().Set("Retry-After", formatInt(int((dec.RetryAfter+time.Second-1)/time.Second)))
		}
		w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
		WriteMessage(w, http.StatusTooManyRequests, "Too many requests")
	default:
		WriteMessage(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
