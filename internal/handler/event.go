package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"snackngo/internal/chat"
	"snackngo/internal/engine"
)

// EventsHandler receives chat-bridge webhook deliveries and feeds them to
// the workflow engine.
func EventsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev chat.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		err := eng.HandleEvent(r.Context(), ev)
		if err != nil {
			slog.Warn("event handling failed",
				"kind", ev.Kind, "conversation_id", ev.ConversationID, "error", err)
			switch {
			case errors.Is(err, engine.ErrValidation):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			case errors.Is(err, engine.ErrNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, engine.ErrExtraction):
				http.Error(w, "extraction failed", http.StatusBadGateway)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]bool{"ok": true}); err != nil {
			slog.Error("encode response failed", "error", err)
		}
	}
}
