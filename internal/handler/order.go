package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"snackngo/internal/engine"
	"snackngo/internal/mw"
	"snackngo/internal/store"
)

// StartOrderHandler begins a new submission: the engine opens a dedicated
// conversation and creates the order record behind it.
func StartOrderHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(mw.UserCtxKey).(string)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		order, err := eng.StartSubmission(r.Context(), userID)
		if err != nil {
			slog.Error("start submission failed", "user_id", userID, "error", err)
			http.Error(w, "could not start a submission", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(order); err != nil {
			slog.Error("encode order failed", "error", err)
		}
	}
}

func ListOrdersHandler(orders *store.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(mw.UserCtxKey).(string)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		list, err := orders.ListByUser(r.Context(), userID)
		if err != nil {
			slog.Error("list orders failed", "user_id", userID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if len(list) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(list); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}
