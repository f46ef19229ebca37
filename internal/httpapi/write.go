package httpapi

import (
	"net/http"

	"github.com/John-Robertt/subsync-go/internal/model"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope and counts it in /metrics.
func WriteError(w http.ResponseWriter, status int, e model.AppError) {
	metricsIncAppError(e.Stage, e.Code)
	WriteJSON(w, status, model.ErrorResponse{Error: e})
}
