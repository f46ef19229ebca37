package httpapi

import "net/http"

func NewMux() *http.ServeMux {
	return NewMuxWithOptions(Options{})
}

func NewMuxWithOptions(opt Options) *http.ServeMux {
	opt = opt.withDefaults()
	h := apiHandler{opt: opt}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /metrics", handleMetrics)
	mux.HandleFunc("POST /api/sync", h.handleSync)
	mux.HandleFunc("POST /api/mapping/apply", h.handleMappingApply)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}
