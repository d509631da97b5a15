package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 注册 /metrics、/health 和 /api/v1/status
func NewRouter(status *Status) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// 健康检查端点，模块启动完成前返回 503
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if !status.Snapshot().Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("STARTING"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)

	return r
}
