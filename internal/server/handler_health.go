package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Searches  int    `json:"searches"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Searches:  s.history.len(),
	})
}

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "worksizing API",
		Version:     "v1",
		Description: "Smallest-multiple block search over a bounded worker pool",
		Endpoints: []endpointInfo{
			{"/api/v1/searches", []string{"GET", "POST"}, "Run a search (POST) or list recent results"},
			{"/api/v1/searches/{id}", []string{"GET"}, "Single search result by run ID"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
