package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grpck/sarscan/internal/analysis"
	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/monitoring"
	"github.com/grpck/sarscan/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db     *db.DB
	cfg    *config.AnalysisConfig
	runner *analysis.Runner
	tri    *analysis.Triangulator
	units  string
}

func NewServer(database *db.DB, cfg *config.AnalysisConfig, runner *analysis.Runner, defaultUnits string) *Server {
	if !units.IsValid(defaultUnits) {
		defaultUnits = units.MPS
	}
	return &Server{
		db:     database,
		cfg:    cfg,
		runner: runner,
		tri:    analysis.NewTriangulator(database, cfg),
		units:  defaultUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.homeHandler)
	mux.HandleFunc("/api/analyze/confidence/preview", s.previewConfidence)
	mux.HandleFunc("/api/analyze/confidence", s.applyConfidence)
	mux.HandleFunc("/api/triangulate/", s.triangulateDevice)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Sighting Analysis Server!"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to encode response: %v", err)
	}
}

// previewConfidence scores every device without persisting anything.
func (s *Server) previewConfidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	preview, err := s.runner.Preview(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}
	writeJSON(w, preview)
}

// applyConfidence runs a full pass and persists the proposed scores.
func (s *Server) applyConfidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	applied, err := s.runner.Apply(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}
	writeJSON(w, applied)
}

// triangulateDevice serves /api/triangulate/{mac}.
func (s *Server) triangulateDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mac := strings.TrimPrefix(r.URL.Path, "/api/triangulate/")
	if mac == "" || strings.Contains(mac, "/") {
		writeJSONError(w, http.StatusBadRequest, "missing device mac")
		return
	}

	speedUnits := s.units
	if q := r.URL.Query().Get("units"); q != "" {
		if !units.IsValid(q) {
			writeJSONError(w, http.StatusBadRequest, "invalid units: "+q)
			return
		}
		speedUnits = q
	}

	report, err := s.tri.Triangulate(r.Context(), mac, speedUnits)
	if errors.Is(err, db.ErrDeviceNotFound) {
		writeJSONError(w, http.StatusNotFound, "device not found: "+mac)
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "triangulation failed: "+err.Error())
		return
	}
	writeJSON(w, report)
}

type statusResponse struct {
	BTDevices      int              `json:"bt_devices"`
	WiFiDevices    int              `json:"wifi_devices"`
	TotalSightings int              `json:"total_sightings"`
	SessionStart   *int64           `json:"session_start,omitempty"`
	SessionEnd     *int64           `json:"session_end,omitempty"`
	RecentRuns     []db.AnalysisRun `json:"recent_runs"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	bt, wifi, err := s.db.CountDevices(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to count devices: "+err.Error())
		return
	}
	sightings, err := s.db.CountSightings(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to count sightings: "+err.Error())
		return
	}
	runs, err := s.db.RecentAnalysisRuns(ctx, 5)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load analysis runs: "+err.Error())
		return
	}

	resp := statusResponse{
		BTDevices:      bt,
		WiFiDevices:    wifi,
		TotalSightings: sightings,
		RecentRuns:     runs,
	}
	if runs == nil {
		resp.RecentRuns = []db.AnalysisRun{}
	}
	if start, end, ok, err := s.db.SessionWindow(ctx); err == nil && ok {
		resp.SessionStart = &start
		resp.SessionEnd = &end
	}
	writeJSON(w, resp)
}

type configResponse struct {
	SessionGapSeconds   int64    `json:"session_gap_seconds"`
	HQLat               *float64 `json:"hq_lat,omitempty"`
	HQLon               *float64 `json:"hq_lon,omitempty"`
	HQRadiusM           float64  `json:"hq_radius_m"`
	ClusterRadiusM      float64  `json:"cluster_radius_m"`
	StrongRSSIThreshold float64  `json:"strong_rssi_threshold"`
	BoundaryPercent     float64  `json:"boundary_percent"`
	ScanCadenceSeconds  float64  `json:"scan_cadence_seconds"`
	Units               string   `json:"units"`
}

// showConfig reports the effective analysis settings after defaults.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := configResponse{
		SessionGapSeconds:   s.cfg.GetSessionGapSeconds(),
		HQRadiusM:           s.cfg.GetHQRadiusM(),
		ClusterRadiusM:      s.cfg.GetClusterRadiusM(),
		StrongRSSIThreshold: s.cfg.GetStrongRSSIThreshold(),
		BoundaryPercent:     s.cfg.GetBoundaryPercent(),
		ScanCadenceSeconds:  s.cfg.GetScanCadenceSeconds(),
		Units:               s.units,
	}
	if lat, lon, ok := s.cfg.HQLocation(); ok {
		resp.HQLat = &lat
		resp.HQLon = &lon
	}
	writeJSON(w, resp)
}
