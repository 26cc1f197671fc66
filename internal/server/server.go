package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/config"
	"github.com/audiolibrelab/gazecapture/internal/recorder"
	"github.com/audiolibrelab/gazecapture/internal/service"
	"github.com/audiolibrelab/gazecapture/internal/source"
)

// Server represents the web server for controlling GazeCapture
type Server struct {
	service service.Service
	source  source.Source
	port    string
	mux     *http.ServeMux

	// captures run detached from the request that started them
	baseCtx context.Context
}

// StartRequest is the optional body of POST /api/start.
type StartRequest struct {
	Session string `json:"session"`
}

// UserInfoRequest is the body of PUT /api/user-info.
type UserInfoRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AttemptsResponse represents the JSON response for the attempts endpoint
type AttemptsResponse struct {
	Session    string                `json:"session"`
	Attempts   []service.AttemptInfo `json:"attempts"`
	TotalCount int                   `json:"total_count"`
}

// New creates a new web server instance
func New(svc service.Service, src source.Source, port string) *Server {
	s := &Server{
		service: svc,
		source:  src,
		port:    port,
		mux:     http.NewServeMux(),
		baseCtx: context.Background(),
	}

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/start", s.handleStart)
	s.mux.HandleFunc("/api/stop", s.handleStop)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/attempts", s.handleAttempts)
	s.mux.HandleFunc("/api/user-info", s.handleUserInfo)
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// WatchConfig reloads the service whenever cfg's file changes. Changes made
// while recording are applied to nothing and logged.
func (s *Server) WatchConfig(cfg *config.Config) {
	cfg.Watch(func(next *config.Config) {
		if err := s.service.Reload(next); err != nil {
			slog.Warn("Config change not applied", "error", err)
		}
	})
}

// Start starts the web server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Get local IP address
	localIP := getLocalIP()

	slog.Info("Starting GazeCapture Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// handleIndex serves a short description of the API
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(getDefaultHTML()))
}

func getDefaultHTML() string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>GazeCapture</title>
</head>
<body>
    <h1>GazeCapture</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>POST /api/start - Start a recording attempt</li>
        <li>POST /api/stop - Stop and finalize the attempt</li>
        <li>GET /api/status - Get status</li>
        <li>GET /api/attempts?session=NAME - List attempts</li>
        <li>GET|PUT|DELETE /api/user-info - Edit user info</li>
    </ul>
</body>
</html>`
}

// handleStart starts an attempt and the frame capture feeding it
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	var req StartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	}

	if name := strings.TrimSpace(req.Session); name != "" {
		next := *s.service.GetConfig()
		next.SetSessionName(name)
		if err := s.service.Reload(&next); err != nil {
			s.sendErrorResponse(w, statusFor(err), fmt.Sprintf("Failed to set session: %v", err), "session", name)
			return
		}
	}

	attempt, err := s.service.Start(r.Context())
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start_recording")
		return
	}

	if s.source != nil {
		go func() {
			if err := s.service.Capture(s.baseCtx, s.source); err != nil {
				slog.Error("Capture stopped", "error", err)
			}
		}()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording started",
		"attempt": attempt,
	})
}

// handleStop stops the current attempt
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	summary, err := s.service.Stop(r.Context())
	if err != nil {
		s.sendErrorResponse(w, statusFor(err),
			fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop_recording")
		return
	}

	response := map[string]interface{}{
		"success": true,
		"message": "Recording saved",
		"summary": summary,
	}
	if len(summary.Report.Skipped) > 0 {
		response["skipped"] = summary.Report.Skipped
	}
	writeJSON(w, http.StatusOK, response)
}

// handleStatus returns the current status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleAttempts lists the attempts of a session
func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		session = s.service.GetConfig().SessionName
	}
	if strings.Contains(session, "..") {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid session name", "session", session)
		return
	}

	attempts, err := s.service.ListAttempts(session)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list attempts: %v", err), "session", session)
		return
	}

	writeJSON(w, http.StatusOK, AttemptsResponse{
		Session:    session,
		Attempts:   attempts,
		TotalCount: len(attempts),
	})
}

// handleUserInfo reads and edits the user info entries
func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.UserInfo())

	case http.MethodPut:
		var req UserInfoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
		if err := s.service.SetUserInfo(req.Key, req.Value); err != nil {
			s.sendErrorResponse(w, statusFor(err), fmt.Sprintf("Failed to set user info: %v", err), "key", req.Key)
			return
		}
		writeJSON(w, http.StatusOK, s.service.UserInfo())

	case http.MethodDelete:
		key := r.URL.Query().Get("key")
		if key == "" {
			s.sendErrorResponse(w, http.StatusBadRequest, "Missing key parameter")
			return
		}
		if err := s.service.RemoveUserInfo(key); err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove user info: %v", err), "key", key)
			return
		}
		writeJSON(w, http.StatusOK, s.service.UserInfo())

	default:
		s.methodNotAllowed(w)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording), errors.Is(err, recorder.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
