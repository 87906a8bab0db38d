// Package server exposes the latest planning results over HTTP and pushes
// planner events to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gonum.org/v1/plot"

	"github.com/devskill-org/gridplan/network"
	"github.com/devskill-org/gridplan/plotting"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Source provides the results the server publishes.
type Source interface {
	// Network returns the latest solved network, or nil before the first
	// solve has finished.
	Network() *network.Network
	// RenderPlot renders one of plotting.Charts.
	RenderPlot(name string) (*plot.Plot, error)
	// Busy reports whether a solve is running.
	Busy() bool
}

// WebServer provides HTTP endpoints for health checking, results and plots
type WebServer struct {
	source         Source
	logger         *zap.Logger
	server         *http.Server
	addr           string
	listener       net.Listener
	startTime      time.Time
	upgrader       websocket.Upgrader
	clients        sync.Map
	broadcast      chan []byte
	done           chan struct{}
	wg             sync.WaitGroup
	statusInterval time.Duration
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Planner   PlannerHealth `json:"planner"`
	System    SystemHealth  `json:"system"`
}

// PlannerHealth represents planner-specific health information
type PlannerHealth struct {
	Busy      bool   `json:"busy"`
	Solved    bool   `json:"solved"`
	Status    string `json:"status,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// SystemHealth represents system-level health information
type SystemHealth struct {
	Uptime string `json:"uptime"`
}

// ResultsResponse is the body of /api/results
type ResultsResponse struct {
	Status     string             `json:"status"`
	Condition  string             `json:"condition"`
	Objective  float64            `json:"objective"`
	Snapshots  int                `json:"snapshots"`
	Capacities []network.Capacity `json:"capacities"`
}

// NewWebServer creates a server listening on addr, e.g. ":8080". An empty
// addr disables the server and returns nil.
func NewWebServer(source Source, addr string, logger *zap.Logger) *WebServer {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	hs := &WebServer{
		source:    source,
		logger:    logger,
		addr:      addr,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast:      make(chan []byte, 256),
		done:           make(chan struct{}),
		statusInterval: 5 * time.Second,
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("GET /api/health", hs.healthHandler)
	mux.HandleFunc("GET /api/results", hs.resultsHandler)
	mux.HandleFunc("GET /api/plots/{name}", hs.plotHandler)
	mux.HandleFunc("/api/ws", hs.wsHandler)

	return hs
}

// Start binds the listen address and serves in the background.
func (hs *WebServer) Start() error {
	if hs == nil {
		return nil
	}

	ln, err := net.Listen("tcp", hs.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", hs.addr, err)
	}
	hs.listener = ln

	hs.wg.Add(3)
	go func() {
		defer hs.wg.Done()
		hs.handleBroadcasts()
	}()
	go func() {
		defer hs.wg.Done()
		hs.broadcastStatus()
	}()
	go func() {
		defer hs.wg.Done()
		if err := hs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("Web server error", zap.Error(err))
		}
	}()

	hs.logger.Info("Web server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once the server has started.
func (hs *WebServer) Addr() string {
	if hs == nil || hs.listener == nil {
		return ""
	}
	return hs.listener.Addr().String()
}

// Stop gracefully stops the web server
func (hs *WebServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil
	}

	close(hs.done)

	hs.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	err := hs.server.Shutdown(ctx)
	hs.wg.Wait()
	return err
}

// Publish sends v as JSON to every websocket client. Messages are dropped
// when the broadcast queue is full.
func (hs *WebServer) Publish(v any) {
	if hs == nil {
		return
	}
	message, err := json.Marshal(v)
	if err != nil {
		hs.logger.Warn("Failed to marshal broadcast message", zap.Error(err))
		return
	}
	select {
	case hs.broadcast <- message:
	case <-hs.done:
	default:
		hs.logger.Warn("Broadcast queue full, dropping message")
	}
}

func (hs *WebServer) health() HealthResponse {
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Planner:   PlannerHealth{Busy: hs.source.Busy()},
		System:    SystemHealth{Uptime: formatUptime(time.Since(hs.startTime))},
	}
	if n := hs.source.Network(); n != nil {
		health.Planner.Solved = true
		health.Planner.Status = n.Status
		health.Planner.Condition = n.Condition
		if n.Status != "ok" {
			health.Status = "degraded"
		}
	}
	return health
}

// healthHandler handles the /api/health endpoint
func (hs *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hs.health())
}

// resultsHandler handles the /api/results endpoint
func (hs *WebServer) resultsHandler(w http.ResponseWriter, r *http.Request) {
	n := hs.source.Network()
	if n == nil {
		http.Error(w, "No results available yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, ResultsResponse{
		Status:     n.Status,
		Condition:  n.Condition,
		Objective:  n.Objective,
		Snapshots:  len(n.Snapshots),
		Capacities: n.Capacities(),
	})
}

// plotHandler renders /api/plots/{name} as PNG
func (hs *WebServer) plotHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, err := hs.source.RenderPlot(name)
	switch {
	case errors.Is(err, plotting.ErrUnknownChart):
		http.Error(w, fmt.Sprintf("Unknown plot %q", name), http.StatusNotFound)
		return
	case errors.Is(err, plotting.ErrNotSolved), errors.Is(err, plotting.ErrNoData):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		hs.logger.Error("Failed to render plot", zap.String("plot", name), zap.Error(err))
		http.Error(w, "Failed to render plot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := plotting.Encode(w, p, "png", plotting.DefaultWidth, plotting.DefaultHeight); err != nil {
		hs.logger.Error("Failed to encode plot", zap.String("plot", name), zap.Error(err))
	}
}

// wsHandler handles WebSocket connections
func (hs *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hs.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	// gorilla connections allow one concurrent writer
	mu := &sync.Mutex{}
	mu.Lock()
	hs.clients.Store(conn, mu)
	err = conn.WriteJSON(hs.statusMessage())
	mu.Unlock()
	if err != nil {
		hs.logger.Warn("Failed to send initial data", zap.Error(err))
	}
	hs.logger.Debug("WebSocket client connected", zap.Int("clients", hs.clientCount()))

	defer func() {
		hs.clients.Delete(conn)
		conn.Close()
		hs.logger.Debug("WebSocket client disconnected", zap.Int("clients", hs.clientCount()))
	}()

	// Read until the client goes away; clients only send pings and closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hs.logger.Debug("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}

func (hs *WebServer) clientCount() int {
	count := 0
	hs.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// handleBroadcasts sends messages to all connected clients
func (hs *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-hs.broadcast:
			hs.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				mu, _ := value.(*sync.Mutex)
				if !ok || mu == nil {
					return true
				}
				mu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, message)
				mu.Unlock()
				if err != nil {
					hs.logger.Debug("WebSocket write error", zap.Error(err))
					conn.Close()
					hs.clients.Delete(conn)
				}
				return true
			})
		case <-hs.done:
			return
		}
	}
}

// broadcastStatus periodically broadcasts status updates
func (hs *WebServer) broadcastStatus() {
	ticker := time.NewTicker(hs.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if hs.clientCount() > 0 {
				hs.Publish(hs.statusMessage())
			}
		case <-hs.done:
			return
		}
	}
}

func (hs *WebServer) statusMessage() map[string]any {
	return map[string]any{
		"type":   "status_update",
		"health": hs.health(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
