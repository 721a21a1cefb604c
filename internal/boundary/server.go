// Server exposes the localhost-only status/control surface the out-of-
// scope renderer UI talks to: list releases, stream progress, and issue
// pause/resume (there is no cancel route), grounded on api/webserver/webserver.go's
// mux.Router + tollbooth.LimitHandler wrapping and on gorilla/websocket
// for the progress stream.
package boundary

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kestrelgames/cytrus-updater/internal/queue"
)

// QueueView is the subset of *queue.Queue the status server reads and
// drives, kept narrow the same way sequencer.Release and queue.Runner are.
type QueueView interface {
	Current() *queue.Update
	Pending() []*queue.Update
	PauseCurrentUpdate(byUser bool)
	ResumeUpdate(gameUID, release string, byUser bool) error
}

// Server is the boundary's HTTP+websocket surface and also the
// RendererChannel implementation: Broadcast fans out to every connected
// websocket client.
type Server struct {
	addr    string
	q       QueueView
	limiter *limiter.Limiter

	httpSrv *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewServer builds a Server bound to bindAddress:port, rate-limited at
// requestsPerSecond with burstCount (0 disables the limiter, matching
// tollbooth.NewLimiter(0, nil)'s "unlimited" convention).
func NewServer(bindAddress string, port int, q QueueView, requestsPerSecond float64, burstCount int) *Server {
	return &Server{
		addr:    bindAddress + ":" + strconv.Itoa(port),
		q:       q,
		limiter: newLimiter(requestsPerSecond, burstCount),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func newLimiter(requestsPerSecond float64, burstCount int) *limiter.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	limiter := tollbooth.NewLimiter(requestsPerSecond, nil)
	limiter.SetBurst(burstCount)
	limiter.SetTokenBucketExpirationTTL(time.Hour)
	return limiter
}

// Start mounts the router and begins serving in a background goroutine.
func (s *Server) Start() error {
	rtr := mux.NewRouter()
	rtr.HandleFunc("/status", s.handleStatus).Methods("GET")
	rtr.HandleFunc("/pause", s.handlePause).Methods("POST")
	rtr.HandleFunc("/resume", s.handleResume).Methods("POST")
	rtr.HandleFunc("/progress", s.handleProgressStream).Methods("GET")

	var handler http.Handler = rtr
	if s.limiter != nil {
		handler = tollbooth.LimitHandler(s.limiter, rtr)
	}

	s.httpSrv = &http.Server{Addr: s.addr, Handler: handler}
	logrus.Info("boundary: listening on ", s.addr)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Error("boundary: server error: ", err)
		}
	}()
	return nil
}

// Close shuts down the HTTP server and drops every connected websocket.
func (s *Server) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

type statusUpdate struct {
	GameUID      string `json:"gameUid"`
	Release      string `json:"release"`
	PausedByUser bool   `json:"pausedByUser"`
	Running      bool   `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var out []statusUpdate
	if cur := s.q.Current(); cur != nil {
		out = append(out, statusUpdate{GameUID: cur.GameUID, Release: cur.Release, PausedByUser: cur.PausedByUser(), Running: true})
	}
	for _, u := range s.q.Pending() {
		out = append(out, statusUpdate{GameUID: u.GameUID, Release: u.Release, PausedByUser: u.PausedByUser(), Running: false})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.q.PauseCurrentUpdate(true)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	gameUID := r.URL.Query().Get("gameUid")
	release := r.URL.Query().Get("release")
	if err := s.q.ResumeUpdate(gameUID, release, true); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warn("boundary: websocket upgrade failed: ", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type broadcastEnvelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Broadcast implements boundary.RendererChannel by fanning out event/
// payload as JSON to every connected websocket client.
func (s *Server) Broadcast(event string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if err := c.WriteJSON(broadcastEnvelope{Event: event, Payload: payload}); err != nil {
			logrus.Debug("boundary: dropping websocket client: ", err)
			c.Close()
			delete(s.clients, c)
		}
	}
}
