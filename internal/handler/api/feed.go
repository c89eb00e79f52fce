package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RiskPulse/internal/domain/models"
	domrepo "RiskPulse/internal/domain/repository"
	"RiskPulse/internal/service/metrics"
	applogger "RiskPulse/pkg/logger"
)

const feedWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FeedMessage is the envelope pushed to dashboards.
type FeedMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ReportFeed pushes a notice to every connected websocket client when a
// report is regenerated.
type ReportFeed struct {
	l       *applogger.Logger
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

func NewReportFeed(l *applogger.Logger) *ReportFeed {
	if l == nil {
		l = applogger.Nop()
	}
	return &ReportFeed{l: l, clients: make(map[*websocket.Conn]*sync.Mutex)}
}

var _ domrepo.ReportNotifier = (*ReportFeed)(nil)

// Serve upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (f *ReportFeed) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		f.l.Warn("feed upgrade failed", applogger.Error(err))
		return nil
	}
	f.add(conn)
	defer f.remove(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (f *ReportFeed) Notify(n models.ReportNotice) {
	data, err := json.Marshal(FeedMessage{Type: "report_generated", Payload: n})
	if err != nil {
		f.l.Error("feed marshal failed", applogger.Error(err))
		return
	}

	f.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	locks := make([]*sync.Mutex, 0, len(f.clients))
	for conn, mu := range f.clients {
		conns = append(conns, conn)
		locks = append(locks, mu)
	}
	f.mu.RUnlock()

	for i, conn := range conns {
		locks[i].Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		locks[i].Unlock()
		if err != nil {
			f.l.Warn("feed write failed, dropping client", applogger.Error(err))
			f.remove(conn)
		}
	}
}

// Clients returns the number of connected clients.
func (f *ReportFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close disconnects every client.
func (f *ReportFeed) Close() error {
	f.mu.Lock()
	conns := f.clients
	f.clients = make(map[*websocket.Conn]*sync.Mutex)
	f.mu.Unlock()
	for conn := range conns {
		_ = conn.Close()
		metrics.FeedClients.Dec()
	}
	return nil
}

func (f *ReportFeed) add(conn *websocket.Conn) {
	f.mu.Lock()
	f.clients[conn] = &sync.Mutex{}
	f.mu.Unlock()
	metrics.FeedClients.Inc()
	f.l.Debug("feed client connected", applogger.String("remote", conn.RemoteAddr().String()))
}

func (f *ReportFeed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	_, ok := f.clients[conn]
	delete(f.clients, conn)
	f.mu.Unlock()
	if ok {
		_ = conn.Close()
		metrics.FeedClients.Dec()
	}
}
