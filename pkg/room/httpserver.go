package room

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/shiv248/quillpad/pkg/database"
	"github.com/shiv248/quillpad/pkg/logger"
)

// document tracks a live Room alongside when it was last touched, so the
// cleaner can evict sessions nobody has visited recently.
type document struct {
	lastAccessed time.Time
	room         *Room
}

// registry holds every room the server currently has resident in memory.
type registry struct {
	rooms     sync.Map // map[string]*document
	startTime time.Time
	db        *database.Database
}

// Stats summarizes server-wide activity.
type Stats struct {
	StartTime    int64 `json:"start_time"`
	NumDocuments int   `json:"num_documents"`
	DatabaseSize int   `json:"database_size"`
}

// Server is the top-level HTTP surface: one websocket endpoint per
// document, a plaintext snapshot endpoint, a document-creation endpoint,
// and basic stats.
type Server struct {
	reg *registry
	mux *http.ServeMux

	maxDocumentSize     int
	broadcastBufferSize int
	readTimeout         time.Duration
	writeTimeout        time.Duration
}

// NewServer builds an HTTP server backed by an optional database (nil
// disables persistence entirely, running in-memory only).
func NewServer(db *database.Database, maxDocumentSize, broadcastBufferSize int, readTimeout, writeTimeout time.Duration) *Server {
	s := &Server{
		reg:                 &registry{startTime: time.Now(), db: db},
		mux:                 http.NewServeMux(),
		maxDocumentSize:     maxDocumentSize,
		broadcastBufferSize: broadcastBufferSize,
		readTimeout:         readTimeout,
		writeTimeout:        writeTimeout,
	}

	s.mux.HandleFunc("/api/socket/", s.handleSocket)
	s.mux.HandleFunc("/api/text/", s.handleText)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/document", s.handleCreateDocument)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleCreateDocument mints a fresh document id and eagerly creates its
// (empty) room, so the caller can immediately open a websocket to it.
// Route: POST /api/document
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := uuid.NewString()
	s.getOrCreateRoom(id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// handleSocket upgrades to a websocket for collaborative editing.
// Route: /api/socket/{id}
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Path[len("/api/socket/"):]
	if docID == "" {
		http.Error(w, "document ID required", http.StatusBadRequest)
		return
	}

	logger.Info("websocket request for document %s", docID)

	doc := s.getOrCreateRoom(docID)
	doc.lastAccessed = time.Now()

	if s.reg.db != nil {
		go s.persister(r.Context(), docID, doc.room)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Error("websocket upgrade failed: %v", err)
		return
	}

	connHandler := NewConnection(doc.room, conn, s.readTimeout, s.writeTimeout)
	if err := connHandler.Handle(r.Context()); err != nil {
		logger.Error("connection error: %v", err)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

// handleText returns the current document text as plain text.
// Route: /api/text/{id}
func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Path[len("/api/text/"):]
	if docID == "" {
		http.Error(w, "document ID required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if val, ok := s.reg.rooms.Load(docID); ok {
		w.Write([]byte(val.(*document).room.Text()))
		return
	}

	if s.reg.db != nil {
		if persisted, err := s.reg.db.Load(docID); err != nil {
			logger.Error("load document %s: %v", docID, err)
		} else if persisted != nil {
			w.Write([]byte(persisted.Text))
			return
		}
	}

	w.Write([]byte(""))
}

// handleStats returns server-wide activity counters.
// Route: /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	numDocs := 0
	s.reg.rooms.Range(func(_, _ interface{}) bool {
		numDocs++
		return true
	})

	dbSize := 0
	if s.reg.db != nil {
		if count, err := s.reg.db.Count(); err == nil {
			dbSize = count
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Stats{
		StartTime:    s.reg.startTime.Unix(),
		NumDocuments: numDocs,
		DatabaseSize: dbSize,
	})
}

// getOrCreateRoom loads id from memory, then the database, then falls
// back to a fresh empty room.
func (s *Server) getOrCreateRoom(id string) *document {
	if val, ok := s.reg.rooms.Load(id); ok {
		return val.(*document)
	}

	var r *Room
	if s.reg.db != nil {
		if persisted, err := s.reg.db.Load(id); err == nil && persisted != nil {
			logger.Info("loaded document %s from database", id)
			r = FromPersistedDocument(persisted.Text, persisted.Language, persisted.OTP, s.maxDocumentSize, s.broadcastBufferSize)
		}
	}
	if r == nil {
		r = New(s.maxDocumentSize, s.broadcastBufferSize)
	}

	doc := &document{lastAccessed: time.Now(), room: r}
	actual, _ := s.reg.rooms.LoadOrStore(id, doc)
	return actual.(*document)
}

// StartCleaner periodically evicts rooms that haven't been accessed in
// expiryDays.
func (s *Server) StartCleaner(ctx context.Context, expiryDays int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired(expiryDays)
		}
	}
}

func (s *Server) cleanupExpired(expiryDays int) {
	expiry := time.Duration(expiryDays) * 24 * time.Hour
	now := time.Now()
	var stale []string

	s.reg.rooms.Range(func(key, value interface{}) bool {
		id := key.(string)
		doc := value.(*document)
		if now.Sub(doc.lastAccessed) > expiry {
			stale = append(stale, id)
		}
		return true
	})

	if len(stale) == 0 {
		return
	}
	logger.Info("cleaner removing documents: %v", stale)
	for _, id := range stale {
		if val, ok := s.reg.rooms.LoadAndDelete(id); ok {
			val.(*document).room.Kill()
		}
	}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	logger.Info("server listening on %s", addr)
	return http.ListenAndServe(addr, s)
}

// Shutdown kills every resident room.
func (s *Server) Shutdown(ctx context.Context) error {
	s.reg.rooms.Range(func(_, value interface{}) bool {
		value.(*document).room.Kill()
		return true
	})
	return nil
}

// persister periodically snapshots a room to the database while it's
// active, with jitter to avoid a thundering herd of writers.
func (s *Server) persister(ctx context.Context, id string, r *Room) {
	if s.reg.db == nil {
		return
	}

	const persistInterval = 3 * time.Second
	const persistJitter = 1 * time.Second

	var lastRevision int32

	for {
		jitter := time.Duration(rand.Int63n(int64(persistJitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(persistInterval + jitter):
		}

		if r.Killed() {
			return
		}

		revision := int32(r.Revision())
		if revision > lastRevision {
			text, language, otp := r.Snapshot()
			doc := &database.PersistedDocument{ID: id, Text: text, Language: language, OTP: otp}

			logger.Info("persisting revision %d for %s", revision, id)
			if err := s.reg.db.Store(doc); err != nil {
				logger.Error("persist document %s: %v", id, err)
			} else {
				lastRevision = revision
			}
		}
	}
}
