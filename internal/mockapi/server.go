// Package mockapi is an in-memory stand-in for the delivery API. It serves the
// same routes and wire shapes, including the 404-on-empty answers of the real
// backend, so the console can be demoed and tested without one.
package mockapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/api"
)

const maxUploadBytes = 16 << 20

var allowedExtensions = map[string]bool{".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

type storedAttachment struct {
	meta api.Attachment
	data []byte
}

type failure struct {
	status int
	reason string
}

// Server holds the fake API state. All methods are safe for concurrent use.
type Server struct {
	mu          sync.Mutex
	log         *zap.Logger
	now         func() time.Time
	users       map[string]string
	tokens      map[string]string
	shipments   map[string]*api.Shipment
	order       []string
	attachments map[string][]storedAttachment
	returns     map[string][]api.ReturnRecord
	tracking    map[string][]api.TrackingEvent
	failures    map[string]failure
	calls       map[string]int
	nextID      int
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithUser registers login credentials accepted by POST /login.
func WithUser(login, password string) Option {
	return func(s *Server) { s.users[login] = password }
}

func New(opts ...Option) *Server {
	s := &Server{
		log:         zap.NewNop(),
		now:         time.Now,
		users:       map[string]string{},
		tokens:      map[string]string{},
		shipments:   map[string]*api.Shipment{},
		attachments: map[string][]storedAttachment{},
		returns:     map[string][]api.ReturnRecord{},
		tracking:    map[string][]api.TrackingEvent{},
		failures:    map[string]failure{},
		calls:       map[string]int{},
		nextID:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route mounted under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.track)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/entregas/", s.handleListShipments)
			r.Get("/entregas/{id}", s.handleGetShipment)
			r.Get("/entregas/{id}/comprovantes", s.handleAttachments)
			r.Get("/entregas/{id}/devolucoes", s.handleReturns)
			r.Get("/entregas/{id}/rastreamento", s.handleTracking)
			r.Post("/entregas/{id}/atualizar-rastreamento", s.handleRefreshTracking)
			r.Patch("/entregas/finalizar/{id}", s.handleFinalize)
			r.Post("/comprovantes/upload", s.handleUpload)
			r.Get("/comprovantes/{id}/download", s.handleDownload)
		})
	})
	return r
}

// IssueToken returns a valid bearer token for login without going through
// POST /login.
func (s *Server) IssueToken(login string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := uuid.NewString()
	s.tokens[tok] = login
	return tok
}

// Fail makes every request for "METHOD /api/path" answer status with reason
// until Recover is called for the same key.
func (s *Server) Fail(method, path string, status int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, reason: reason}
}

func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
}

// Calls reports how many requests reached "METHOD /api/path".
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// AddShipment stores sh, assigning an id when it has none.
func (s *Server) AddShipment(sh api.Shipment) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh.ID == "" {
		sh.ID = api.ID(s.newID())
	}
	id := string(sh.ID)
	if _, ok := s.shipments[id]; !ok {
		s.order = append(s.order, id)
	}
	s.shipments[id] = &sh
	return id
}

func (s *Server) AddAttachment(shipmentID, name string, data []byte) api.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	att := api.Attachment{
		ID:       api.ID(s.newID()),
		FileName: name,
		Path:     filepath.Join("uploads", "comprovantes", name),
		Kind:     "assinatura",
		SentAt:   api.Time{Time: s.now()},
	}
	s.attachments[shipmentID] = append(s.attachments[shipmentID], storedAttachment{meta: att, data: data})
	return att
}

func (s *Server) AddReturn(shipmentID string, rec api.ReturnRecord) api.ReturnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = api.ID(s.newID())
	}
	s.returns[shipmentID] = append(s.returns[shipmentID], rec)
	return rec
}

func (s *Server) AddTrackingEvent(shipmentID string, ev api.TrackingEvent) api.TrackingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = api.ID(s.newID())
	}
	s.tracking[shipmentID] = append(s.tracking[shipmentID], ev)
	return ev
}

// Shipment returns a copy of the stored shipment.
func (s *Server) Shipment(id string) (api.Shipment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return api.Shipment{}, false
	}
	return *sh, true
}

func (s *Server) newID() string {
	id := strconv.Itoa(s.nextID)
	s.nextID++
	return id
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls[key]++
		f, failing := s.failures[key]
		s.mu.Unlock()
		if failing {
			s.log.Debug("injected failure", zap.String("route", key), zap.Int("status", f.status))
			writeJSON(w, f.status, map[string]string{"erro": f.reason})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(auth, "Bearer ")
		s.mu.Lock()
		_, known := s.tokens[strings.TrimSpace(tok)]
		s.mu.Unlock()
		if !ok || !known {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Erro de autenticação JWT", "code": 401})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login string `json:"login"`
		Senha string `json:"senha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Login == "" || body.Senha == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"mensagem": "login and password are required"})
		return
	}
	s.mu.Lock()
	pass, ok := s.users[body.Login]
	s.mu.Unlock()
	if !ok || pass != body.Senha {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"mensagem": "invalid login or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": s.IssueToken(body.Login)})
}

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	s.mu.Lock()
	out := make([]api.Shipment, 0, len(s.order))
	for _, id := range s.order {
		sh := s.shipments[id]
		if status != "" && sh.Status != status {
			continue
		}
		out = append(out, *sh)
	}
	s.mu.Unlock()
	if len(out) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no shipments match the given filters"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, ok := s.Shipment(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shipment not found"})
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, exists := s.shipments[id]
	stored := s.attachments[id]
	out := make([]api.Attachment, 0, len(stored))
	for _, a := range stored {
		out = append(out, a.meta)
	}
	s.mu.Unlock()
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "shipment not found"})
		return
	}
	if len(out) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no attachment found for this shipment"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReturns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	out := append([]api.ReturnRecord{}, s.returns[id]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	out := append([]api.TrackingEvent{}, s.tracking[id]...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp.Time) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRefreshTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sh, ok := s.Shipment(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shipment not found"})
		return
	}
	location := strings.Trim(sh.City+"/"+sh.State, "/")
	s.AddTrackingEvent(id, api.TrackingEvent{
		Timestamp:   api.Time{Time: s.now()},
		Description: "carrier update: in transit",
		Location:    location,
	})
	writeJSON(w, http.StatusOK, map[string]string{"mensagem": fmt.Sprintf("tracking refreshed for shipment %s", id)})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		At string `json:"data_finalizacao"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.At == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "finalization date is required"})
		return
	}
	at, err := time.ParseInLocation(api.FinalizationLayout, body.At, time.Local)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, use YYYY-MM-DD HH:MM:SS"})
		return
	}
	s.mu.Lock()
	sh, ok := s.shipments[id]
	if ok {
		sh.FinalizedAt = api.Time{Time: at}
		sh.Status = "ENTREGA_FINALIZADA"
	}
	var out api.Shipment
	if ok {
		out = *sh
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "shipment not found"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid upload: " + err.Error()})
		return
	}
	shipmentID := strings.TrimSpace(r.FormValue("entrega_id"))
	if shipmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "shipment id is required"})
		return
	}
	if _, ok := s.Shipment(shipmentID); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "shipment not found"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "no file sent in the request"})
		return
	}
	defer file.Close()
	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "file type not allowed"})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "could not read file"})
		return
	}
	att := s.AddAttachment(shipmentID, filepath.Base(header.Filename), data)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "attachment stored", "comprovante": att})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	var found *storedAttachment
	for _, list := range s.attachments {
		for i := range list {
			if string(list[i].meta.ID) == id {
				found = &list[i]
			}
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "attachment not found"})
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", found.meta.FileName))
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(found.data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
