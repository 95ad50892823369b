// Package httpapi implements the thin HTTP facade described in the spec's
// external interfaces section: a REST boundary over the engine registry's
// operations. The facade is an external collaborator — it owns no engine
// semantics of its own, only request parsing, status-code selection, and
// response shaping.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/apstatchain/apstatchain/chain"
	"github.com/apstatchain/apstatchain/engine"
)

// Server binds the engine's operations to the §6 REST table.
type Server struct {
	eng       *engine.Engine
	addr      string
	authToken string // empty -> no auth required
	srv       *http.Server
}

// NewServer creates a Server on addr. If authToken is non-empty every
// request must carry a matching "Authorization: Bearer <token>" header,
// mirroring the teacher's RPC auth gate.
func NewServer(addr string, eng *engine.Engine, authToken string) *Server {
	s := &Server{eng: eng, addr: addr, authToken: authToken}

	mux := http.NewServeMux()
	mux.HandleFunc("/init", s.handleInit)
	mux.HandleFunc("/state/", s.handleState)
	mux.HandleFunc("/node/add", s.handleNodeAdd)
	mux.HandleFunc("/txn/create", s.handleTxnCreate)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/block/propose/", s.handleProposeBlock)
	mux.HandleFunc("/convergence/", s.handleConvergence)
	mux.HandleFunc("/ap_reveal", s.handleAPReveal)
	mux.Handle("/metrics", promhttp.Handler())

	handler := cors.Default().Handler(s.authenticate(mux))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the wrapped mux for tests (httptest.NewServer).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.authToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe binds the listen address synchronously, returning any bind
// error, then serves in a background goroutine, matching the teacher's
// synchronous-bind-then-background-serve shape.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[httpapi] server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server, waiting up to 5 seconds for
// in-flight requests to finish.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": msg})
}

// ---- GET /init ----

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, s.eng.Info())
}

// ---- GET /state/{pubkey} ----

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	pubkey := strings.TrimPrefix(r.URL.Path, "/state/")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey is required")
		return
	}
	snap, err := s.eng.Snapshot(pubkey)
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, snap)
}

// ---- POST /node/add ----

type nodeAddRequest struct {
	Pubkey                string   `json:"pubkey"`
	Archetype             string   `json:"archetype"`
	ProvisionalReputation *float64 `json:"provisional_reputation,omitempty"`
}

func (s *Server) handleNodeAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req nodeAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json: "+err.Error())
		return
	}
	if req.Pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey is required")
		return
	}
	s.eng.AddNode(req.Pubkey, req.Archetype, req.ProvisionalReputation)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"status": "ok", "pubkey": req.Pubkey})
}

// ---- POST /txn/create ----

type txnCreateRequest struct {
	QuestionID string `json:"qid"`
	Pubkey     string `json:"pubkey"`
	Answer     string `json:"ans"`
	Type       string `json:"type"`
}

func (s *Server) handleTxnCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req txnCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json: "+err.Error())
		return
	}
	kind := chain.Kind(req.Type)
	switch kind {
	case chain.KindCompletion, chain.KindAttestation, chain.KindAPReveal:
	default:
		writeError(w, http.StatusBadRequest, "type must be one of completion, attestation, ap_reveal")
		return
	}
	txID, err := s.eng.CreateTxn(req.QuestionID, req.Pubkey, req.Answer, kind)
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"status": "ok", "txn_id": txID})
}

// ---- POST /sync ----

type syncRequest struct {
	Pubkey1 string `json:"pubkey1"`
	Pubkey2 string `json:"pubkey2"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json: "+err.Error())
		return
	}
	if err := s.eng.Sync(req.Pubkey1, req.Pubkey2); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// ---- POST /block/propose/{pubkey} ----

func (s *Server) handleProposeBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	pubkey := strings.TrimPrefix(r.URL.Path, "/block/propose/")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey is required")
		return
	}
	chainLen, err := s.eng.ProposeBlocks(pubkey)
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, map[string]int{"chain_length": chainLen})
}

// ---- GET /convergence/{pubkey}/{qid} ----

func (s *Server) handleConvergence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/convergence/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "pubkey and qid are required")
		return
	}
	conv, err := s.eng.Convergence(parts[0], parts[1], true)
	if errors.Is(err, engine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, map[string]float64{"convergence": conv})
}

// ---- POST /ap_reveal ----

type apRevealRequest struct {
	TeacherPubkey string `json:"teacher_pubkey"`
	QuestionID    string `json:"qid"`
	Answer        string `json:"ans"`
}

func (s *Server) handleAPReveal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req apRevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json: "+err.Error())
		return
	}
	if err := s.eng.SubmitAPReveal(req.TeacherPubkey, req.QuestionID, req.Answer); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no registered nodes")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"status": "ok"})
}
