// Package httpapi exposes the relayer's core HTTP surface (§6): the
// prepare/* read endpoints and the submit/* write endpoints, routed with
// go-chi and backed by the relayer orchestrator and Merkle mirror.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/cipherpay/relayer/internal/relayer"
	"github.com/cipherpay/relayer/internal/zkp"
)

// Server wires the HTTP handlers to their collaborators and exposes a
// chi.Router ready to be handed to net/http.Server.
type Server struct {
	tree         zkp.MerkleStore
	orchestrator *relayer.Orchestrator
	log          *logrus.Entry
	treeID       uint32
}

// NewServer constructs a Server. treeID is the single tree this relayer
// process serves; multi-tree deployments run one Server per tree.
func NewServer(tree zkp.MerkleStore, orchestrator *relayer.Orchestrator, treeID uint32, log *logrus.Entry) *Server {
	return &Server{tree: tree, orchestrator: orchestrator, treeID: treeID, log: log}
}

// Router builds the chi router for the core HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/prepare/deposit", s.handlePrepareDeposit)
		r.Post("/prepare/transfer", s.handlePrepareTransfer)
		r.Post("/prepare/withdraw", s.handlePrepareWithdraw)
		r.Post("/submit/deposit", s.handleSubmitDeposit)
		r.Post("/submit/transfer", s.handleSubmitTransfer)
		r.Post("/submit/withdraw", s.handleSubmitWithdraw)
		r.Get("/healthz", s.handleHealth)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("relayer: handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseFe(s string) (zkp.Fe, error) {
	return zkp.FeFromDecimalString(s)
}

func leHex(b zkp.FeLE) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hexdigits[c>>4]
		out[2+i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

func parseFeList(ss []string) ([]zkp.Fe, error) {
	out := make([]zkp.Fe, len(ss))
	for i, s := range ss {
		fe, err := parseFe(s)
		if err != nil {
			return nil, err
		}
		out[i] = fe
	}
	return out, nil
}
