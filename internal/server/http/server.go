package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/auth"
	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
	"github.com/claudeayi/kalyptia-ledger/internal/runtime"
	ledgersvc "github.com/claudeayi/kalyptia-ledger/internal/services/ledger"
)

type Server struct {
	rt       *runtime.Runtime
	svc      *ledgersvc.Service
	verifier *auth.Verifier
	logger   logpkg.Logger
	srv      *http.Server
	lis      net.Listener
}

func New(rt *runtime.Runtime) *Server {
	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		svc:    ledgersvc.New(rt),
		logger: rt.Logger().With(logpkg.Component("http")),
		srv:    &http.Server{Handler: cors(mux)},
	}
	if secret := rt.Config().Auth.Secret; secret != "" {
		s.verifier = auth.NewVerifier(secret, rt.Config().Auth.Issuer)
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.Handle("/metrics", rt.Metrics().Handler())
	mux.HandleFunc("/v1/ledger/append", s.handleAppend)
	mux.HandleFunc("/v1/ledger/entries", s.handleEntries)
	mux.HandleFunc("/v1/ledger/tail", s.handleTail)
	mux.HandleFunc("/v1/ledger/verify", s.handleVerify)
	mux.HandleFunc("/v1/ledger/types", s.handleTypes)
	mux.HandleFunc("/v1/ledger/subscribe", s.handleSubscribeSSE)
	mux.HandleFunc("/v1/ledger/ws", s.handleSubscribeWS)
	mux.HandleFunc("/v1/ledger/ack", s.handleAck)
	return s
}

// Handler exposes the routed handler, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http.listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Ledger-Identity, X-Ledger-Admin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identity resolves the caller. With no auth secret configured, the identity
// headers are trusted as-is; that mode exists for local development only.
func (s *Server) identity(r *http.Request) (auth.Identity, error) {
	if s.verifier != nil {
		return s.verifier.FromRequest(r)
	}
	id := r.Header.Get("X-Ledger-Identity")
	if id == "" {
		id = r.URL.Query().Get("identity")
	}
	if id == "" {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return auth.Identity{ID: id, Admin: r.Header.Get("X-Ledger-Admin") == "true" || r.URL.Query().Get("admin") == "true"}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, events.ErrUnknownType), errors.Is(err, ledgersvc.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, ledgersvc.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, chain.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.identity(r); err != nil {
		writeErr(w, err)
		return
	}
	var req ledgersvc.AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	e, err := s.svc.Append(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := s.identity(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !id.Admin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
		return
	}
	q := r.URL.Query()
	if seqStr := q.Get("seq"); seqStr != "" {
		seq, perr := strconv.ParseUint(seqStr, 10, 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid seq"})
			return
		}
		e, gerr := s.svc.Get(seq)
		if gerr != nil {
			writeErr(w, gerr)
			return
		}
		writeJSON(w, http.StatusOK, e)
		return
	}
	from, _ := strconv.ParseUint(q.Get("from"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := s.svc.Range(ledgersvc.RangeRequest{From: from, Limit: limit})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.identity(r); err != nil {
		writeErr(w, err)
		return
	}
	e, err := s.svc.Tail()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := s.identity(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !id.Admin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
		return
	}
	var req ledgersvc.VerifyRequest
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		from, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from"})
			return
		}
		req.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to"})
			return
		}
		req.To = &to
	}
	if req.From != nil && req.To != nil && *req.To < *req.From {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid verify window"})
		return
	}
	res, err := s.svc.Verify(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": s.svc.Types()})
}

type ackReq struct {
	Sequence uint64 `json:"sequence"`
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := s.identity(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req ackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := s.svc.Ack(events.Identity(id.ID), req.Sequence); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// subscribeRequest builds the session parameters shared by SSE and WS.
func (s *Server) subscribeRequest(r *http.Request, id auth.Identity) ledgersvc.SubscribeRequest {
	q := r.URL.Query()
	req := ledgersvc.SubscribeRequest{
		Identity: events.Identity(id.ID),
		Admin:    id.Admin,
		Filter:   q.Get("filter"),
		AutoAck:  q.Get("ack") != "explicit",
	}
	if fromStr := q.Get("from"); fromStr != "" {
		if from, err := strconv.ParseUint(fromStr, 10, 64); err == nil {
			req.From = &from
		}
	}
	return req
}
