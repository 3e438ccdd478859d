// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	klog "github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/internal/metrics"
	"github.com/ltlmaps/leap-contracts/internal/p2p"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/internal/token"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/types"
	"github.com/rs/zerolog"
)

// maxBodySize caps a request body at 1 MB.
const maxBodySize = 1 << 20

type handlerFunc func(req *Request) (interface{}, *Error)

// Server serves the bridge API over HTTP. Besides JSON-RPC on "/" it
// exposes /metrics and /health.
type Server struct {
	addr    string
	engine  *consensus.Engine
	ledger  *token.Store
	genesis *config.Genesis
	nonces  *NonceStore
	p2pNode *p2p.Node // nil = net_* report an offline node
	onSeal  func(id types.Hash, s *block.Seal)
	metrics *metrics.Metrics
	methods map[string]handlerFunc

	server *http.Server
	ln     net.Listener
	logger zerolog.Logger

	allowedNets []*net.IPNet // empty = allow all
	corsOrigins []string     // empty = no CORS headers
}

// New creates an RPC server. Signed-call nonces are persisted in db. The
// optional rpcCfg controls IP filtering and CORS; without it every IP is
// allowed and CORS is off.
func New(addr string, engine *consensus.Engine, ledger *token.Store, genesis *config.Genesis,
	db storage.DB, p2pNode *p2p.Node, rpcCfg ...config.RPCConfig) *Server {

	s := &Server{
		addr:    addr,
		engine:  engine,
		ledger:  ledger,
		genesis: genesis,
		nonces:  NewNonceStore(db),
		p2pNode: p2pNode,
		logger:  klog.RPC,
	}
	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	s.methods = map[string]handlerFunc{
		"bridge_getInfo":          s.handleBridgeGetInfo,
		"bridge_getHighest":       s.handleBridgeGetHighest,
		"bridge_getBlock":         s.handleBridgeGetBlock,
		"bridge_getBlockByHeight": s.handleBridgeGetBlockByHeight,
		"bridge_getBranchCount":   s.handleBridgeGetBranchCount,
		"bridge_getBranchAtIndex": s.handleBridgeGetBranchAtIndex,
		"bridge_getTip":           s.handleBridgeGetTip,
		"bridge_getOperator":      s.handleBridgeGetOperator,
		"bridge_getOperators":     s.handleBridgeGetOperators,
		"bridge_getArchived":      s.handleBridgeGetArchived,
		"bridge_getNonce":         s.handleBridgeGetNonce,
		"bridge_submitBlock":      s.handleBridgeSubmitBlock,
		"bridge_join":             s.handleBridgeJoin,
		"bridge_requestLeave":     s.handleBridgeRequestLeave,
		"bridge_payout":           s.handleBridgePayout,
		"bridge_claimReward":      s.handleBridgeClaimReward,
		"token_getInfo":           s.handleTokenGetInfo,
		"token_getBalance":        s.handleTokenGetBalance,
		"token_getAllowance":      s.handleTokenGetAllowance,
		"token_approve":           s.handleTokenApprove,
		"token_transfer":          s.handleTokenTransfer,
		"net_getNodeInfo":         s.handleNetGetNodeInfo,
		"net_getPeerInfo":         s.handleNetGetPeerInfo,
	}

	router := mux.NewRouter()
	router.Use(s.filterIP, s.cors)
	router.Path("/metrics").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	router.Path("/health").Methods(http.MethodGet).HandlerFunc(s.handleHealth)
	router.PathPrefix("/").HandlerFunc(s.handleRequest)

	s.server = &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// SetSealObserver registers fn to receive every seal accepted through
// bridge_submitBlock.
func (s *Server) SetSealObserver(fn func(id types.Hash, s *block.Seal)) {
	s.onSeal = fn
}

// SetMetrics makes the server record calls in m and serve it on /metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// parseAllowedIPs turns IP and CIDR entries into networks. A "*" entry
// disables filtering.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if entry == "*" {
			return nil
		}
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 8 * net.IPv6len
		if ip4 := ip.To4(); ip4 != nil {
			ip, bits = ip4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down, waiting up to five seconds for open calls.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// filterIP rejects requests from outside the allowed networks.
func (s *Server) filterIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 && !s.remoteAllowed(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) remoteAllowed(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// cors sets the CORS headers for allowed origins and answers preflights.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Allow-Origin value for origin, or "" when the
// origin is not allowed.
func (s *Server) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, o := range s.corsOrigins {
		switch o {
		case "*":
			return "*"
		case origin:
			return origin
		}
	}
	return ""
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status string `json:"status"`
	Height uint64 `json:"height"`
	Peers  int    `json:"peers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := HealthStatus{Status: "ok"}
	if highest, err := s.engine.GetHighest(); err == nil {
		st.Height = highest.Height
	}
	if s.p2pNode != nil {
		st.Peers = s.p2pNode.PeerCount()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// handleRequest serves one JSON-RPC call.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(&req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	s.metrics.ObserveRPC(s.methodLabel(req.Method), code, time.Since(start))

	if rpcErr != nil {
		s.logger.Debug().
			Str("method", req.Method).
			Int("code", rpcErr.Code).
			Str("error", rpcErr.Message).
			Msg("RPC call failed")
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	h, ok := s.methods[req.Method]
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
	return h(req)
}

// methodLabel keeps metric cardinality bounded by folding unknown method
// names into one label.
func (s *Server) methodLabel(method string) string {
	if _, ok := s.methods[method]; ok {
		return method
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// hasParams reports whether the request carries non-null params.
func hasParams(req *Request) bool {
	return len(req.Params) > 0 && string(req.Params) != "null"
}

// parseParams decodes the request params into target.
func parseParams(req *Request, target interface{}) *Error {
	if !hasParams(req) {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseSigned decodes signed params, checks the signature and consumes the
// nonce.
func (s *Server) parseSigned(req *Request, target Signed) (types.Address, *Error) {
	if rpcErr := parseParams(req, target); rpcErr != nil {
		return types.Address{}, rpcErr
	}
	signer, rpcErr := verifyCall(s.genesis.ChainID, req.Method, target)
	if rpcErr != nil {
		return types.Address{}, rpcErr
	}
	if err := s.nonces.Use(signer, target.auth().Nonce); err != nil {
		return types.Address{}, toError(err)
	}
	return signer, nil
}
