// Package api serves the exchange over REST and streams the audit event
// log over websocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/custodex/pkg/exchange"
	"github.com/uhyunpark/custodex/pkg/token"
)

// Server exposes the exchange core and token registry over HTTP.
type Server struct {
	ex       *exchange.Exchange
	registry *token.Registry
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
}

func NewServer(ex *exchange.Exchange, registry *token.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ex:       ex,
		registry: registry,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		log:      logger.Sugar(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Exchange / token metadata
	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/tokens/{address}", s.handleGetToken).Methods("GET")

	// Custodial balances
	api.HandleFunc("/balances/{token}/{user}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")

	// Orders
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.handleFillOrder).Methods("POST")

	// Audit trail
	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")

	// WebSocket event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler, without CORS. Used by tests and
// embedders that bring their own middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub, pipes the exchange event feed into it and serves
// HTTP. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	events, cancel := s.ex.Feed().Subscribe()
	defer cancel()
	go func() {
		for ev := range events {
			s.hub.Broadcast(ev)
		}
	}()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ExchangeInfo{
		Address:    s.ex.Address().Hex(),
		FeeAccount: s.ex.FeeAccount().Hex(),
		FeePercent: s.ex.FeePercent(),
		OrderCount: s.ex.OrderCount(),
	})
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.registry.List()
	response := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		response[i] = tokenInfo(t)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	t, err := s.registry.Get(addr)
	if err != nil {
		respondError(w, http.StatusNotFound, "token not found", err.Error())
		return
	}
	respondJSON(w, tokenInfo(t))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tok, ok := parseAddress(w, vars["token"])
	if !ok {
		return
	}
	user, ok := parseAddress(w, vars["user"])
	if !ok {
		return
	}
	respondJSON(w, BalanceResponse{
		Token:   tok.Hex(),
		User:    user.Hex(),
		Balance: s.ex.BalanceOf(tok, user),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := parseAddress(w, req.User)
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token)
	if !ok {
		return
	}
	if err := s.ex.DepositToken(user, tok, req.Amount); err != nil {
		respondCoreError(w, "deposit failed", err)
		return
	}
	respondJSON(w, BalanceResponse{Token: tok.Hex(), User: user.Hex(), Balance: s.ex.BalanceOf(tok, user)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := parseAddress(w, req.User)
	if !ok {
		return
	}
	tok, ok := parseAddress(w, req.Token)
	if !ok {
		return
	}
	if err := s.ex.WithdrawToken(user, tok, req.Amount); err != nil {
		respondCoreError(w, "withdrawal failed", err)
		return
	}
	respondJSON(w, BalanceResponse{Token: tok.Hex(), User: user.Hex(), Balance: s.ex.BalanceOf(tok, user)})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.ex.Orders()
	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	o, err := s.ex.Order(id)
	if err != nil {
		respondCoreError(w, "order lookup failed", err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, ok := parseAddress(w, req.User)
	if !ok {
		return
	}
	tokenGet, ok := parseAddress(w, req.TokenGet)
	if !ok {
		return
	}
	tokenGive, ok := parseAddress(w, req.TokenGive)
	if !ok {
		return
	}
	o, err := s.ex.MakeOrder(user, tokenGet, req.AmountGet, tokenGive, req.AmountGive)
	if err != nil {
		respondCoreError(w, "order rejected", err)
		return
	}
	respondJSON(w, orderInfo(*o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	var req CallerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.User)
	if !ok {
		return
	}
	if err := s.ex.CancelOrder(caller, id); err != nil {
		respondCoreError(w, "cancel rejected", err)
		return
	}
	o, _ := s.ex.Order(id)
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	var req CallerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.User)
	if !ok {
		return
	}
	if err := s.ex.FillOrder(caller, id); err != nil {
		respondCoreError(w, "fill rejected", err)
		return
	}
	o, _ := s.ex.Order(id)
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid since", v)
			return
		}
		since = n
	}
	respondJSON(w, s.ex.Feed().EventsSince(since))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		remote: r.RemoteAddr,
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func tokenInfo(t token.Token) TokenInfo {
	return TokenInfo{
		Address:     t.Address.Hex(),
		Name:        t.Name,
		Symbol:      t.Symbol,
		Decimals:    t.Decimals,
		TotalSupply: t.TotalSupply,
	}
}

func orderInfo(o exchange.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		User:       o.User.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive,
		Timestamp:  o.Timestamp,
		Status:     o.Status().String(),
	}
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseOrderID(w http.ResponseWriter, s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid order id", s)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// respondCoreError maps the exchange error taxonomy onto HTTP status
// codes.
func respondCoreError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrAlreadyFinalized):
		status = http.StatusConflict
	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, exchange.ErrInvalidAmount):
		status = http.StatusBadRequest
	}
	respondError(w, status, msg, err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
