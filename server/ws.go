// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/signer"
)

const (
	authTimeout = 30 * time.Second
	idleTimeout = 5 * time.Minute
)

// handleWebsocket runs a gateway session: a nonce challenge, a signed auth
// reply binding the session to an address, then decrypt requests from that
// address only.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.metrics.websocketActive.Inc()
	defer s.metrics.websocketActive.Dec()

	addr, ok := s.authenticate(conn)
	if !ok {
		return
	}
	session := uuid.NewString()
	if err := conn.WriteJSON(gateway.Message{Type: gateway.MsgAuthenticated, Session: session}); err != nil {
		return
	}
	log := s.log.With(zap.String("session", session), zap.String("address", addr.Hex()))
	log.Debug("gateway session opened")

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		var msg gateway.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("gateway session read failed", zap.Error(err))
			}
			return
		}
		reply := s.handleMessage(r, addr, msg)
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug("gateway session write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) authenticate(conn *websocket.Conn) (common.Address, bool) {
	nonce := uuid.NewString()
	conn.SetWriteDeadline(time.Now().Add(authTimeout))
	if err := conn.WriteJSON(gateway.Message{Type: gateway.MsgChallenge, Nonce: nonce}); err != nil {
		return common.Address{}, false
	}
	conn.SetWriteDeadline(time.Time{})

	conn.SetReadDeadline(time.Now().Add(authTimeout))
	var auth gateway.Message
	if err := conn.ReadJSON(&auth); err != nil {
		return common.Address{}, false
	}

	reject := func(msg string) (common.Address, bool) {
		conn.WriteJSON(gateway.Message{Type: gateway.MsgError, Code: string(fhevm.CodeAddressMismatch), Error: msg})
		return common.Address{}, false
	}
	if auth.Type != gateway.MsgAuth || !fhevm.IsValidAddress(auth.Address) {
		return reject("expected auth message")
	}
	sig, err := hexutil.Decode(auth.Signature)
	if err != nil {
		return reject("invalid signature encoding")
	}
	addr := common.HexToAddress(auth.Address)
	if !signer.Verify(addr, signer.AuthMessage(nonce), sig) {
		s.log.Warn("gateway authentication failed", zap.String("address", auth.Address))
		return reject("signature does not match address")
	}
	return addr, true
}

func (s *Server) handleMessage(r *http.Request, addr common.Address, msg gateway.Message) gateway.Message {
	fail := func(err error) gateway.Message {
		ae := toAPIError(err)
		s.metrics.decryptions.WithLabelValues("ws", ae.code).Inc()
		return gateway.Message{Type: gateway.MsgError, ID: msg.ID, Code: ae.code, Error: ae.message}
	}

	if msg.Type != gateway.MsgDecrypt || msg.Request == nil {
		return gateway.Message{
			Type:  gateway.MsgError,
			ID:    msg.ID,
			Code:  string(fhevm.CodeValidation),
			Error: "unsupported message type " + msg.Type,
		}
	}
	req := *msg.Request
	if !strings.EqualFold(req.UserAddress, addr.Hex()) {
		return fail(fhevm.ErrAddressMismatch)
	}
	resp, err := s.decrypt(r.Context(), "ws", req)
	if err != nil {
		return fail(err)
	}
	s.metrics.decryptions.WithLabelValues("ws", "ok").Inc()
	return gateway.Message{Type: gateway.MsgResult, ID: msg.ID, Plaintext: resp.Plaintext}
}
