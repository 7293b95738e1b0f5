// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/internal/storage"
	"github.com/luxfi/fhevm/lattice"
	"github.com/luxfi/fhevm/signer"
)

// Error codes used by the server beyond the SDK taxonomy.
const (
	codeRateLimited  = "RATE_LIMITED"
	codeAccessDenied = "ACCESS_DENIED"
	codeNotFound     = "NOT_FOUND"
	codeInternal     = "INTERNAL_ERROR"
)

// apiError is a failure with its HTTP status and wire code.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

// toAPIError maps SDK errors to HTTP statuses.
func toAPIError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	code := fhevm.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case fhevm.CodeValidation:
		status = http.StatusBadRequest
	case fhevm.CodeAddressMismatch:
		status = http.StatusForbidden
	case fhevm.CodeNotInitialized:
		status = http.StatusServiceUnavailable
	case "":
		code = codeInternal
	}
	msg := err.Error()
	var se *fhevm.Error
	if errors.As(err, &se) {
		msg = se.Message
	}
	return &apiError{status: status, code: string(code), message: msg}
}

func writeJSON(log *zap.Logger, w http.ResponseWriter, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error("Error marshalling JSON response", zap.Error(err))
		writeError(log, w, http.StatusInternalServerError, codeInternal, "could not encode response")
		return
	}
	resp, err := json.Marshal(gateway.Response{Success: true, Data: raw})
	if err != nil {
		log.Error("Error marshalling JSON response", zap.Error(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Debug("Error writing response", zap.Error(err))
	}
}

func writeError(log *zap.Logger, w http.ResponseWriter, status int, code, msg string) {
	resp, err := json.Marshal(gateway.Response{Error: msg, Code: code})
	if err != nil {
		log.Error("Error marshalling JSON error response", zap.Error(err))
		resp = []byte(msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		log.Debug("Error writing error response", zap.Error(err))
	}
}

func (s *Server) writeAPIError(w http.ResponseWriter, err error) {
	ae := toAPIError(err)
	writeError(s.log, w, ae.status, ae.code, ae.message)
}

// remoteIP identifies unauthenticated callers for rate limiting.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func normalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// recoverSigner checks that sig is user's signature over msg and returns
// the recovered address.
func recoverSigner(user, sig string, msg []byte) (common.Address, error) {
	if !fhevm.IsValidAddress(user) {
		return common.Address{}, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), "invalid userAddress"}
	}
	if sig == "" {
		return common.Address{}, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), "signature is required"}
	}
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return common.Address{}, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), "invalid signature encoding"}
	}
	recovered, err := signer.RecoverAddress(msg, raw)
	if err != nil || recovered != common.HexToAddress(user) {
		return common.Address{}, fhevm.ErrAddressMismatch
	}
	return recovered, nil
}

// storeError maps a storage failure to its response.
func storeError(err error) *apiError {
	switch {
	case errors.Is(err, storage.ErrOwned):
		return &apiError{http.StatusForbidden, codeAccessDenied, err.Error()}
	case errors.Is(err, storage.ErrStorageFull):
		return &apiError{http.StatusInsufficientStorage, codeInternal, "could not store ciphertext"}
	default:
		return &apiError{http.StatusInternalServerError, codeInternal, "could not store ciphertext"}
	}
}

func (s *Server) allow(ctx context.Context, route, id string) error {
	ok, err := s.limiter.Allow(ctx, id)
	if err != nil {
		// Fail open: a limiter outage must not take the gateway down.
		s.log.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		s.metrics.rateLimited.WithLabelValues(route).Inc()
		return &apiError{status: http.StatusTooManyRequests, code: codeRateLimited, message: "rate limit exceeded"}
	}
	return nil
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pk, err := s.registry.PublicKey(r.Context(), s.cfg.Network)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	writeJSON(s.log, w, gateway.KeysResponse{
		PublicKey: pk,
		HasKey:    pk != "",
		ChainID:   s.cfg.Network.ChainID,
	})
}

type boundsEntry struct {
	Type string `json:"type"`
	Bits int    `json:"bits"`
	Min  any    `json:"min,omitempty"`
	Max  any    `json:"max,omitempty"`
}

func (s *Server) handleBounds(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	entries := make([]boundsEntry, 0, len(fhevm.AllTypes()))
	for _, t := range fhevm.AllTypes() {
		e := boundsEntry{Type: t.String(), Bits: t.Bits()}
		if b, ok := fhevm.BoundsOf(t); ok {
			e.Min, e.Max = boundValue(b.Min), boundValue(b.Max)
		}
		entries = append(entries, e)
	}
	writeJSON(s.log, w, entries)
}

// boundValue renders big integers as decimal strings so that the uint64
// maximum survives JSON.
func boundValue(v any) any {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return v
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req gateway.EncryptRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.log.Debug("Could not decode request body", zap.Error(err))
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), "could not decode request body")
		return
	}

	if err := s.allow(r.Context(), "encrypt", remoteIP(r)); err != nil {
		s.writeAPIError(w, err)
		return
	}

	t, err := fhevm.ParseEncryptType(req.Type)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	if len(req.Value) == 0 {
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), "value is required")
		return
	}
	value, err := fhevm.NormalizeJSON(req.Value, t)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	owner, err := recoverSigner(req.UserAddress, req.Signature, signer.EncryptionMessage(req.UserAddress, string(t)))
	if err != nil {
		s.writeAPIError(w, err)
		return
	}

	ev, err := s.registry.Encrypt(r.Context(), s.cfg.Network, value, t)
	if err != nil {
		s.metrics.encryptions.WithLabelValues(t.String(), string(toAPIError(err).code)).Inc()
		s.log.Warn("Encryption failed", zap.Stringer("type", t), zap.Error(err))
		s.writeAPIError(w, err)
		return
	}
	s.metrics.encryptions.WithLabelValues(t.String(), "ok").Inc()

	handle, err := s.store.Store(r.Context(), ev, owner)
	if err != nil {
		s.log.Error("Could not store ciphertext", zap.Error(err))
		s.writeAPIError(w, storeError(err))
		return
	}

	writeJSON(s.log, w, gateway.EncryptResponse{
		EncryptedData: fhevm.FormatEncryptedValue(ev),
		Type:          t.String(),
		PublicKey:     ev.PublicKey,
		Handle:        string(handle),
		Owner:         owner.Hex(),
	})
}

// handleRegister records the owner of a ciphertext encrypted outside the
// gateway. The first owner registered for a ciphertext keeps it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req gateway.RegisterRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.log.Debug("Could not decode request body", zap.Error(err))
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), "could not decode request body")
		return
	}

	if err := s.allow(r.Context(), "register", remoteIP(r)); err != nil {
		s.writeAPIError(w, err)
		return
	}

	owner, err := recoverSigner(req.UserAddress, req.Signature, signer.RegistrationMessage(req.UserAddress, req.Ciphertext))
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	data, err := fhevm.DecodeHex(req.Ciphertext)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	var bc lattice.BitCiphertext
	if err := bc.UnmarshalBinary(data); err != nil {
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), err.Error())
		return
	}
	t, ok := bc.Type().EncryptType()
	if !ok {
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), "unsupported ciphertext type")
		return
	}

	ev := &fhevm.EncryptedValue{Data: data, Type: t}
	handle, err := s.store.Store(r.Context(), ev, owner)
	if err != nil {
		if errors.Is(err, storage.ErrOwned) {
			s.log.Warn("Registration refused: ciphertext has another owner", zap.String("userAddress", owner.Hex()))
		} else {
			s.log.Error("Could not store ciphertext", zap.Error(err))
		}
		s.writeAPIError(w, storeError(err))
		return
	}

	writeJSON(s.log, w, gateway.EncryptResponse{
		EncryptedData: fhevm.FormatEncryptedValue(ev),
		Type:          t.String(),
		PublicKey:     s.engine.PublicKey(),
		Handle:        string(handle),
		Owner:         owner.Hex(),
	})
}

func (s *Server) handleCiphertext(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	handle, err := storage.ParseHandle(ps.ByName("handle"))
	if err != nil {
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), err.Error())
		return
	}
	ev, err := s.store.Load(r.Context(), handle)
	var owner common.Address
	if err == nil {
		owner, err = s.store.Owner(r.Context(), handle)
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(s.log, w, http.StatusNotFound, codeNotFound, "ciphertext not found")
		return
	}
	if err != nil {
		s.log.Error("Could not load ciphertext", zap.String("handle", string(handle)), zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, codeInternal, "could not load ciphertext")
		return
	}
	writeJSON(s.log, w, gateway.EncryptResponse{
		EncryptedData: fhevm.FormatEncryptedValue(ev),
		Type:          ev.Type.String(),
		PublicKey:     s.engine.PublicKey(),
		Handle:        string(handle),
		Owner:         owner.Hex(),
	})
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req fhevm.DecryptionRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.log.Debug("Could not decode request body", zap.Error(err))
		writeError(s.log, w, http.StatusBadRequest, string(fhevm.CodeValidation), "could not decode request body")
		return
	}

	resp, err := s.decrypt(r.Context(), "decrypt", req)
	if err != nil {
		ae := toAPIError(err)
		s.metrics.decryptions.WithLabelValues("http", ae.code).Inc()
		writeError(s.log, w, ae.status, ae.code, ae.message)
		return
	}
	s.metrics.decryptions.WithLabelValues("http", "ok").Inc()
	writeJSON(s.log, w, resp)
}

// decrypt authorizes req and decrypts its ciphertext. The signature must
// recover to req.UserAddress, the recovered address must be the owner the
// ciphertext was stored for and, with an allow-list configured, the
// contract must be on it. Nothing reaches the engine otherwise. Requests
// are rate limited per recovered address under route.
func (s *Server) decrypt(ctx context.Context, route string, req fhevm.DecryptionRequest) (*gateway.DecryptResponse, error) {
	if !fhevm.IsValidAddress(req.ContractAddress) {
		return nil, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), "invalid contractAddress"}
	}
	msg := signer.DecryptionMessage(req.ContractAddress, req.UserAddress, req.Ciphertext)
	user, err := recoverSigner(req.UserAddress, req.Signature, msg)
	if err != nil {
		if errors.Is(err, fhevm.ErrAddressMismatch) {
			s.log.Warn("Decryption refused: signature does not match user",
				zap.String("userAddress", req.UserAddress),
				zap.String("contractAddress", req.ContractAddress),
			)
		}
		return nil, err
	}

	if err := s.allow(ctx, route, normalizeAddress(user.Hex())); err != nil {
		return nil, err
	}

	if len(s.allowed) > 0 && !s.allowed[normalizeAddress(req.ContractAddress)] {
		return nil, &apiError{http.StatusForbidden, codeAccessDenied, "contract is not allowed to request decryption"}
	}

	ciphertext, err := fhevm.DecodeHex(req.Ciphertext)
	if err != nil {
		return nil, err
	}
	ft, err := lattice.PeekType(ciphertext)
	if err != nil {
		return nil, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), err.Error()}
	}
	t, ok := ft.EncryptType()
	if !ok {
		return nil, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), "unsupported ciphertext type"}
	}
	if err := s.checkOwner(ctx, user, storage.ComputeHandle(t, ciphertext)); err != nil {
		return nil, err
	}

	plaintext, err := s.engine.Decrypt(ctx, ciphertext)
	if errors.Is(err, lattice.ErrMalformedCiphertext) {
		return nil, &apiError{http.StatusBadRequest, string(fhevm.CodeValidation), err.Error()}
	}
	if err != nil {
		s.log.Error("Decryption failed", zap.Error(err))
		return nil, &apiError{http.StatusInternalServerError, string(fhevm.CodeDecryption), "decryption failed"}
	}

	return &gateway.DecryptResponse{
		Plaintext: plaintext.String(),
		Type:      t.String(),
		Value:     fhevm.FormatDecryptedValue(plaintext, t),
	}, nil
}

// checkOwner refuses unless the ciphertext under handle was stored for
// user. Ciphertexts the gateway has no owner for are refused as well.
func (s *Server) checkOwner(ctx context.Context, user common.Address, handle storage.Handle) error {
	owner, err := s.store.Owner(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return &apiError{http.StatusForbidden, codeAccessDenied, "ciphertext is not registered with this gateway"}
	}
	if err != nil {
		s.log.Error("Could not look up ciphertext owner", zap.String("handle", string(handle)), zap.Error(err))
		return &apiError{http.StatusInternalServerError, codeInternal, "could not look up ciphertext owner"}
	}
	if owner != user {
		s.log.Warn("Decryption refused: ciphertext belongs to another address",
			zap.String("userAddress", user.Hex()),
			zap.String("handle", string(handle)),
		)
		return &apiError{http.StatusForbidden, codeAccessDenied, "ciphertext belongs to another address"}
	}
	return nil
}
