// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gateway

import (
	"encoding/json"

	"github.com/luxfi/fhevm"
)

// Response is the JSON envelope of every gateway API response.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// KeysResponse is the data of GET /api/keys.
type KeysResponse struct {
	PublicKey string `json:"publicKey"`
	HasKey    bool   `json:"hasKey"`
	ChainID   uint64 `json:"chainId"`
}

// EncryptRequest is the body of POST /api/fhe/encrypt. Value is a JSON
// number, string or bool. Signature is UserAddress's signature over
// signer.EncryptionMessage and makes UserAddress the ciphertext's owner.
type EncryptRequest struct {
	Value       json.RawMessage `json:"value"`
	Type        string          `json:"type"`
	UserAddress string          `json:"userAddress"`
	Signature   string          `json:"signature"`
}

// EncryptResponse is the data of POST /api/fhe/encrypt, POST
// /api/ciphertexts and GET /api/ciphertexts/:handle.
type EncryptResponse struct {
	EncryptedData string `json:"encryptedData"`
	Type          string `json:"type"`
	PublicKey     string `json:"publicKey"`
	Handle        string `json:"handle"`
	Owner         string `json:"owner,omitempty"`
}

// RegisterRequest is the body of POST /api/ciphertexts. It claims a
// ciphertext encrypted outside the gateway for UserAddress; Signature is
// over signer.RegistrationMessage.
type RegisterRequest struct {
	Ciphertext  string `json:"ciphertext"`
	UserAddress string `json:"userAddress"`
	Signature   string `json:"signature"`
}

// DecryptResponse is the data of POST /api/fhe/decrypt. Plaintext is
// always decimal; Value is the typed form when the ciphertext type is known.
type DecryptResponse struct {
	Plaintext string `json:"plaintext"`
	Type      string `json:"type,omitempty"`
	Value     any    `json:"value,omitempty"`
}

// Websocket message types.
const (
	MsgChallenge     = "challenge"
	MsgAuth          = "auth"
	MsgAuthenticated = "authenticated"
	MsgDecrypt       = "decrypt"
	MsgResult        = "result"
	MsgError         = "error"
)

// Message is a websocket frame. The server opens with a challenge carrying
// a nonce, the client answers with auth, and afterwards each decrypt is
// answered by a result or error with the same ID.
type Message struct {
	Type      string                   `json:"type"`
	ID        string                   `json:"id,omitempty"`
	Nonce     string                   `json:"nonce,omitempty"`
	Address   string                   `json:"address,omitempty"`
	Signature string                   `json:"signature,omitempty"`
	Session   string                   `json:"session,omitempty"`
	Request   *fhevm.DecryptionRequest `json:"request,omitempty"`
	Plaintext string                   `json:"plaintext,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Code      string                   `json:"code,omitempty"`
}
