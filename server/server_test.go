// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/lattice"
	"github.com/luxfi/fhevm/ratelimit"
	"github.com/luxfi/fhevm/signer"
)

const testContract = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"

var (
	engineOnce sync.Once
	sharedEng  *lattice.Engine
	engineErr  error
)

func testEngine(t *testing.T) *lattice.Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping key generation in short mode")
	}
	engineOnce.Do(func() {
		params, err := lattice.NewParametersFromLiteral(lattice.PN10QP27)
		if err != nil {
			engineErr = err
			return
		}
		sharedEng, engineErr = lattice.GenerateEngine(params)
	})
	require.NoError(t, engineErr)
	return sharedEng
}

func testNetwork() fhevm.Config {
	return fhevm.Config{ChainID: 31337, Name: "local", RPCURL: "http://127.0.0.1:8545"}
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) *httptest.Server {
	t.Helper()
	if cfg.Network.ChainID == 0 {
		cfg.Network = testNetwork()
	}
	s, err := New(cfg, testEngine(t), opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, gateway.Response) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var env gateway.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func getJSON(t *testing.T, url string) (*http.Response, gateway.Response) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env gateway.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func newUser(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.Generate()
	require.NoError(t, err)
	return s
}

func address(t *testing.T, s *signer.LocalSigner) string {
	t.Helper()
	addr, err := s.Address(context.Background())
	require.NoError(t, err)
	return addr.Hex()
}

func encryptRequest(t *testing.T, user *signer.LocalSigner, value any, typ string) map[string]any {
	t.Helper()
	addr := address(t, user)
	sig, err := user.SignMessage(context.Background(), signer.EncryptionMessage(addr, typ))
	require.NoError(t, err)
	return map[string]any{
		"value":       value,
		"type":        typ,
		"userAddress": addr,
		"signature":   hexutil.Encode(sig),
	}
}

func encrypt(t *testing.T, srv *httptest.Server, user *signer.LocalSigner, value, typ string) gateway.EncryptResponse {
	t.Helper()
	resp, env := postJSON(t, srv.URL+"/api/fhe/encrypt", encryptRequest(t, user, json.RawMessage(value), typ))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	require.True(t, env.Success)
	var out gateway.EncryptResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func registerRequest(t *testing.T, user *signer.LocalSigner, ciphertext string) gateway.RegisterRequest {
	t.Helper()
	addr := address(t, user)
	sig, err := user.SignMessage(context.Background(), signer.RegistrationMessage(addr, ciphertext))
	require.NoError(t, err)
	return gateway.RegisterRequest{Ciphertext: ciphertext, UserAddress: addr, Signature: hexutil.Encode(sig)}
}

func signedRequest(t *testing.T, s *signer.LocalSigner, contract, ciphertext string) fhevm.DecryptionRequest {
	t.Helper()
	addr, err := s.Address(context.Background())
	require.NoError(t, err)
	sig, err := s.SignMessage(context.Background(), signer.DecryptionMessage(contract, addr.Hex(), ciphertext))
	require.NoError(t, err)
	return fhevm.DecryptionRequest{
		ContractAddress: contract,
		UserAddress:     addr.Hex(),
		Ciphertext:      ciphertext,
		Signature:       hexutil.Encode(sig),
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "fhevm_http_requests_total")
}

func TestPublicKeyEndpoints(t *testing.T) {
	e := testEngine(t)
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/publickey")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, e.PublicKey(), hexutil.Encode(raw))

	resp, env := getJSON(t, srv.URL+"/api/keys")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var keys gateway.KeysResponse
	require.NoError(t, json.Unmarshal(env.Data, &keys))
	require.True(t, keys.HasKey)
	require.Equal(t, e.PublicKey(), keys.PublicKey)
	require.Equal(t, uint64(31337), keys.ChainID)
}

func TestBounds(t *testing.T) {
	srv := newTestServer(t, Config{})
	_, env := getJSON(t, srv.URL+"/api/bounds")

	var entries []boundsEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, len(fhevm.AllTypes()))

	byType := make(map[string]boundsEntry)
	for _, e := range entries {
		byType[e.Type] = e
	}
	require.Equal(t, "18446744073709551615", byType["uint64"].Max)
	require.Equal(t, "255", byType["uint8"].Max)
	require.Equal(t, true, byType["bool"].Max)
	require.Nil(t, byType["address"].Max)
	require.Equal(t, 160, byType["address"].Bits)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	srv := newTestServer(t, Config{})
	user := newUser(t)

	tests := []struct {
		value string
		typ   string
		plain string
		want  any
	}{
		{`"42"`, "uint8", "42", float64(42)},
		{`true`, "bool", "1", true},
		{`"18446744073709551615"`, "uint64", "18446744073709551615", "18446744073709551615"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			enc := encrypt(t, srv, user, tt.value, tt.typ)
			require.Equal(t, tt.typ, enc.Type)
			require.Equal(t, address(t, user), enc.Owner)
			require.True(t, strings.HasPrefix(enc.EncryptedData, "0x"))

			// The stored copy is retrievable by handle.
			resp, env := getJSON(t, srv.URL+"/api/ciphertexts/"+enc.Handle)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var stored gateway.EncryptResponse
			require.NoError(t, json.Unmarshal(env.Data, &stored))
			require.Equal(t, enc.EncryptedData, stored.EncryptedData)
			require.Equal(t, enc.Owner, stored.Owner)

			resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, user, testContract, enc.EncryptedData))
			require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
			var dec gateway.DecryptResponse
			require.NoError(t, json.Unmarshal(env.Data, &dec))
			require.Equal(t, tt.plain, dec.Plaintext)
			require.Equal(t, tt.typ, dec.Type)
			require.Equal(t, tt.want, dec.Value)
		})
	}
}

func TestEncryptErrors(t *testing.T) {
	srv := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"value":"256","type":"uint8"}`},
		{"bad type", `{"value":"1","type":"uint128"}`},
		{"bad bool", `{"value":"yes","type":"bool"}`},
		{"missing value", `{"type":"uint8"}`},
		{"bad json", `{"value":`},
		{"missing owner", `{"value":"1","type":"uint8"}`},
		{"missing signature", `{"value":"1","type":"uint8","userAddress":"` + testContract + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/fhe/encrypt", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			var env gateway.Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.False(t, env.Success)
			require.Equal(t, "VALIDATION_FAILED", env.Code)
		})
	}

	t.Run("owner claimed by another signer", func(t *testing.T) {
		body := encryptRequest(t, newUser(t), 1, "uint8")
		body["userAddress"] = testContract
		resp, env := postJSON(t, srv.URL+"/api/fhe/encrypt", body)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, "ADDRESS_MISMATCH", env.Code)
	})

	t.Run("signature for another type", func(t *testing.T) {
		body := encryptRequest(t, newUser(t), 1, "uint8")
		body["type"] = "uint16"
		resp, env := postJSON(t, srv.URL+"/api/fhe/encrypt", body)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, "ADDRESS_MISMATCH", env.Code)
	})
}

func TestDecryptRejections(t *testing.T) {
	other := "0x00000000000000000000000000000000000000aa"
	srv := newTestServer(t, Config{Network: fhevm.Config{
		ChainID:   31337,
		Name:      "local",
		RPCURL:    "http://127.0.0.1:8545",
		Contracts: map[string]string{"token": testContract},
	}})
	user := newUser(t)
	mallory := newUser(t)
	enc := encrypt(t, srv, user, `7`, "uint8")

	// Signed by someone else.
	forged := signedRequest(t, mallory, testContract, enc.EncryptedData)
	forged.UserAddress = address(t, user)
	resp, env := postJSON(t, srv.URL+"/api/fhe/decrypt", forged)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ADDRESS_MISMATCH", env.Code)

	// Signature over a different ciphertext.
	swapped := signedRequest(t, user, testContract, "0x00")
	swapped.Ciphertext = enc.EncryptedData
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", swapped)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ADDRESS_MISMATCH", env.Code)

	// Missing signature.
	unsigned := signedRequest(t, user, testContract, enc.EncryptedData)
	unsigned.Signature = ""
	resp, env = postJSON(t, srv.URL+"/decrypt", unsigned)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_FAILED", env.Code)

	// Contract not on the allow-list.
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, user, other, enc.EncryptedData))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ACCESS_DENIED", env.Code)

	// Malformed ciphertext.
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, user, testContract, "0x0102"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_FAILED", env.Code)

	// A valid ciphertext the gateway holds no owner for.
	local, err := testEngine(t).EncryptUint8(context.Background(), 7)
	require.NoError(t, err)
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, user, testContract, hexutil.Encode(local)))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ACCESS_DENIED", env.Code)

	// Allowed contract with checksum casing differences.
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, user, strings.ToLower(testContract), enc.EncryptedData))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
}

func TestDecryptRequiresOwner(t *testing.T) {
	srv := newTestServer(t, Config{})
	alice := newUser(t)
	mallory := newUser(t)

	enc := encrypt(t, srv, alice, `42`, "uint8")

	// Mallory can read the ciphertext but not have it decrypted, even with
	// a request correctly signed by her own key.
	resp, env := getJSON(t, srv.URL+"/api/ciphertexts/"+enc.Handle)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored gateway.EncryptResponse
	require.NoError(t, json.Unmarshal(env.Data, &stored))

	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, mallory, testContract, stored.EncryptedData))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ACCESS_DENIED", env.Code)
	require.Empty(t, env.Data)

	// Nor claim it for herself.
	resp, env = postJSON(t, srv.URL+"/api/ciphertexts", registerRequest(t, mallory, stored.EncryptedData))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ACCESS_DENIED", env.Code)

	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, alice, testContract, stored.EncryptedData))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var dec gateway.DecryptResponse
	require.NoError(t, json.Unmarshal(env.Data, &dec))
	require.Equal(t, "42", dec.Plaintext)
}

func TestRegisterCiphertext(t *testing.T) {
	srv := newTestServer(t, Config{})
	bob := newUser(t)
	alice := newUser(t)

	data, err := testEngine(t).EncryptUint16(context.Background(), 1234)
	require.NoError(t, err)
	ct := hexutil.Encode(data)

	resp, env := postJSON(t, srv.URL+"/api/ciphertexts", registerRequest(t, bob, ct))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var reg gateway.EncryptResponse
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	require.Equal(t, address(t, bob), reg.Owner)
	require.Equal(t, "uint16", reg.Type)

	// Registering again as the owner is a no-op.
	resp, env = postJSON(t, srv.URL+"/api/ciphertexts", registerRequest(t, bob, ct))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)

	resp, env = postJSON(t, srv.URL+"/api/ciphertexts", registerRequest(t, alice, ct))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ACCESS_DENIED", env.Code)

	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, bob, testContract, ct))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	var dec gateway.DecryptResponse
	require.NoError(t, json.Unmarshal(env.Data, &dec))
	require.Equal(t, "1234", dec.Plaintext)

	tests := []struct {
		name   string
		req    gateway.RegisterRequest
		status int
		code   string
	}{
		{"malformed", registerRequest(t, bob, "0x0102"), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unsigned", gateway.RegisterRequest{Ciphertext: ct, UserAddress: address(t, bob)}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"claimed for another", func() gateway.RegisterRequest {
			r := registerRequest(t, alice, ct)
			r.UserAddress = address(t, bob)
			return r
		}(), http.StatusForbidden, "ADDRESS_MISMATCH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := postJSON(t, srv.URL+"/api/ciphertexts", tt.req)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.code, env.Code)
		})
	}
}

func TestCiphertextLookupErrors(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, env := getJSON(t, srv.URL+"/api/ciphertexts/nothex")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_FAILED", env.Code)

	resp, env = getJSON(t, srv.URL+"/api/ciphertexts/0x"+strings.Repeat("ab", 32))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", env.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{}, WithLimiter(ratelimit.New(1, time.Minute)))
	alice := newUser(t)
	bob := newUser(t)

	enc := encrypt(t, srv, alice, `1`, "uint8")

	// Encryption is limited per client, whatever owner it names.
	for _, user := range []*signer.LocalSigner{alice, bob, newUser(t)} {
		resp, env := postJSON(t, srv.URL+"/api/fhe/encrypt", encryptRequest(t, user, 1, "uint8"))
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		require.Equal(t, "RATE_LIMITED", env.Code)
	}

	// Decryption is limited per recovered signer.
	resp, env := postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, alice, testContract, enc.EncryptedData))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", signedRequest(t, alice, testContract, enc.EncryptedData))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "RATE_LIMITED", env.Code)

	// Claiming another address without its signature does not buy quota.
	forged := signedRequest(t, alice, testContract, enc.EncryptedData)
	forged.UserAddress = address(t, bob)
	resp, env = postJSON(t, srv.URL+"/api/fhe/decrypt", forged)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "ADDRESS_MISMATCH", env.Code)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, Config{AllowedOrigins: []string{"https://app.example"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/fhe/encrypt", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Config{Network: testNetwork()}, nil)
	require.Error(t, err)

	_, err = New(Config{}, testEngine(t))
	require.ErrorIs(t, err, fhevm.ErrValidation)
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fhevm.ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
		{fhevm.ErrAddressMismatch, http.StatusForbidden, "ADDRESS_MISMATCH"},
		{fhevm.ErrNotInitialized, http.StatusServiceUnavailable, "NOT_INITIALIZED"},
		{fhevm.ErrEncryption, http.StatusInternalServerError, "ENCRYPTION_FAILED"},
		{fhevm.ErrInitialization, http.StatusInternalServerError, "INIT_FAILED"},
		{io.EOF, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		ae := toAPIError(tt.err)
		require.Equal(t, tt.status, ae.status, tt.code)
		require.Equal(t, tt.code, ae.code)
	}
}
