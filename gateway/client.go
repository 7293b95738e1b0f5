// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gateway is the client side of the fhevm decryption gateway. It
// fetches the network public key and submits signed decryption requests
// over HTTP or an authenticated websocket session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/signer"
)

const defaultTimeout = 30 * time.Second

var (
	ErrClosed       = errors.New("gateway session closed")
	ErrUnsupported  = errors.New("unsupported gateway URL scheme")
	ErrAuthRejected = errors.New("gateway rejected authentication")
)

// APIError is a failure reported by the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithWebsocketDialer sets the websocket dialer.
func WithWebsocketDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.wsDialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client is a gateway session bound to a signer.
type Client struct {
	baseURL  *url.URL
	signer   fhevm.Signer
	http     *http.Client
	wsDialer *websocket.Dialer
	log      *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	session string
	closed  bool
}

func newClient(rawURL string, s fhevm.Signer, opts []Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	c := &Client{
		baseURL:  u,
		signer:   s,
		http:     &http.Client{Timeout: defaultTimeout},
		wsDialer: websocket.DefaultDialer,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect opens a session with the gateway at rawURL. For http(s) URLs it
// checks the health endpoint; for ws(s) URLs it dials /ws and completes the
// signed nonce handshake, which requires a signer.
func Connect(ctx context.Context, rawURL string, s fhevm.Signer, opts ...Option) (*Client, error) {
	c, err := newClient(rawURL, s, opts)
	if err != nil {
		return nil, err
	}

	switch c.baseURL.Scheme {
	case "http", "https":
		if err := c.health(ctx); err != nil {
			return nil, err
		}
	case "ws", "wss":
		if s == nil {
			return nil, fhevm.ErrNoSigner
		}
		if err := c.dial(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, c.baseURL.Scheme)
	}
	c.log.Debug("gateway connected", zap.String("url", c.baseURL.Redacted()), zap.String("session", c.session))
	return c, nil
}

// httpURL returns the HTTP form of the base URL joined with path.
func (c *Client) httpURL(path string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) wsURL() string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func (c *Client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.httpURL("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "gateway unhealthy"}
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.wsDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
	}

	var challenge Message
	if err := conn.ReadJSON(&challenge); err != nil {
		conn.Close()
		return fmt.Errorf("read challenge: %w", err)
	}
	if challenge.Type != MsgChallenge || challenge.Nonce == "" {
		conn.Close()
		return fmt.Errorf("unexpected %q message, want challenge", challenge.Type)
	}

	addr, err := c.signer.Address(ctx)
	if err != nil {
		conn.Close()
		return fmt.Errorf("signer address: %w", err)
	}
	sig, err := c.signer.SignMessage(ctx, signer.AuthMessage(challenge.Nonce))
	if err != nil {
		conn.Close()
		return fmt.Errorf("sign challenge: %w", err)
	}
	if err := conn.WriteJSON(Message{
		Type:      MsgAuth,
		Address:   addr.Hex(),
		Signature: hexutil.Encode(sig),
	}); err != nil {
		conn.Close()
		return fmt.Errorf("send auth: %w", err)
	}

	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("read auth reply: %w", err)
	}
	if reply.Type != MsgAuthenticated {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrAuthRejected, reply.Error)
	}

	c.conn = conn
	c.session = reply.Session
	return nil
}

// Session returns the websocket session id, or "" for HTTP sessions.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// PublicKey fetches the gateway's public key as 0x hex.
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	return FetchPublicKey(ctx, c.httpURL(""), c.http)
}

// FetchPublicKey downloads the binary public key served at
// gatewayURL/publickey and returns it as 0x hex. hc may be nil.
func FetchPublicKey(ctx context.Context, gatewayURL string, hc *http.Client) (string, error) {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/publickey"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch public key: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read public key: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if len(data) == 0 {
		return "", errors.New("gateway returned an empty public key")
	}
	return hexutil.Encode(data), nil
}

// Decrypt asks the gateway to decrypt req.Ciphertext. Unless req already
// carries a signature, the client's signer signs the canonical decryption
// message for it.
func (c *Client) Decrypt(ctx context.Context, req fhevm.DecryptionRequest) (*big.Int, error) {
	if req.Signature == "" {
		if c.signer == nil {
			return nil, fhevm.ErrNoSigner
		}
		sig, err := c.signer.SignMessage(ctx, signer.DecryptionMessage(req.ContractAddress, req.UserAddress, req.Ciphertext))
		if err != nil {
			return nil, fmt.Errorf("sign decryption request: %w", err)
		}
		req.Signature = hexutil.Encode(sig)
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	var plaintext string
	var err error
	if conn != nil {
		plaintext, err = c.decryptWS(ctx, req)
	} else {
		plaintext, err = c.decryptHTTP(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(plaintext, 10)
	if !ok {
		return nil, fmt.Errorf("gateway returned invalid plaintext %q", plaintext)
	}
	return v, nil
}

func (c *Client) decryptHTTP(ctx context.Context, req fhevm.DecryptionRequest) (string, error) {
	var out DecryptResponse
	if err := c.post(ctx, "/api/fhe/decrypt", req, &out); err != nil {
		return "", err
	}
	return out.Plaintext, nil
}

// post sends body as JSON to path and decodes the data of a successful
// envelope into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL(path), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	var env Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "invalid response body"}
	}
	if !env.Success || resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Register claims ev for the client's signer. The gateway only decrypts a
// ciphertext for its registered owner; values encrypted by the gateway
// itself are registered when they are created.
func (c *Client) Register(ctx context.Context, ev *fhevm.EncryptedValue) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if c.signer == nil {
		return fhevm.ErrNoSigner
	}

	addr, err := c.signer.Address(ctx)
	if err != nil {
		return fmt.Errorf("signer address: %w", err)
	}
	ct := fhevm.FormatEncryptedValue(ev)
	sig, err := c.signer.SignMessage(ctx, signer.RegistrationMessage(addr.Hex(), ct))
	if err != nil {
		return fmt.Errorf("sign registration: %w", err)
	}

	var out EncryptResponse
	if err := c.post(ctx, "/api/ciphertexts", RegisterRequest{
		Ciphertext:  ct,
		UserAddress: addr.Hex(),
		Signature:   hexutil.Encode(sig),
	}, &out); err != nil {
		return err
	}
	c.log.Debug("registered ciphertext", zap.String("handle", out.Handle), zap.String("owner", out.Owner))
	return nil
}

// decryptWS runs one request/response exchange. Exchanges on a session are
// serialized. A failed read or write leaves the connection unusable, so it
// ends the session.
func (c *Client) decryptWS(ctx context.Context, req fhevm.DecryptionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return "", ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	id := uuid.NewString()
	if err := c.conn.WriteJSON(Message{Type: MsgDecrypt, ID: id, Request: &req}); err != nil {
		c.abort()
		return "", fmt.Errorf("send decrypt: %w: %w", ErrClosed, err)
	}
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.abort()
			return "", fmt.Errorf("read decrypt reply: %w: %w", ErrClosed, err)
		}
		if msg.ID != id {
			c.log.Debug("dropping stale gateway message", zap.String("id", msg.ID), zap.String("type", msg.Type))
			continue
		}
		switch msg.Type {
		case MsgResult:
			return msg.Plaintext, nil
		case MsgError:
			return "", &APIError{Code: msg.Code, Message: msg.Error}
		default:
			return "", fmt.Errorf("unexpected %q message", msg.Type)
		}
	}
}

// abort drops a broken connection. c.mu must be held.
func (c *Client) abort() {
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.log.Debug("gateway session ended", zap.String("session", c.session))
}

// Close ends the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Connector opens gateway sessions for fhevm clients.
type Connector struct {
	Options []Option
}

// Connect implements fhevm.GatewayConnector.
func (gc Connector) Connect(ctx context.Context, url string, s fhevm.Signer) (fhevm.Gateway, error) {
	c, err := Connect(ctx, url, s, gc.Options...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var (
	_ fhevm.Gateway          = (*Client)(nil)
	_ fhevm.Registrar        = (*Client)(nil)
	_ fhevm.GatewayConnector = Connector{}
)
