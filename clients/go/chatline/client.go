// Package chatline provides a client for the chatline HTTP API: account
// registration, login, message history and message submission.
package chatline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is used when NewClient is given an empty base URL.
const DefaultBaseURL = "http://localhost:8080"

// MaxContentLength is the longest message body the server accepts.
const MaxContentLength = 5000

// Client is a chatline API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new chatline client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response. Message is the server's human-readable
// error when it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chatline error %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("chatline error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, token string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

// Credentials is the request body for register and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse is the response from account registration.
type RegisterResponse struct {
	OK       bool   `json:"ok"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) (*RegisterResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/register", Credentials{username, password}, "")
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoginResponse is the response from login. Token and WSURL are taken
// from whichever of their known field names the server used.
type LoginResponse struct {
	OK       bool
	UserID   string
	Username string
	Token    string
	WSURL    string
}

var (
	tokenFields = []string{"token", "idToken", "accessToken"}
	wsURLFields = []string{"wsUrl", "websocketUrl", "wsURL"}
)

// Login exchanges credentials for a bearer token and the live channel endpoint.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/login", Credentials{username, password}, "")
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, err
	}

	resp := &LoginResponse{
		Token:    firstString(raw, tokenFields...),
		WSURL:    firstString(raw, wsURLFields...),
		UserID:   firstString(raw, "userId", "user_id"),
		Username: firstString(raw, "username"),
	}
	resp.OK, _ = raw["ok"].(bool)
	if resp.Username == "" {
		resp.Username = username
	}
	if resp.Token == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "login response carried no token"}
	}
	return resp, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// FetchHistory returns the raw message records from the history endpoint.
// Both {"messages": [...]} and a bare array are accepted.
func (c *Client) FetchHistory(ctx context.Context, token string) ([]json.RawMessage, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/messages", nil, token)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var resp struct {
		Messages []json.RawMessage `json:"messages"`
		Items    []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		return resp.Items, nil
	}
	return resp.Messages, nil
}

// SubmitRequest is the request body for posting a message.
type SubmitRequest struct {
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

// SubmitResponse is the response from posting a message. Message is the
// stored record as the server returned it.
type SubmitResponse struct {
	Message json.RawMessage `json:"message"`
}

// Submit posts a message as identity. The message is not echoed locally;
// it arrives back through the live channel.
func (c *Client) Submit(ctx context.Context, identity, body, token string) (*SubmitResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/messages", SubmitRequest{SenderID: identity, Content: body}, token)
	if err != nil {
		return nil, err
	}

	var resp SubmitResponse
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Checks    map[string]any `json:"checks"`
	Timestamp string         `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
