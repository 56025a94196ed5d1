// ABOUTME: REST client for the pull transport
// ABOUTME: Stateless request/response calls; the correctness backstop

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/corretora/chat-gateway/internal/gateway"
)

// Client talks to the gateway's REST endpoints. Every call is a
// stateless request that performs the operation synchronously.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a pull client for the gateway at baseURL, authenticating
// with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendOptions describes one pull-path send.
type SendOptions struct {
	Body string

	// ContactID names the destination; required when the caller is staff.
	ContactID int64

	// IdempotencyKey makes the send replay-safe. A channel falling back
	// from push passes the key the push attempt used.
	IdempotencyKey string
}

// Send posts a message. The returned bool is true when the idempotency
// key matched an earlier send and no new write occurred.
func (c *Client) Send(ctx context.Context, opts SendOptions) (*gateway.MessageResponse, bool, error) {
	payload := gateway.SendMessageRequest{Body: opts.Body, ContactID: opts.ContactID}

	var headers http.Header
	if opts.IdempotencyKey != "" {
		headers = http.Header{"Idempotency-Key": []string{opts.IdempotencyKey}}
	}

	var resp gateway.SendMessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages", headers, payload, &resp); err != nil {
		return nil, false, err
	}
	return &resp.Message, resp.Status == "duplicate", nil
}

// ListMessages fetches a contact's thread, newest first. contactID 0
// means the caller's own thread (contact callers only). limit 0 means
// all messages.
func (c *Client) ListMessages(ctx context.Context, contactID int64, limit int) ([]gateway.MessageResponse, error) {
	path := "/api/messages"
	query := make([]string, 0, 2)
	if contactID != 0 {
		query = append(query, "contact_id="+strconv.FormatInt(contactID, 10))
	}
	if limit > 0 {
		query = append(query, "limit="+strconv.Itoa(limit))
	}
	for i, q := range query {
		if i == 0 {
			path += "?" + q
		} else {
			path += "&" + q
		}
	}

	var resp gateway.MessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ListConversations fetches the aggregated conversation list. Staff only.
func (c *Client) ListConversations(ctx context.Context) ([]gateway.ConversationResponse, error) {
	var resp []gateway.ConversationResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// MarkRead marks a message read. Returns false when the id is unknown.
func (c *Client) MarkRead(ctx context.Context, messageID int64) (bool, error) {
	path := fmt.Sprintf("/api/messages/%d/read", messageID)
	var resp gateway.MarkReadResponse
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Found, nil
}

// CountUnread fetches the unread badge count. Staff only.
func (c *Client) CountUnread(ctx context.Context) (int, error) {
	var resp gateway.UnreadCountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/messages/unread/count", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// doJSON performs one request with a JSON body and decodes the JSON
// response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
