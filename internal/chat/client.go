package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the chat bridge over HTTP. The bridge owns the actual
// platform connection and message rendering.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a structured message into the conversation.
func (c *Client) Send(ctx context.Context, conversationID string, msg Message) error {
	url := fmt.Sprintf("%s/api/conversations/%s/messages", c.baseURL, conversationID)
	return c.post(ctx, url, msg, nil)
}

type createConversationRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type createConversationResponse struct {
	ID string `json:"id"`
}

// CreateConversation opens a private conversation with the user and returns
// its id.
func (c *Client) CreateConversation(ctx context.Context, userID, name string) (string, error) {
	url := fmt.Sprintf("%s/api/conversations", c.baseURL)
	var resp createConversationResponse
	if err := c.post(ctx, url, createConversationRequest{UserID: userID, Name: name}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("bridge returned empty conversation id")
	}
	return resp.ID, nil
}

// ArchiveConversation closes a conversation, used to roll back a submission
// whose order record could not be created.
func (c *Client) ArchiveConversation(ctx context.Context, conversationID string) error {
	url := fmt.Sprintf("%s/api/conversations/%s/archive", c.baseURL, conversationID)
	return c.post(ctx, url, struct{}{}, nil)
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
