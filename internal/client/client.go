// Package client talks to a voxchat server: the multipart inference gateway
// and the owner-scoped GraphQL persistence API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/models"
)

// ErrUnauthorized is returned when the server rejects the client's token.
var ErrUnauthorized = errors.New("unauthorized")

// ErrBadRequest is returned when the server rejects a request or its
// arguments as invalid.
var ErrBadRequest = errors.New("bad request")

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8585.
	BaseURL string
	// Token is the bearer token; its subject is the owner id.
	Token string
	// SubmitTimeout bounds one gateway call. Zero means 30s.
	SubmitTimeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client is a gateway and GraphQL client for the voxchat server.
type Client struct {
	baseURL       string
	token         string
	owner         string
	submitTimeout time.Duration
	httpClient    *http.Client
}

// New creates a client. The owner id is read from the token's subject;
// the server remains the authority and verifies the signature.
func New(opts Options) *Client {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		token:         opts.Token,
		owner:         tokenSubject(opts.Token),
		submitTimeout: opts.SubmitTimeout,
		httpClient:    opts.HTTPClient,
	}
}

// Owner returns the owner id carried by the client's token, or "".
func (c *Client) Owner() string {
	return c.owner
}

func tokenSubject(token string) string {
	if token == "" {
		return ""
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}

// checkOwner rejects calls made on behalf of an owner other than the token's.
func (c *Client) checkOwner(ownerID string) error {
	if ownerID != "" && c.owner != "" && ownerID != c.owner {
		return fmt.Errorf("owner %s: %w", ownerID, models.ErrForbidden)
	}
	return nil
}

// queryPath is the server's GraphQL endpoint.
const queryPath = "/query"

// graphQLRequest is the request payload for GraphQL operations.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the response payload from GraphQL operations.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// graphQLError represents a GraphQL error. The server classifies resolver
// failures in extensions.code.
type graphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Err maps the error code to the package's sentinel errors.
func (e graphQLError) Err() error {
	code, _ := e.Extensions["code"].(string)
	switch code {
	case "NOT_FOUND":
		return fmt.Errorf("%w: %s", models.ErrNotFound, e.Message)
	case "FORBIDDEN":
		return fmt.Errorf("%w: %s", models.ErrForbidden, e.Message)
	case "UNAUTHENTICATED":
		return fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)
	case "BAD_USER_INPUT", "GRAPHQL_VALIDATION_FAILED", "GRAPHQL_PARSE_FAILED":
		return fmt.Errorf("%w: %s", ErrBadRequest, e.Message)
	default:
		return fmt.Errorf("graphql error: %s", e.Message)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Execute sends a GraphQL query or mutation and decodes its data into result.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, result any) error {
	reqBody, err := json.Marshal(graphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return statusError(resp.StatusCode, body)
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return statusError(resp.StatusCode, body)
		}
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return gqlResp.Errors[0].Err()
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, body)
	}

	if result != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

func statusError(status int, body []byte) error {
	var eb errorBody
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", models.ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", models.ErrNotFound, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	default:
		return fmt.Errorf("server error: %d %s - %s", status, http.StatusText(status), msg)
	}
}

// Selections shared by the operations below.
const (
	conversationFields = `id ownerId title model language messageCount createdAt updatedAt`
	messageFields      = `id conversationId content transcript audioUrl isUser latencyMs createdAt`
	performanceFields  = `id ownerId model language latencyMs qualityScore expressivityScore createdAt`
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation creates a conversation for the token's owner.
func (c *Client) CreateConversation(ctx context.Context, ownerID string, input models.ConversationInput) (*models.Conversation, error) {
	if err := c.checkOwner(ownerID); err != nil {
		return nil, err
	}
	const query = `
		mutation CreateConversation($input: CreateConversationInput!) {
			createConversation(input: $input) { ` + conversationFields + ` }
		}
	`

	var result struct {
		CreateConversation models.ConversationSummary `json:"createConversation"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": input}, &result); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &result.CreateConversation.Conversation, nil
}

// ListConversations returns the owner's conversations newest first.
func (c *Client) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	if err := c.checkOwner(ownerID); err != nil {
		return nil, err
	}
	const query = `
		query Conversations {
			conversations { ` + conversationFields + ` }
		}
	`

	var result struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return result.Conversations, nil
}

// DeleteConversation deletes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, ownerID, id string) error {
	if err := c.checkOwner(ownerID); err != nil {
		return err
	}
	const query = `
		mutation DeleteConversation($id: ID!) {
			deleteConversation(id: $id)
		}
	`

	if err := c.Execute(ctx, query, map[string]any{"id": id}, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// CreateMessage appends a message to a conversation.
func (c *Client) CreateMessage(ctx context.Context, ownerID string, input models.MessageInput) (*models.Message, error) {
	if err := c.checkOwner(ownerID); err != nil {
		return nil, err
	}
	const query = `
		mutation CreateMessage($input: CreateMessageInput!) {
			createMessage(input: $input) { ` + messageFields + ` }
		}
	`

	var result struct {
		CreateMessage models.Message `json:"createMessage"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": input}, &result); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &result.CreateMessage, nil
}

// ListMessages returns a conversation's messages in creation order.
func (c *Client) ListMessages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error) {
	if err := c.checkOwner(ownerID); err != nil {
		return nil, err
	}
	const query = `
		query Messages($conversationId: ID!) {
			messages(conversationId: $conversationId) { ` + messageFields + ` }
		}
	`

	var result struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.Execute(ctx, query, map[string]any{"conversationId": conversationID}, &result); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return result.Messages, nil
}

// =============================================================================
// PERFORMANCE
// =============================================================================

// CreatePerformance appends a performance record.
func (c *Client) CreatePerformance(ctx context.Context, ownerID string, input models.PerformanceInput) (*models.PerformanceRecord, error) {
	if err := c.checkOwner(ownerID); err != nil {
		return nil, err
	}
	const query = `
		mutation RecordPerformance($input: RecordPerformanceInput!) {
			recordPerformance(input: $input) { ` + performanceFields + ` }
		}
	`

	var result struct {
		RecordPerformance models.PerformanceRecord `json:"recordPerformance"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": input}, &result); err != nil {
		return nil, fmt.Errorf("create performance: %w", err)
	}
	return &result.RecordPerformance, nil
}

// ListPerformance returns every performance record of the owner.
func (c *Client) ListPerformance(ctx context.Context, ownerID string) ([]models.PerformanceRecord, error) {
	if err := c.checkOwner(ownerID); err != nil {
		return nil, err
	}
	const query = `
		query Performance {
			performance { ` + performanceFields + ` }
		}
	`

	var result struct {
		Performance []models.PerformanceRecord `json:"performance"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}
	return result.Performance, nil
}

// =============================================================================
// SERVER STATS
// =============================================================================

// ServerStats returns the server's runtime metrics.
func (c *Client) ServerStats(ctx context.Context) (*metrics.Snapshot, error) {
	const query = `
		query ServerStats {
			serverStats {
				uptimeSeconds
				gateway { ...op }
				dbQuery { ...op }
				storageWrite { ...op }
				backends { model stats { ...op } }
			}
		}
		fragment op on OperationStats {
			count errors totalTimeMs avgTimeMs minTimeMs maxTimeMs
		}
	`

	var result struct {
		ServerStats struct {
			UptimeSeconds float64                    `json:"uptimeSeconds"`
			Gateway       *metrics.OperationSnapshot `json:"gateway"`
			DBQuery       *metrics.OperationSnapshot `json:"dbQuery"`
			StorageWrite  *metrics.OperationSnapshot `json:"storageWrite"`
			Backends      []struct {
				Model string                     `json:"model"`
				Stats *metrics.OperationSnapshot `json:"stats"`
			} `json:"backends"`
		} `json:"serverStats"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, fmt.Errorf("server stats: %w", err)
	}

	stats := result.ServerStats
	snap := &metrics.Snapshot{
		UptimeSeconds: stats.UptimeSeconds,
		Gateway:       stats.Gateway,
		DBQuery:       stats.DBQuery,
		StorageWrite:  stats.StorageWrite,
	}
	if len(stats.Backends) > 0 {
		snap.Backends = make(map[string]*metrics.OperationSnapshot, len(stats.Backends))
		for _, b := range stats.Backends {
			snap.Backends[b.Model] = b.Stats
		}
	}
	return snap, nil
}
