package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/types"
)

// JSON-RPC 2.0 envelope spoken by the mail bridge.
type MCPRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

const (
	MethodFetch = "email.fetch"

	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
	CodeUnauthorized   = -32001
)

// FetchParams are the email.fetch parameters. Zero dates are unbounded.
type FetchParams struct {
	StartDate time.Time `json:"start_date,omitzero"`
	EndDate   time.Time `json:"end_date,omitzero"`
	MaxEmails int       `json:"max_emails"`
	Keywords  []string  `json:"keywords,omitempty"`
}

// Query converts the parameters back into a fetch query.
func (p FetchParams) Query() types.Query {
	return types.Query{Keywords: p.Keywords, Since: p.StartDate, Until: p.EndDate, MaxMessages: p.MaxEmails}
}

// WireEmail is one message in an email.fetch result.
type WireEmail struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date,omitzero"`
	BodyText string    `json:"body_text"`
	BodyHTML string    `json:"body_html,omitempty"`
	Folder   string    `json:"folder,omitempty"`
}

// ToWire converts a message for an email.fetch result.
func ToWire(m types.Message) WireEmail {
	return WireEmail{ID: m.ID, From: m.From, Subject: m.Subject, Date: m.Date, BodyText: m.BodyText, BodyHTML: m.BodyHTML, Folder: m.Folder}
}

// Message converts w back into a message.
func (w WireEmail) Message() types.Message {
	return types.Message{ID: w.ID, From: w.From, Subject: w.Subject, Date: w.Date, BodyText: w.BodyText, BodyHTML: w.BodyHTML, Folder: w.Folder}
}

// MCPEmailConfig locates the bridge.
type MCPEmailConfig struct {
	MCPEndpoint string
	APIKey      string
}

// MCPEmailClient fetches messages from a remote mail bridge.
type MCPEmailClient struct {
	config     MCPEmailConfig
	httpClient *http.Client
	policy     RetryPolicy
	logger     zerolog.Logger
}

// NewMCPEmailClient talks to the bridge at config.MCPEndpoint.
func NewMCPEmailClient(config MCPEmailConfig, policy RetryPolicy, logger zerolog.Logger) *MCPEmailClient {
	return &MCPEmailClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		policy: policy,
		logger: logger,
	}
}

// Name implements Source.
func (c *MCPEmailClient) Name() string { return "mcp" }

// Close implements Source.
func (c *MCPEmailClient) Close() error { return nil }

// Fetch performs one email.fetch call and yields its result.
func (c *MCPEmailClient) Fetch(ctx context.Context, q types.Query) iter.Seq2[types.Message, error] {
	return func(yield func(types.Message, error) bool) {
		var emails []WireEmail
		err := c.policy.Do(ctx, MethodFetch, func() error {
			var err error
			emails, err = c.FetchEmails(ctx, FetchParams{
				StartDate: q.Since,
				EndDate:   q.Until,
				MaxEmails: q.MaxMessages,
				Keywords:  q.Keywords,
			})
			return err
		})
		if err != nil {
			yield(types.Message{}, classifyMCPError(err))
			return
		}
		c.logger.Debug().Int("emails", len(emails)).Msg("bridge returned messages")

		for i, e := range emails {
			if q.MaxMessages > 0 && i >= q.MaxMessages {
				return
			}
			if !yield(e.Message(), nil) {
				return
			}
		}
	}
}

// FetchEmails sends a single email.fetch request.
func (c *MCPEmailClient) FetchEmails(ctx context.Context, params FetchParams) ([]WireEmail, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal fetch params: %w", err)
	}
	mcpReq := MCPRequest{
		Jsonrpc: "2.0",
		ID:      "fetch_" + uuid.NewString(),
		Method:  MethodFetch,
		Params:  raw,
	}

	reqBody, err := json.Marshal(mcpReq)
	if err != nil {
		return nil, fmt.Errorf("marshal MCP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.MCPEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var mcpResp MCPResponse
	if err := json.NewDecoder(resp.Body).Decode(&mcpResp); err != nil {
		return nil, fmt.Errorf("decode MCP response: %w", err)
	}
	if mcpResp.Error != nil {
		return nil, mcpResp.Error
	}

	var emails []WireEmail
	if err := json.Unmarshal(mcpResp.Result, &emails); err != nil {
		return nil, fmt.Errorf("unmarshal emails: %w", err)
	}
	return emails, nil
}

func classifyMCPError(err error) error {
	var herr *HTTPStatusError
	if errors.As(err, &herr) && (herr.StatusCode == http.StatusUnauthorized || herr.StatusCode == http.StatusForbidden) {
		return &types.AuthError{Op: MethodFetch, Err: err}
	}
	var merr *MCPError
	if errors.As(err, &merr) && merr.Code == CodeUnauthorized {
		return &types.AuthError{Op: MethodFetch, Err: err}
	}
	return &types.FetchError{Op: MethodFetch, Err: err}
}
