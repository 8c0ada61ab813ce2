// Package bridge serves a local mail source over JSON-RPC so that a
// tracker configured with the mcp provider can fetch through it.
package bridge

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/client"
	"github.com/YKarmar/JobTracker/internal/types"
)

// MCPServer answers email.fetch requests from src. A non-empty apiKey must
// be presented as a bearer token.
type MCPServer struct {
	src    client.Source
	apiKey string
	logger zerolog.Logger
}

// NewMCPServer serves src. An empty apiKey disables authentication.
func NewMCPServer(src client.Source, apiKey string, logger zerolog.Logger) *MCPServer {
	return &MCPServer{src: src, apiKey: apiKey, logger: logger}
}

// Handler routes /mcp to the JSON-RPC endpoint.
func (s *MCPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func (s *MCPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req client.MCPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, req.ID, client.CodeParseError, "Parse error")
		return
	}

	switch req.Method {
	case client.MethodFetch:
		s.handleFetch(w, r, req)
	default:
		s.sendError(w, req.ID, client.CodeMethodNotFound, "Method not found")
	}
}

func (s *MCPServer) authorized(r *http.Request) bool {
	if s.apiKey == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) == 1
}

func (s *MCPServer) handleFetch(w http.ResponseWriter, r *http.Request, req client.MCPRequest) {
	var params client.FetchParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, req.ID, client.CodeInvalidParams, "invalid fetch parameters")
			return
		}
	}

	q := params.Query()
	logger := s.logger.With().Str("id", req.ID).Logger()
	logger.Info().Strs("keywords", q.Keywords).Int("max", q.MaxMessages).Msg("email.fetch")

	emails := []client.WireEmail{}
	for msg, err := range s.src.Fetch(r.Context(), q) {
		if err != nil {
			logger.Error().Err(err).Msg("fetch failed")
			code := client.CodeServerError
			var ae *types.AuthError
			if errors.As(err, &ae) {
				code = client.CodeUnauthorized
			}
			s.sendError(w, req.ID, code, err.Error())
			return
		}
		emails = append(emails, client.ToWire(msg))
	}

	result, err := json.Marshal(emails)
	if err != nil {
		s.sendError(w, req.ID, client.CodeServerError, err.Error())
		return
	}
	logger.Info().Int("emails", len(emails)).Msg("email.fetch done")
	s.send(w, client.MCPResponse{Jsonrpc: "2.0", ID: req.ID, Result: result})
}

func (s *MCPServer) sendError(w http.ResponseWriter, id string, code int, message string) {
	s.send(w, client.MCPResponse{
		Jsonrpc: "2.0",
		ID:      id,
		Error:   &client.MCPError{Code: code, Message: message},
	})
}

func (s *MCPServer) send(w http.ResponseWriter, resp client.MCPResponse) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("write response")
	}
}
