package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/client"
	"github.com/YKarmar/JobTracker/internal/types"
)

type staticSource struct {
	msgs []types.Message
	err  error
}

func (s staticSource) Name() string { return "static" }
func (s staticSource) Close() error { return nil }

func (s staticSource) Fetch(_ context.Context, q types.Query) iter.Seq2[types.Message, error] {
	return func(yield func(types.Message, error) bool) {
		if s.err != nil {
			yield(types.Message{}, s.err)
			return
		}
		for _, m := range s.msgs {
			if q.Matches(m) && !yield(m, nil) {
				return
			}
		}
	}
}

func TestRoundTripThroughClient(t *testing.T) {
	date := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	src := staticSource{msgs: []types.Message{
		{ID: "a", From: "jobs@acme.example", Subject: "Your interview", Date: date, BodyText: "interview on Monday"},
		{ID: "b", Subject: "Weekly deals", BodyText: "sale"},
		{ID: "c", Subject: "Offer letter", BodyHTML: "<p>offer</p>"},
	}}
	srv := httptest.NewServer(NewMCPServer(src, "secret", zerolog.Nop()).Handler())
	defer srv.Close()

	c := client.NewMCPEmailClient(client.MCPEmailConfig{MCPEndpoint: srv.URL + "/mcp", APIKey: "secret"},
		client.RetryPolicy{Logger: zerolog.Nop()}, zerolog.Nop())
	msgs, err := client.Collect(c.Fetch(context.Background(), types.Query{Keywords: []string{"interview", "offer"}}))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "a" || !msgs[0].Date.Equal(date) || msgs[0].From != "jobs@acme.example" {
		t.Errorf("first = %+v", msgs[0])
	}
	if msgs[1].BodyHTML != "<p>offer</p>" || !msgs[1].Date.IsZero() {
		t.Errorf("second = %+v", msgs[1])
	}
}

func TestRejectsBadAPIKey(t *testing.T) {
	srv := httptest.NewServer(NewMCPServer(staticSource{}, "secret", zerolog.Nop()).Handler())
	defer srv.Close()

	c := client.NewMCPEmailClient(client.MCPEmailConfig{MCPEndpoint: srv.URL + "/mcp", APIKey: "wrong"},
		client.RetryPolicy{Logger: zerolog.Nop()}, zerolog.Nop())
	_, err := client.Collect(c.Fetch(context.Background(), types.Query{}))
	var ae *types.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestSourceAuthErrorMapsToUnauthorized(t *testing.T) {
	src := staticSource{err: &types.AuthError{Op: "imap login", Err: errors.New("bad password")}}
	srv := httptest.NewServer(NewMCPServer(src, "", zerolog.Nop()).Handler())
	defer srv.Close()

	c := client.NewMCPEmailClient(client.MCPEmailConfig{MCPEndpoint: srv.URL + "/mcp"},
		client.RetryPolicy{Logger: zerolog.Nop()}, zerolog.Nop())
	_, err := client.Collect(c.Fetch(context.Background(), types.Query{}))
	var ae *types.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func rpc(t *testing.T, url string, body string) client.MCPResponse {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out client.MCPResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestProtocolErrors(t *testing.T) {
	srv := httptest.NewServer(NewMCPServer(staticSource{}, "", zerolog.Nop()).Handler())
	defer srv.Close()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", "{not json", client.CodeParseError},
		{"unknown method", `{"jsonrpc":"2.0","id":"1","method":"email.login"}`, client.CodeMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":"2","method":"email.fetch","params":{"max_emails":"many"}}`, client.CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpc(t, srv.URL+"/mcp", tt.body)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.code)
			}
		})
	}

	ok := rpc(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":"3","method":"email.fetch"}`)
	if ok.Error != nil || string(ok.Result) != "[]" || ok.ID != "3" {
		t.Errorf("empty fetch = %+v result=%s", ok, ok.Result)
	}
}

func TestRejectsGet(t *testing.T) {
	srv := httptest.NewServer(NewMCPServer(staticSource{}, "", zerolog.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/mcp")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func startIMAPServer(t *testing.T, messages int) string {
	t.Helper()
	s := server.New(memory.New())
	s.AllowInsecureAuth = true
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(l)
	t.Cleanup(func() { s.Close() })

	c, err := imapclient.Dial(l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Logout()
	if err := c.Login("username", "password"); err != nil {
		t.Fatal(err)
	}
	for i := range messages {
		raw := fmt.Sprintf("From: Acme Careers <jobs@acme.example>\r\n"+
			"Subject: Interview invitation %d\r\n"+
			"Date: Fri, 15 Mar 2024 10:00:00 +0000\r\n"+
			"Message-Id: <interview-%d@acme.example>\r\n"+
			"Content-Type: text/plain\r\n"+
			"\r\n"+
			"We would like to schedule an interview.\r\n", i, i)
		if err := c.Append("INBOX", nil, time.Now(), bytes.NewBufferString(raw)); err != nil {
			t.Fatal(err)
		}
	}
	return l.Addr().String()
}

func TestConcurrentFetchesShareIMAPConnection(t *testing.T) {
	const messages, callers = 20, 8
	addr := startIMAPServer(t, messages)

	src, err := client.DialIMAP(context.Background(), client.IMAPOptions{
		Addr:     addr,
		Username: "username",
		Password: "password",
		Folders:  []string{"INBOX"},
	}, client.RetryPolicy{Logger: zerolog.Nop()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("DialIMAP: %v", err)
	}
	defer src.Close()

	srv := httptest.NewServer(NewMCPServer(src, "", zerolog.Nop()).Handler())
	defer srv.Close()
	c := client.NewMCPEmailClient(client.MCPEmailConfig{MCPEndpoint: srv.URL + "/mcp"},
		client.RetryPolicy{Logger: zerolog.Nop()}, zerolog.Nop())

	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := client.Collect(c.Fetch(context.Background(), types.Query{Keywords: []string{"interview"}}))
			if err != nil {
				t.Errorf("Fetch: %v", err)
				return
			}
			if len(msgs) != messages {
				t.Errorf("got %d messages, want %d", len(msgs), messages)
			}
		}()
	}
	wg.Wait()
}
