// Package queryserver implements the minimal HTTP front-end spec §4.6
// describes: a GET that serves a search form and a POST that renders
// ranked results, built directly on net.Listener/http.ReadRequest rather
// than net/http's multiplexing server, so each connection can be served
// to completion and closed before the next is accepted — the single
// concurrency model the spec requires (§4.6's closing paragraph).
package queryserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/codepr/gosearch/internal/queryengine"
	"github.com/codepr/gosearch/internal/store"
)

const searchForm = `<!DOCTYPE html>
<html>
<head><title>Search</title></head>
<body>
<form method="POST">
<input type="text" name="query">
<button type="submit">Search</button>
</form>
</body>
</html>
`

// Server accepts one connection at a time on a TCP listener and answers
// it fully before accepting the next, matching the reference searcher's
// accept/read/write/shutdown loop.
type Server struct {
	logger *log.Logger
	engine *queryengine.Engine
}

// New builds a Server over engine.
func New(engine *queryengine.Engine) *Server {
	return &Server{
		logger: log.New(os.Stderr, "queryserver: ", log.LstdFlags),
		engine: engine,
	}
}

// ListenAndServe binds port and serves connections until ctx is canceled
// or the listener errors. Each connection is accepted, handled to
// completion, and closed before the next Accept call — there is no
// per-connection goroutine, by design.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Printf("accept: %v", err)
			continue
		}
		s.handle(ctx, conn)
	}
}

// handle reads exactly one HTTP request off conn, writes exactly one
// response, and closes the connection — the "single-connection-at-a-time"
// shape spec §4.6 asks for.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		if err != io.EOF {
			s.logger.Printf("read request: %v", err)
		}
		return
	}
	defer req.Body.Close()

	resp := s.route(ctx, req)
	resp.Close = true
	if err := resp.Write(conn); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *Server) route(ctx context.Context, req *http.Request) *http.Response {
	switch req.Method {
	case http.MethodGet:
		return htmlResponse(http.StatusOK, searchForm)
	case http.MethodPost:
		return s.handlePost(ctx, req)
	default:
		return htmlResponse(http.StatusBadRequest, "<p>Bad request</p>")
	}
}

// handlePost decodes application/x-www-form-urlencoded body, extracts
// query, runs it through the QueryEngine, and renders results. A
// StoreUnavailable error becomes 503; any other engine error becomes 500
// (spec §7).
func (s *Server) handlePost(ctx context.Context, req *http.Request) *http.Response {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return htmlResponse(http.StatusInternalServerError, "<p>Internal error</p>")
	}
	query := parseQuery(string(body))

	results, err := s.engine.Query(ctx, query)
	if err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			return htmlResponse(http.StatusServiceUnavailable, "<p>Search is temporarily unavailable.</p>")
		}
		s.logger.Printf("query %q: %v", query, err)
		return htmlResponse(http.StatusInternalServerError, "<p>Internal error</p>")
	}

	page := "<!DOCTYPE html><html><head><title>Results</title></head><body>" +
		renderResults(results) + "</body></html>"
	return htmlResponse(http.StatusOK, page)
}

// parseQuery extracts the "query" field from an
// application/x-www-form-urlencoded body, decoding "+" as space and
// "%HH" escapes the way url.ParseQuery does — a thin wrapper kept
// separate from net/url's richer API because the reference only ever
// needs this one field.
func parseQuery(body string) string {
	values, err := url.ParseQuery(body)
	if err != nil {
		return ""
	}
	return values.Get("query")
}

// renderResults builds the <ul> result listing, or a "no results"
// message for an empty set, matching the reference searcher's
// generate_results shape.
func renderResults(results []store.Posting) string {
	if len(results) == 0 {
		return "<p>No results found.</p>"
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, r := range results {
		escaped := html.EscapeString(r.URL)
		fmt.Fprintf(&b, `<li><a href="%s">%s</a> (relevance: %d)</li>`, escaped, escaped, r.Score)
	}
	b.WriteString("</ul>")
	return b.String()
}

func htmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/html"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
