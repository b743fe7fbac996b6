// Package fetchtest provides an in-memory fetch.Fetcher for tests.
package fetchtest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/wpinspect/wpinspect/internal/fetch"
)

// ErrUnreachable is returned for URLs with no registered route.
var ErrUnreachable = errors.New("fetchtest: unreachable")

// Route is a canned response for one URL.
type Route struct {
	Status int
	Body   string
	Header http.Header
	// NoLength suppresses the Content-Length header on HEAD responses.
	NoLength bool
	Err      error
}

// Fake serves registered routes and records every call.
type Fake struct {
	mu     sync.Mutex
	routes map[string]Route
	calls  []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{routes: make(map[string]Route)}
}

// Handle registers a 200 response with the given body.
func (f *Fake) Handle(url, body string) *Fake {
	return f.HandleRoute(url, Route{Status: http.StatusOK, Body: body})
}

// HandleRoute registers a full route.
func (f *Fake) HandleRoute(url string, r Route) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Status == 0 && r.Err == nil {
		r.Status = http.StatusOK
	}
	f.routes[url] = r
	return f
}

// Fetch implements fetch.Fetcher.
func (f *Fake) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	return f.serve(ctx, "GET", url)
}

// Head implements fetch.Fetcher.
func (f *Fake) Head(ctx context.Context, url string) (*fetch.Response, error) {
	return f.serve(ctx, "HEAD", url)
}

func (f *Fake) serve(ctx context.Context, method, url string) (*fetch.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+url)
	route, ok := f.routes[url]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnreachable
	}
	if route.Err != nil {
		return nil, route.Err
	}

	header := http.Header{}
	for k, v := range route.Header {
		header[k] = append([]string(nil), v...)
	}
	resp := &fetch.Response{URL: url, StatusCode: route.Status, Header: header}
	if method == "HEAD" {
		if !route.NoLength {
			header.Set("Content-Length", strconv.Itoa(len(route.Body)))
		}
		return resp, nil
	}
	resp.Body = []byte(route.Body)
	return resp, nil
}

// Calls returns every recorded "METHOD url" call in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times url was requested with any method.
func (f *Fake) Count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == "GET "+url || c == "HEAD "+url {
			n++
		}
	}
	return n
}
