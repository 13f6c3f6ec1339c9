// Package testutil provides testing utilities for the user link enricher.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockLinkResponse defines the behavior for one user's link response.
type MockLinkResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockLinkService is a configurable mock of the remote link service.
// It serves GET /users/{id}/link.
type MockLinkService struct {
	server    *httptest.Server
	mu        sync.RWMutex
	responses map[int64]MockLinkResponse
	fallback  *MockLinkResponse

	// Tracking
	requestCount  int
	requestsByID  map[int64]int
	inFlight      int
	peakInFlight  int
	lastUserAgent string
}

// NewMockLinkService creates a new mock link service.
func NewMockLinkService() *MockLinkService {
	mock := &MockLinkService{
		responses:    make(map[int64]MockLinkResponse),
		requestsByID: make(map[int64]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the mock server URL.
func (m *MockLinkService) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockLinkService) Close() {
	m.server.Close()
}

// SetLink makes the service answer 200 with link for id.
func (m *MockLinkService) SetLink(id int64, link string) {
	m.SetResponse(id, MockLinkResponse{StatusCode: http.StatusOK, Body: link})
}

// SetResponse configures the response for id.
func (m *MockLinkService) SetResponse(id int64, resp MockLinkResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[id] = resp
}

// SetFallback configures the response for ids without an explicit one.
// Without a fallback unknown ids get 404.
func (m *MockLinkService) SetFallback(resp MockLinkResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &resp
}

// RequestCount returns the number of requests made to the server.
func (m *MockLinkService) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestsFor returns the number of requests made for id.
func (m *MockLinkService) RequestsFor(id int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsByID[id]
}

// PeakInFlight returns the highest number of concurrently served requests.
func (m *MockLinkService) PeakInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakInFlight
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockLinkService) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

func (m *MockLinkService) handle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseLinkPath(r.URL.Path)
	if !ok || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.requestsByID[id]++
	m.lastUserAgent = r.UserAgent()
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
	resp, exists := m.responses[id]
	if !exists && m.fallback != nil {
		resp, exists = *m.fallback, true
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if !exists {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// parseLinkPath extracts id from /users/{id}/link.
func parseLinkPath(path string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "users" || parts[2] != "link" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// NewLinkResponse creates a standard 200 OK response carrying link.
func NewLinkResponse(link string) MockLinkResponse {
	return MockLinkResponse{StatusCode: http.StatusOK, Body: link}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockLinkResponse {
	return MockLinkResponse{StatusCode: http.StatusInternalServerError, Body: "internal error"}
}

// NewSlowResponse creates a 200 OK response delivered after delay.
func NewSlowResponse(link string, delay time.Duration) MockLinkResponse {
	return MockLinkResponse{StatusCode: http.StatusOK, Body: link, Delay: delay}
}
