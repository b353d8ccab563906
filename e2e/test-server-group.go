package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// apiMessage is one MIME upload received by a fakeMailAPI.
type apiMessage struct {
	created time.Time
	id      string
	to      []string
	user    string
	key     string
	body    string
}

// fakeMailAPI simulates the Mailgun messages API closely enough for the
// mailgun transport: it accepts MIME uploads for one domain and keeps them
// in memory. Create one with startFakeMailAPI.
//
// Implements smtptest.Server so tests can treat it like the SMTP server.
type fakeMailAPI struct {
	domain string
	server *httptest.Server

	mu       sync.Mutex
	messages []apiMessage
}

// ServeHTTP implements http.Handler.
func (fa *fakeMailAPI) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost || !strings.HasSuffix(req.URL.Path, "/"+fa.domain+"/messages.mime") {
		http.Error(rw, "not found", http.StatusNotFound)
		return
	}

	user, key, ok := req.BasicAuth()
	if !ok || user != "api" || key == "" {
		http.Error(rw, "Forbidden", http.StatusUnauthorized)
		return
	}

	// doubtful we'll get an upload this big, but we need a limit
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		http.Error(rw, fmt.Sprintf("can't parse the form: %v", err), http.StatusBadRequest)
		return
	}

	files := req.MultipartForm.File["message"]
	if len(files) != 1 {
		http.Error(rw, "need exactly one message", http.StatusBadRequest)
		return
	}
	f, err := files[0].Open()
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	m := apiMessage{
		created: time.Now(),
		id:      fmt.Sprintf("<%v@%v>", uuid.NewString(), fa.domain),
		to:      req.MultipartForm.Value["to"],
		user:    user,
		key:     key,
		body:    string(b),
	}
	fa.mu.Lock()
	fa.messages = append(fa.messages, m)
	fa.mu.Unlock()

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{
		"id":      m.id,
		"message": "Queued. Thank you.",
	})
}

// startFakeMailAPI spins up an in-process HTTP server accepting messages
// for domain.
//
// Note that callers are responsible for closing the server!
func startFakeMailAPI(domain string) *fakeMailAPI {
	fa := &fakeMailAPI{domain: domain}
	fa.server = httptest.NewServer(fa)
	return fa
}

// Start implements smtptest.Server. The server is already running.
func (fa *fakeMailAPI) Start() error { return nil }

// Close gracefully shuts down the server.
func (fa *fakeMailAPI) Close() {
	fa.server.Close()
}

// RetrieveEmails implements smtptest.Server.
func (fa *fakeMailAPI) RetrieveEmails(t int64) ([]string, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	r := make([]string, 0, len(fa.messages))
	for _, m := range fa.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m.body)
		}
	}
	return r, nil
}

// received returns every upload so far.
func (fa *fakeMailAPI) received() []apiMessage {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return append([]apiMessage(nil), fa.messages...)
}

// Address implements smtptest.Server. It returns the API base URL.
func (fa *fakeMailAPI) Address() string {
	return fa.server.URL + "/v3"
}
