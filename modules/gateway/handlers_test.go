package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
	"github.com/example/pubsub-relay-demo/modules/broadcast"
)

// stubBroker records broker calls made by the gateway.
type stubBroker struct {
	mu        sync.Mutex
	delivered []string
}

func (s *stubBroker) Register(_ context.Context, sessionID string) (*relay.Session, []relay.Message) {
	return &relay.Session{ID: sessionID, Room: relay.DefaultRoom}, []relay.Message{}
}

func (s *stubBroker) Unregister(_ context.Context, _ string) {}

func (s *stubBroker) Submit(_ context.Context, _, _ string) error { return nil }

func (s *stubBroker) SignIn(_ context.Context, sessionID, user, room string) (*relay.Session, []relay.Message, bool) {
	return &relay.Session{ID: sessionID, Room: room, User: user}, []relay.Message{}, true
}

func (s *stubBroker) DeliverExternal(_ context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, name)
}

func (s *stubBroker) deliveries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

func newTestModule(t *testing.T) (*Module, *stubBroker) {
	t.Helper()
	stub := &stubBroker{}
	m := NewModule("8080", "http://localhost:3000", stub)
	m.SetHub(broadcast.NewHub())
	m.buildApp()
	return m, stub
}

func postJSON(t *testing.T, m *Module, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestRootEndpoint(t *testing.T) {
	m, _ := newTestModule(t)

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	resp, err := m.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "WebSocket and Pub/Sub App", string(body))
}

func TestPubSubPush_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "missing message field", body: `{"nomessage":"invalid"}`},
		{name: "null message", body: `{"message":null}`},
		{name: "false message", body: `{"message":false}`},
		{name: "zero message", body: `{"message":0}`},
		{name: "decimal zero message", body: `{"message":0.0}`},
		{name: "negative zero message", body: `{"message":-0}`},
		{name: "exponent zero message", body: `{"message":0e0}`},
		{name: "empty string message", body: `{"message":""}`},
		{name: "not json", body: `{message: true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, stub := newTestModule(t)

			resp := postJSON(t, m, tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, "Bad Request: Invalid Pub/Sub message format", string(body))
			assert.Empty(t, stub.deliveries(), "rejected request must not broadcast")
		})
	}
}

func TestPubSubPush_Base64Data(t *testing.T) {
	m, stub := newTestModule(t)

	data := base64.StdEncoding.EncodeToString([]byte("Ada"))
	resp := postJSON(t, m, fmt.Sprintf(`{"message":{"data":%q}}`, data))

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
	require.Len(t, stub.deliveries(), 1)
	assert.Equal(t, "Ada", stub.deliveries()[0])
}

func TestPubSubPush_DataIsTrimmed(t *testing.T) {
	m, stub := newTestModule(t)

	data := base64.StdEncoding.EncodeToString([]byte("  Ada \n"))
	resp := postJSON(t, m, fmt.Sprintf(`{"message":{"data":%q}}`, data))

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, stub.deliveries(), 1)
	assert.Equal(t, "Ada", stub.deliveries()[0])
}

func TestPubSubPush_BareMarker(t *testing.T) {
	m, stub := newTestModule(t)

	resp := postJSON(t, m, `{"message":true}`)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, stub.deliveries(), 1)
	assert.Equal(t, "", stub.deliveries()[0], "bare marker falls back to the default name")
}

func TestPubSubPush_MessageWithoutData(t *testing.T) {
	m, stub := newTestModule(t)

	resp := postJSON(t, m, `{"message":{"attributes":{"k":"v"}}}`)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, stub.deliveries(), 1)
	assert.Equal(t, "", stub.deliveries()[0])
}

func TestValidEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "absent", raw: "", want: false},
		{name: "null", raw: "null", want: false},
		{name: "false", raw: "false", want: false},
		{name: "zero", raw: "0", want: false},
		{name: "decimal zero", raw: "0.0", want: false},
		{name: "negative zero", raw: "-0", want: false},
		{name: "exponent zero", raw: "0e0", want: false},
		{name: "empty string", raw: `""`, want: false},
		{name: "true marker", raw: "true", want: true},
		{name: "nonzero number", raw: "0.5", want: true},
		{name: "object", raw: `{"data":"aGk="}`, want: true},
		{name: "non-empty string", raw: `"hi"`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validEnvelope(json.RawMessage(tt.raw)))
		})
	}
}

func TestDecodePushData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "valid base64", raw: fmt.Sprintf(`{"data":%q}`, base64.StdEncoding.EncodeToString([]byte("World Cup"))), want: "World Cup"},
		{name: "no data field", raw: `{"attributes":{}}`, want: ""},
		{name: "bare true", raw: "true", want: ""},
		{name: "invalid base64", raw: `{"data":"not base64!!"}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodePushData(json.RawMessage(tt.raw)))
		})
	}
}

func TestCORSUsesConfiguredOrigin(t *testing.T) {
	stub := &stubBroker{}
	m := NewModule("8080", "http://example.test", stub)
	m.SetHub(broadcast.NewHub())
	m.buildApp()

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	resp, err := m.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, "http://example.test", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthEndpoint(t *testing.T) {
	m, _ := newTestModule(t)

	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	resp, err := m.app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
}
