package rpcserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/rpcserver"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

type stubSubmitter struct {
	receipts map[string]workflow.Receipt
	err      error
}

func (s *stubSubmitter) Submit(ctx context.Context, wf workflow.Workflow) (map[string]workflow.Receipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.receipts, nil
}

func dialURL(t *testing.T, srvURL, token string) string {
	t.Helper()
	u, err := url.Parse(srvURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func TestServerRejectsMissingToken(t *testing.T) {
	ks, err := rpcserver.NewKeySet()
	require.NoError(t, err)
	bus := events.NewBus()
	srv := rpcserver.New(rpcserver.Config{KeySet: ks}, bus, &stubSubmitter{})

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerRejectsWithoutKeySet(t *testing.T) {
	bus := events.NewBus()
	srv := rpcserver.New(rpcserver.Config{}, bus, &stubSubmitter{})

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	resp, err := http.Get(dialURLAsHTTP(ts.URL, "anything"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func dialURLAsHTTP(base, token string) string {
	return base + "?token=" + token
}

func TestServerRelaysBusEvents(t *testing.T) {
	ks, err := rpcserver.NewKeySet()
	require.NoError(t, err)
	token, err := ks.Sign("client-1")
	require.NoError(t, err)

	bus := events.NewBus()
	srv := rpcserver.New(rpcserver.Config{KeySet: ks}, bus, &stubSubmitter{})

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(t, ts.URL, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription before
	// publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.Event{Type: events.WorkflowCompleted, Data: "wf-1", Timestamp: 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Notification
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, events.WorkflowCompleted, got.Type)
}

func TestServerRejectsInvalidToken(t *testing.T) {
	ks, err := rpcserver.NewKeySet()
	require.NoError(t, err)
	bus := events.NewBus()
	srv := rpcserver.New(rpcserver.Config{KeySet: ks}, bus, &stubSubmitter{})

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	resp, err := http.Get(dialURLAsHTTP(ts.URL, "not-a-jwt"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWorkflowRunDispatchesToSubmitter(t *testing.T) {
	ks, err := rpcserver.NewKeySet()
	require.NoError(t, err)
	token, err := ks.Sign("client-2")
	require.NoError(t, err)

	receipt := workflow.Receipt{Issuer: "did:key:z6Mk..."}
	bus := events.NewBus()
	srv := rpcserver.New(rpcserver.Config{KeySet: ks}, bus, &stubSubmitter{
		receipts: map[string]workflow.Receipt{"abc": receipt},
	})

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(t, ts.URL, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	wf := workflow.NewWorkflow(nil)
	reqBody := `{"id":"1","method":"workflow/run","params":{"workflow":` + mustJSON(t, wf) + `}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(reqBody)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `"result"`))
}

func mustJSON(t *testing.T, wf workflow.Workflow) string {
	t.Helper()
	b, err := wf.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}
