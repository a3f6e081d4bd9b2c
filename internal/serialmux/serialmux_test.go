package serialmux

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This satisfies tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestSendCommand_AppendsNewline(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("THR 75"))
	require.NoError(t, mux.SendCommand("STR 5.35\n"))
	assert.Equal(t, "THR 75\nSTR 5.35\n", port.Written())
	assert.Equal(t, uint64(2), mux.Stats().CommandsSent)
}

func TestSendCommand_RejectsInvalid(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)

	assert.ErrorIs(t, mux.SendCommand("THR fast"), ErrInvalidCommand)
	assert.ErrorIs(t, mux.SendCommand("STR 53.5\nRST"), ErrInvalidCommand)
	assert.Empty(t, port.Written())
	assert.Equal(t, LinkStats{CommandsRejected: 2}, mux.Stats())
}

func TestSendCommand_WriteError(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	port.FailNextWrite(errors.New("device gone"))
	mux := NewSerialMux(port)

	assert.EqualError(t, mux.SendCommand("RST"), "device gone")
	assert.Equal(t, uint64(1), mux.Stats().WriteErrors)
	require.NoError(t, mux.SendCommand("RST"))
}

type shortWriter struct{ *FakePort }

func (s shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestSendCommand_ShortWrite(t *testing.T) {
	t.Parallel()

	mux := NewSerialMux(shortWriter{NewFakePort()})
	assert.ErrorIs(t, mux.SendCommand("RST"), ErrWriteFailed)
}

func TestInitialize_SendsInitCommands(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	require.NoError(t, NewSerialMux(port).Initialize())
	assert.Equal(t, "RST\nECHO 1\n", port.Written())

	failing := NewFakePort()
	failing.FailNextWrite(errors.New("boom"))
	err := NewSerialMux(failing).Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"RST"`)
}

func TestMonitor_FansOutLines(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()
	assert.NotEmpty(t, id1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.Feed("OK THR 75\n")

	for _, ch := range []chan string{ch1, ch2} {
		select {
		case line := <-ch:
			assert.Equal(t, "OK THR 75", line)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for line")
		}
	}

	mux.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop on cancel")
	}
	assert.Equal(t, uint64(1), mux.Stats().LinesRead)
	require.NoError(t, mux.Close())
}

func TestMonitor_DropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	port.Feed(strings.Repeat("OK RST\n", subscriberBuffer+5))
	port.EndInput()
	require.NoError(t, mux.Monitor(context.Background()))

	assert.Len(t, ch, subscriberBuffer)
	stats := mux.Stats()
	assert.Equal(t, uint64(subscriberBuffer+5), stats.LinesRead)
	assert.Equal(t, uint64(5), stats.LinesDropped)
}

func TestMonitor_EOFEndsCleanly(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	port.Feed("OK RST\n")
	port.EndInput()

	assert.NoError(t, NewSerialMux(port).Monitor(context.Background()))
}

func TestClose_ClosesSubscribersAndPort(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, open := <-ch
	assert.False(t, open)
	assert.True(t, port.Closed())

	_, late := mux.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestMockSerialMux_AcknowledgesCommands(t *testing.T) {
	t.Parallel()

	mux := NewMockSerialMux()
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	require.NoError(t, mux.SendCommand("STR 5.35"))
	select {
	case line := <-ch:
		assert.Equal(t, "OK STR 5.35", line)
	case <-time.After(2 * time.Second):
		t.Fatal("no acknowledgement from mock board")
	}
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name           string
		method         string
		command        string
		expectedStatus int
		wantBody       string
	}{
		{"valid POST", http.MethodPost, "THR 66", http.StatusOK, `"THR 66"`},
		{"empty command", http.MethodPost, "", http.StatusBadRequest, "Missing command"},
		{"whitespace command", http.MethodPost, "   ", http.StatusBadRequest, "Missing command"},
		{"unknown command", http.MethodPost, "FWD 10", http.StatusBadRequest, "unknown command"},
		{"GET not allowed", http.MethodGet, "THR 66", http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"command": {tt.command}}
			req := localHostRequest(tt.method, "/debug/send-command-api", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
	assert.Equal(t, "THR 66\n", port.Written())
}

func TestAttachAdminRoutes_ConsoleAndScript(t *testing.T) {
	t.Parallel()

	httpMux := http.NewServeMux()
	NewSerialMux(NewFakePort()).AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Actuator board")
	assert.Contains(t, rec.Body.String(), "PWM &lt;frequency hz&gt; &lt;range&gt;")

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/tail.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "EventSource")
}

func TestAttachAdminRoutes_LinkStats(t *testing.T) {
	t.Parallel()

	mux := NewSerialMux(NewFakePort())
	require.NoError(t, mux.SendCommand("RST"))
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/link-stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sent 1\n")
}

func TestAttachAdminRoutes_TailStreamsLines(t *testing.T) {
	t.Parallel()

	port := NewFakePort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	reqCtx, reqCancel := context.WithCancel(context.Background())
	req := localHostRequest(http.MethodGet, "/debug/tail", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	served := make(chan struct{})
	go func() {
		httpMux.ServeHTTP(rec, req)
		close(served)
	}()

	// Wait for the handler to subscribe before emitting the line.
	require.Eventually(t, func() bool {
		return mux.subs.count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	port.Feed("ERR overcurrent\n")
	time.Sleep(50 * time.Millisecond)
	reqCancel()
	<-served

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "data: ERR overcurrent")
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	d := NewDisabled()
	var _ Board = d

	id, ch := d.Subscribe()
	assert.NoError(t, d.Initialize())
	assert.NoError(t, d.SendCommand("THR 75"))
	assert.ErrorIs(t, d.SendCommand("THR"), ErrInvalidCommand)
	assert.Equal(t, LinkStats{CommandsSent: 3, CommandsRejected: 1}, d.Stats())

	d.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	_, ch2 := d.Subscribe()
	done := make(chan error, 1)
	go func() { done <- d.Monitor(context.Background()) }()
	require.NoError(t, d.Close())
	_, open = <-ch2
	assert.False(t, open)
	assert.NoError(t, <-done)
	require.NoError(t, d.Close())

	_, late := d.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestOpen_Disabled(t *testing.T) {
	t.Parallel()

	b, err := Open(DisabledPort, PortOptions{})
	require.NoError(t, err)
	assert.IsType(t, &Disabled{}, b)
}
