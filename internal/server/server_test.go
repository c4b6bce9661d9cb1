package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"devserver/internal/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Stream.Heartbeat = 100 * time.Millisecond
	return cfg
}

func testDeps() *Dependency {
	return &Dependency{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := Listen(context.Background(), cfg, testDeps())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestListen_EphemeralPorts(t *testing.T) {
	a := startServer(t, testConfig())
	b := startServer(t, testConfig())

	assert.NotZero(t, a.Port())
	assert.NotZero(t, b.Port())
	assert.NotEqual(t, a.Port(), b.Port())
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(a.Port()), a.URL())

	resp, err := http.Get(a.URL() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListen_ConfigReportsResolvedPort(t *testing.T) {
	srv := startServer(t, testConfig())

	resp, err := http.Get(srv.URL() + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"port":`+strconv.Itoa(srv.Port()))
}

func TestListen_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	_, err = Listen(context.Background(), cfg, testDeps())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBind))
}

func TestServer_Stop(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		srv, err := Listen(context.Background(), testConfig(), testDeps())
		require.NoError(t, err)

		assert.NoError(t, srv.Stop())
		assert.NoError(t, srv.Stop())
		assert.NoError(t, srv.Wait())
	})

	t.Run("RefusesConnectionsAfterStop", func(t *testing.T) {
		srv, err := Listen(context.Background(), testConfig(), testDeps())
		require.NoError(t, err)
		addr := net.JoinHostPort(srv.Hostname(), strconv.Itoa(srv.Port()))

		require.NoError(t, srv.Stop())

		_, err = net.DialTimeout("tcp", addr, time.Second)
		assert.Error(t, err)
	})

	t.Run("EndsOpenStreams", func(t *testing.T) {
		srv, err := Listen(context.Background(), testConfig(), testDeps())
		require.NoError(t, err)

		sess, err := srv.Service().CreateSession(context.Background(), nil)
		require.NoError(t, err)

		resp, err := http.Get(srv.URL() + "/event?session=" + sess.ID)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		ended := make(chan struct{})
		go func() {
			defer close(ended)
			io.Copy(io.Discard, resp.Body)
		}()

		start := time.Now()
		require.NoError(t, srv.Stop())
		assert.Less(t, time.Since(start), 2*time.Second)

		select {
		case <-ended:
		case <-time.After(2 * time.Second):
			t.Fatal("stream still open after Stop")
		}
	})
}

func TestServer_Run(t *testing.T) {
	srv, err := Listen(context.Background(), testConfig(), testDeps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	resp, err := http.Post(srv.URL()+"/session", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_SessionRetention(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Retention = time.Millisecond
	cfg.Session.CleanupInterval = 20 * time.Millisecond
	srv := startServer(t, cfg)

	svc := srv.Service()
	sess, err := svc.CreateSession(context.Background(), nil)
	require.NoError(t, err)
	_, err = svc.CloseSession(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := svc.GetSession(context.Background(), sess.ID)
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_StopWaitsForWebSocketStreams(t *testing.T) {
	srv, err := Listen(context.Background(), testConfig(), testDeps())
	require.NoError(t, err)

	sess, err := srv.Service().CreateSession(context.Background(), nil)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL(), "http") + "/event/ws?session=" + sess.ID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	start := time.Now()
	require.NoError(t, srv.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
