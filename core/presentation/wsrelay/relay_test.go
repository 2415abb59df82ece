package wsrelay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	controller "github.com/koscakluka/ema-discuss/core"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func newTestRelay(t *testing.T, opts ...Option) (*Relay, *httptest.Server) {
	t.Helper()

	relay := NewRelay(opts...)
	server := httptest.NewServer(relay)
	t.Cleanup(func() {
		_ = relay.Close()
		server.Close()
	})
	return relay, server
}

func awaitClients(t *testing.T, relay *Relay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return relay.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestRelayBroadcastsInstructions(t *testing.T) {
	relay, server := newTestRelay(t)
	first := dial(t, server, nil)
	second := dial(t, server, nil)
	awaitClients(t, relay, 2)

	relay.AppendMessageShell(0, dialog.ProviderAnthropic, "")
	relay.AppendToken("Hi")
	relay.FinalizeMessage(controller.FormatContent("Hi <there>\n\nBye"))
	relay.TurnProgress(1, 6)
	relay.StatusNotice(controller.StatusFinished, "Dialog finished after 1 turns")

	for _, conn := range []*websocket.Conn{first, second} {
		shell := readFrame(t, conn)
		assert.Equal(t, FrameMessageShell, shell.Type)
		require.NotNil(t, shell.TurnIndex)
		assert.Equal(t, 0, *shell.TurnIndex)
		assert.Equal(t, "anthropic", shell.Provider)
		assert.Equal(t, "Claude", shell.RoleLabel)

		assert.Equal(t, Frame{Type: FrameToken, Token: "Hi"}, withoutTimestamp(readFrame(t, conn)))
		assert.Equal(t, "<p>Hi &lt;there&gt;</p><p>Bye</p>", readFrame(t, conn).HTML)

		progress := readFrame(t, conn)
		assert.Equal(t, 1, progress.Turn)
		assert.Equal(t, 6, progress.MaxTurns)

		status := readFrame(t, conn)
		assert.Equal(t, FrameStatus, status.Type)
		assert.Equal(t, "finished", status.Kind)
	}
}

func TestRelayReplaysBacklogToLateClients(t *testing.T) {
	relay, server := newTestRelay(t, WithBacklog(2))

	relay.AppendToken("one")
	relay.AppendToken("two")
	relay.AppendToken("three")

	conn := dial(t, server, nil)
	assert.Equal(t, "two", readFrame(t, conn).Token)
	assert.Equal(t, "three", readFrame(t, conn).Token)

	awaitClients(t, relay, 1)
	relay.ModeratorMessage(controller.FormatContent("Focus."))
	moderator := readFrame(t, conn)
	assert.Equal(t, FrameModerator, moderator.Type)
	assert.Equal(t, "<p>Focus.</p>", moderator.HTML)
}

func TestRelayRejectsForeignOrigins(t *testing.T) {
	_, server := newTestRelay(t, WithAllowedOrigins("http://allowed.example"))

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, server, http.Header{"Origin": {"http://allowed.example"}})
	assert.NotNil(t, conn)
}

func TestRelayForgetsDisconnectedClients(t *testing.T) {
	relay, server := newTestRelay(t)
	conn := dial(t, server, nil)
	awaitClients(t, relay, 1)

	require.NoError(t, conn.Close())
	awaitClients(t, relay, 0)

	relay.AppendToken("nobody listens")
}

func TestRelayCloseDisconnectsClients(t *testing.T) {
	relay, server := newTestRelay(t)
	conn := dial(t, server, nil)
	awaitClients(t, relay, 1)

	require.NoError(t, relay.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, relay.Clients())
}

func withoutTimestamp(frame Frame) Frame {
	frame.Timestamp = time.Time{}
	return frame
}
