package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ctserver/pkg/commands"
	"github.com/arzzra/ctserver/pkg/engine"
	"github.com/arzzra/ctserver/pkg/hardware"
	"github.com/arzzra/ctserver/pkg/hardware/sim"
	"github.com/arzzra/ctserver/pkg/protocol"
)

const testPoll = 5 * time.Millisecond

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testClient клиент протокола: команды через \n, ответы до \0
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(lines ...string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := io.WriteString(c.conn, strings.Join(lines, "\n")+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) reply() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	raw, err := c.r.ReadString(0)
	require.NoError(c.t, err)
	require.True(c.t, strings.HasSuffix(raw, "\n\x00"), "ответ %q без завершающих \\n\\0", raw)
	return strings.TrimSuffix(raw, "\n\x00")
}

func (c *testClient) call(lines ...string) string {
	c.t.Helper()
	c.send(lines...)
	return c.reply()
}

type sessionHarness struct {
	client  *testClient
	line    *sim.Line
	metrics *Metrics
	cancel  context.CancelFunc
	done    chan error
}

func startSession(t *testing.T, maxLineLength int) *sessionHarness {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	cfg := sim.DefaultConfig()
	cfg.PlayDuration = 50 * time.Millisecond
	line := sim.New(0, cfg)
	waiter := engine.NewWaiter(line, engine.WithPollInterval(testPoll), engine.WithLogger(discardLogger))

	metrics := NewMetrics()
	cmdCfg := commands.DefaultConfig()
	cmdCfg.RingGracePeriod = 200 * time.Millisecond
	s := NewSession(serverConn, waiter, SessionConfig{
		MaxLineLength: maxLineLength,
		Commands:      cmdCfg,
		Metrics:       metrics,
		Logger:        discardLogger,
	})
	require.NotEmpty(t, s.ID())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	return &sessionHarness{
		client:  newTestClient(t, clientConn),
		line:    line,
		metrics: metrics,
		cancel:  cancel,
		done:    done,
	}
}

func (h *sessionHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("сессия не завершилась")
		return nil
	}
}

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

// eventuallyCounter ждет значение счетчика: метрика команды
// записывается после отправки ответа
func eventuallyCounter(t *testing.T, m *Metrics, name string, labels map[string]string, want float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return counterValue(t, m, name, labels) == want
	}, 5*time.Second, time.Millisecond, "%s%v != %v", name, labels, want)
}

func TestSession_DirectCommands(t *testing.T) {
	h := startSession(t, 0)

	assert.Equal(t, protocol.ReplyOK, h.client.call("answer"))
	assert.Equal(t, hardware.OffHook, h.line.Hook())

	assert.Equal(t, protocol.ReplyOK, h.client.call("CTHANGUP\r"))
	assert.Equal(t, hardware.OnHook, h.line.Hook())

	h.line.Press("12")
	assert.Equal(t, protocol.ReplyOK, h.client.call("ctclear"))
	assert.Empty(t, h.line.BufferedDigits())

	eventuallyCounter(t, h.metrics, "ctserver_commands_total",
		map[string]string{"verb": "answer", "result": ResultOK}, 1)
}

func TestSession_UnknownVerb(t *testing.T) {
	h := startSession(t, 0)

	assert.Equal(t, protocol.ReplyError, h.client.call("reboot"))
	// сессия продолжается
	assert.Equal(t, protocol.ReplyOK, h.client.call("clear"))

	assert.Equal(t, float64(1), counterValue(t, h.metrics, "ctserver_commands_total",
		map[string]string{"verb": "unknown", "result": ResultUnknown}))
}

func TestSession_EmptyLinesIgnored(t *testing.T) {
	h := startSession(t, 0)

	h.client.send("", "\r", "clear")
	assert.Equal(t, protocol.ReplyOK, h.client.reply())
}

func TestSession_CommandWithParams(t *testing.T) {
	h := startSession(t, 0)

	h.line.InjectAfter(20*time.Millisecond, hardware.Event{Kind: hardware.EventDTMF, Data: '4'})
	assert.Equal(t, "4", h.client.call("sleep", "10"))

	assert.Equal(t, protocol.ReplyError, h.client.call("sleep", "x"))
	eventuallyCounter(t, h.metrics, "ctserver_commands_total",
		map[string]string{"verb": "sleep", "result": ResultError}, 1)
}

func TestSession_ClientDisconnect(t *testing.T) {
	h := startSession(t, 0)
	assert.Equal(t, protocol.ReplyOK, h.client.call("clear"))

	require.NoError(t, h.client.conn.Close())
	assert.NoError(t, h.wait(t))
}

func TestSession_DisconnectDuringParams(t *testing.T) {
	h := startSession(t, 0)
	h.client.send("play")

	require.NoError(t, h.client.conn.Close())
	assert.NoError(t, h.wait(t))
}

func TestSession_LineTooLong(t *testing.T) {
	h := startSession(t, 16)

	go func() {
		_, _ = io.WriteString(h.client.conn, strings.Repeat("x", 64)+"\n")
	}()

	err := h.wait(t)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrorCodeSessionReadFailed))
	assert.ErrorIs(t, err, protocol.ErrLineTooLong)
}

func TestSession_ShutdownDuringWaitForRing(t *testing.T) {
	h := startSession(t, 0)
	h.client.send("waitforring")

	// команда уже выполняется, когда приходит завершение
	time.Sleep(50 * time.Millisecond)
	h.cancel()

	assert.Equal(t, protocol.ReplyShutdown, h.client.reply())
	assert.ErrorIs(t, h.wait(t), engine.ErrAborted)
}

func TestSession_WaitForRingCallerID(t *testing.T) {
	h := startSession(t, 0)
	h.line.SetCallerID("5551234")
	h.client.send("ctwaitforring")

	h.line.Ring()
	h.line.InjectAfter(50*time.Millisecond, hardware.Event{Kind: hardware.EventRing})
	assert.Equal(t, "5551234", h.client.reply())
}
