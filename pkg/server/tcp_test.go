package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runTicks drives OnTick until ctx is done.
func runTicks(ctx context.Context, app *App) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				app.OnTick()
			}
		}
	}()
	return done
}

func startTCP(t *testing.T, cfg Config) (string, *App) {
	t.Helper()
	app := newTestApp(t, cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeTCP(ctx, ln, app, cfg) }()
	ticks := runTicks(ctx, app)
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-served)
		<-ticks
	})
	return ln.Addr().String(), app
}

type telnetClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTelnet(t *testing.T, addr string) *telnetClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &telnetClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *telnetClient) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\r\n")
	require.NoError(c.t, err)
}

func (c *telnetClient) lines(n int) []string {
	c.t.Helper()
	var out []string
	for i := 0; i < n; i++ {
		s, err := c.r.ReadString('\n')
		require.NoError(c.t, err)
		out = append(out, strings.TrimRight(s, "\r\n"))
	}
	return out
}

func TestTCPSession(t *testing.T) {
	addr, app := startTCP(t, testConfig())
	c := dialTelnet(t, addr)

	assert.Equal(t, strings.Split(DefaultConnectText, "\n"), c.lines(2))

	c.send("register harry secret")
	assert.Equal(t, []string{
		"Account created.",
		"Welcome back, harry.",
		"You have no characters to play with. Create one with the 'chargen' command.",
	}, c.lines(3))

	c.send("\xff\xfb\x01xyzzy")
	assert.Equal(t, []string{"Huh? Not recognised: xyzzy"}, c.lines(1))

	c.send("quit")
	assert.Equal(t, []string{"Goodbye!"}, c.lines(1))
	_, err := c.r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return app.Conns().Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestTCPIdleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	addr, app := startTCP(t, cfg)
	c := dialTelnet(t, addr)
	c.lines(2)

	_, err := io.ReadAll(c.r)
	assert.NoError(t, err)
	require.Eventually(t, func() bool { return app.Conns().Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestTCPClientHangup(t *testing.T) {
	addr, app := startTCP(t, testConfig())
	c := dialTelnet(t, addr)
	c.lines(2)
	require.Equal(t, 1, app.Conns().Count())

	c.conn.Close()
	require.Eventually(t, func() bool { return app.Conns().Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStripTelnet(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"look", "look"},
		{"\xff\xfb\x01look", "look"},
		{"lo\x07ok", "look"},
		{"say\thi", "say\thi"},
		{"\xff\xf1", ""},
	}
	for _, tt := range tests {
		if got := stripTelnet(tt.in); got != tt.want {
			t.Errorf("stripTelnet(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTelnetText(t *testing.T) {
	assert.Equal(t, "a\r\nb\r\n", telnetText("a\nb"))
	assert.Equal(t, "a\r\n", telnetText("a\n"))
	assert.Equal(t, "\r\n", telnetText(""))
}
