package transport

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytyou/ttbm/internal/common/logcontext"
	"github.com/ytyou/ttbm/internal/common/logging"
	"github.com/ytyou/ttbm/internal/ttbm/configuration"
)

func TestConn_SendDeliversEverything(t *testing.T) {
	listener, received := startSink(t)

	conn := Dial(testContext(), targetOf(t, listener), Options{ConnectTimeout: time.Second})
	require.True(t, conn.Connected())

	lines := []string{
		"metric_0,device=d_0 s_0=1.200000\n",
		"metric_1,device=d_0 s_0=1.200000\n",
	}
	for _, line := range lines {
		result := conn.Send([]byte(line))
		assert.True(t, result.Complete())
		assert.Equal(t, len(line), result.Written)
		assert.NoError(t, result.Err)
	}
	require.NoError(t, conn.Close())

	select {
	case data := <-received:
		assert.Equal(t, lines[0]+lines[1], string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("sink did not receive data")
	}
}

func TestConn_ConnectionFailureIsNotFatal(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target := targetOf(t, listener)
	require.NoError(t, listener.Close())

	conn := Dial(testContext(), target, Options{ConnectTimeout: time.Second})
	assert.False(t, conn.Connected())
	assert.Equal(t, target.String(), conn.Address())

	result := conn.Send([]byte("metric_0,device=d_0 s_0=1.200000\n"))
	assert.False(t, result.Complete())
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 33, result.Dropped)
	assert.True(t, errors.Is(result.Err, ErrNotConnected))

	assert.NoError(t, conn.Close())
}

func TestConn_WriteFailureDropsRemainder(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	dialed := make(chan struct{})
	go func() {
		c, err := listener.Accept()
		if err != nil {
			return
		}
		<-dialed
		if tcp, ok := c.(*net.TCPConn); ok {
			_ = tcp.SetLinger(0)
		}
		_ = c.Close()
	}()

	conn := Dial(testContext(), targetOf(t, listener), Options{ConnectTimeout: time.Second, WriteTimeout: time.Second})
	close(dialed)
	require.True(t, conn.Connected())

	payload := make([]byte, 64*1024)
	var failed SendResult
	require.Eventually(t, func() bool {
		failed = conn.Send(payload)
		return !failed.Complete()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Error(t, failed.Err)
	assert.False(t, isTimeout(failed.Err))
	assert.Equal(t, len(payload), failed.Written+failed.Dropped)
	assert.False(t, conn.Connected(), "a failed write closes the connection")

	next := conn.Send([]byte("x\n"))
	assert.Equal(t, 2, next.Dropped)
	assert.True(t, errors.Is(next.Err, ErrNotConnected))
}

func TestConn_WriteTimeoutKeepsConnection(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	drain := make(chan struct{})
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(drain) }) }
	defer release()
	go func() {
		c, err := listener.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		<-drain
		_, _ = io.Copy(io.Discard, c)
	}()

	conn := Dial(testContext(), targetOf(t, listener), Options{ConnectTimeout: time.Second, WriteTimeout: 50 * time.Millisecond})
	require.True(t, conn.Connected())
	defer conn.Close()

	payload := make([]byte, 1024*1024)
	var stalled SendResult
	require.Eventually(t, func() bool {
		stalled = conn.Send(payload)
		return !stalled.Complete()
	}, 10*time.Second, 10*time.Millisecond)

	assert.True(t, isTimeout(stalled.Err))
	assert.Equal(t, len(payload), stalled.Written+stalled.Dropped)
	assert.True(t, conn.Connected(), "a timed out write leaves the connection open")

	release()
	line := []byte("metric_0,device=d_0 s_0=1.200000\n")
	require.Eventually(t, func() bool {
		return conn.Send(line).Complete()
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, conn.Connected())
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	listener, _ := startSink(t)

	conn := Dial(testContext(), targetOf(t, listener), Options{})
	require.True(t, conn.Connected())
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.False(t, conn.Connected())
}

// startSink accepts a single connection and publishes everything read from it once the peer closes.
func startSink(t *testing.T) (net.Listener, <-chan []byte) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	received := make(chan []byte, 1)
	go func() {
		c, err := listener.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		data, _ := io.ReadAll(c)
		received <- data
	}()
	return listener, received
}

func targetOf(t *testing.T, listener net.Listener) configuration.Target {
	t.Helper()
	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return configuration.Target{Host: host, Port: uint16(p)}
}

func testContext() *logcontext.Context {
	return logcontext.New(context.Background(), logging.NullEntry())
}
