package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytyou/ttbm/internal/common/logcontext"
	"github.com/ytyou/ttbm/internal/ttbm/configuration"
)

// ErrNotConnected is reported for sends on a connection that was never established or has broken.
var ErrNotConnected = errors.New("not connected")

type Options struct {
	// Maximum time to wait for the connection to be established; 0 uses the OS default
	ConnectTimeout time.Duration
	// Maximum time a single send may block; 0 blocks indefinitely
	WriteTimeout time.Duration
}

// SendResult describes how much of a buffer reached the socket.
type SendResult struct {
	Written int
	Dropped int
	Err     error
}

// Complete reports whether every byte was handed to the socket.
func (r SendResult) Complete() bool {
	return r.Dropped == 0
}

// Conn is a best-effort TCP connection to the target database. Failures never abort the caller: a connection
// that could not be established, or whose write failed, silently drops everything sent to it and reports the
// drop in the SendResult. A Conn must only be used by one goroutine.
type Conn struct {
	address      string
	conn         net.Conn
	writeTimeout time.Duration
	log          *logrus.Entry
}

// Dial makes a single attempt to connect to target. On failure the error is logged and a disconnected Conn is
// returned.
func Dial(ctx *logcontext.Context, target configuration.Target, opts Options) *Conn {
	c := &Conn{
		address:      target.String(),
		writeTimeout: opts.WriteTimeout,
		log:          ctx.Log,
	}
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		c.log.WithError(err).Errorf("Failed to connect to %s", c.address)
		return c
	}
	c.conn = conn
	c.log.Debugf("Connected to %s", c.address)
	return c
}

// Connected reports whether the connection is usable.
func (c *Conn) Connected() bool {
	return c.conn != nil
}

func (c *Conn) Address() string {
	return c.address
}

// Send writes b, issuing further writes after partial ones until everything is written or a write fails. On
// failure the remainder of b is dropped. A write that only hit the write deadline leaves the connection open;
// any other failure closes it, so later sends are dropped immediately.
func (c *Conn) Send(b []byte) SendResult {
	if c.conn == nil {
		return SendResult{Dropped: len(b), Err: ErrNotConnected}
	}
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return c.fail(0, len(b), err)
		}
	}

	written := 0
	for written < len(b) {
		n, err := c.conn.Write(b[written:])
		written += n
		if err != nil {
			return c.fail(written, len(b)-written, err)
		}
		if n == 0 {
			return c.fail(written, len(b)-written, errors.New("write made no progress"))
		}
	}
	return SendResult{Written: written}
}

func (c *Conn) fail(written, dropped int, err error) SendResult {
	if isTimeout(err) {
		c.log.WithError(err).Warnf("Write to %s timed out, dropping %d bytes", c.address, dropped)
	} else {
		c.log.WithError(err).Warnf("Write to %s failed, dropping this and all further data", c.address)
		_ = c.Close()
	}
	return SendResult{Written: written, Dropped: dropped, Err: errors.WithStack(err)}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
