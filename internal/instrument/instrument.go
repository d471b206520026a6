// Package instrument talks to bench instruments over a line-oriented TCP
// link (the raw-socket port most SCPI instruments expose), with retry on
// timeouts and an in-process resonator simulator for running without
// hardware.
//
// Command sets are not modelled here: commands are plain strings, usually
// built from templates in the configuration.
package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	// DefaultPort is the usual raw-socket port.
	DefaultPort    = "5025"
	DefaultTimeout = 5 * time.Second
)

var (
	ErrClosed         = errors.New("instrument: connection closed")
	ErrUnknownCommand = errors.New("instrument: unknown command")
	ErrEmptyReply     = errors.New("instrument: empty reply")
	ErrMalformedReply = errors.New("instrument: malformed reply")
)

// Conn is an open link to an instrument.
type Conn interface {
	// Write sends a command that has no reply.
	Write(ctx context.Context, cmd string) error
	// Query sends a command and returns its reply without the terminator.
	Query(ctx context.Context, cmd string) (string, error)
	Close() error
}

// Options tune a TCP connection. Zero values take the defaults.
type Options struct {
	// Timeout bounds every Write and Query.
	Timeout time.Duration
	// Terminator ends each command and reply, "\n" by default.
	Terminator string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Terminator == "" {
		o.Terminator = "\n"
	}
	return o
}

type tcpConn struct {
	mu     sync.Mutex
	addr   string
	conn   net.Conn
	r      *bufio.Reader
	opts   Options
	closed bool
	// stale is set when an exchange failed part way. A late reply may still
	// be in flight, so the socket is replaced before the next exchange.
	stale bool
}

// Dial connects to addr ("host" or "host:port").
func Dial(ctx context.Context, addr string, opts Options) (Conn, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	opts = opts.withDefaults()

	c, err := dial(ctx, addr, opts.Timeout)
	if err != nil {
		return nil, err
	}

	return &tcpConn{addr: addr, conn: c, r: bufio.NewReader(c), opts: opts}, nil
}

func dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	c, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("instrument: dial %s: %w", addr, err)
	}
	return c, nil
}

// ready opens a fresh socket when the previous exchange left the link in an
// unknown state.
func (c *tcpConn) ready(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if !c.stale {
		return nil
	}

	_ = c.conn.Close()
	nc, err := dial(ctx, c.addr, c.opts.Timeout)
	if err != nil {
		return err
	}
	c.conn = nc
	c.r.Reset(nc)
	c.stale = false

	return nil
}

// arm sets the deadline for one exchange and makes ctx cancellation
// interrupt blocked I/O. The returned func must be called when done.
func (c *tcpConn) arm(ctx context.Context) func() bool {
	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)

	conn := c.conn
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
}

func (c *tcpConn) send(cmd string) error {
	_, err := c.conn.Write([]byte(cmd + c.opts.Terminator))
	return err
}

func (c *tcpConn) Write(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(ctx); err != nil {
		return err
	}

	stop := c.arm(ctx)
	defer stop()

	if err := c.send(cmd); err != nil {
		c.stale = true
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("instrument: write %q: %w", cmd, err)
	}
	return nil
}

func (c *tcpConn) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(ctx); err != nil {
		return "", err
	}

	stop := c.arm(ctx)
	defer stop()

	if err := c.send(cmd); err != nil {
		c.stale = true
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("instrument: query %q: %w", cmd, err)
	}

	term := c.opts.Terminator[len(c.opts.Terminator)-1]
	line, err := c.r.ReadString(term)
	if err != nil {
		c.stale = true
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("instrument: query %q: %w", cmd, err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (c *tcpConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// IsTimeout reports whether err is an I/O timeout worth retrying. Context
// cancellation and deadline errors are not.
func IsTimeout(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Identity is the parsed reply to *IDN?.
type Identity struct {
	Maker    string
	Model    string
	Serial   string
	Firmware string
}

func (id Identity) String() string {
	return strings.Join([]string{id.Maker, id.Model, id.Serial, id.Firmware}, ",")
}

// Identify asks the instrument who it is.
func Identify(ctx context.Context, conn Conn) (Identity, error) {
	reply, err := conn.Query(ctx, "*IDN?")
	if err != nil {
		return Identity{}, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Identity{}, ErrEmptyReply
	}

	fields := strings.Split(reply, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	for len(fields) < 4 {
		fields = append(fields, "")
	}

	return Identity{Maker: fields[0], Model: fields[1], Serial: fields[2], Firmware: fields[3]}, nil
}

// QueryFloat sends cmd and parses a single number.
func QueryFloat(ctx context.Context, conn Conn, cmd string) (float64, error) {
	vals, err := QueryFloats(ctx, conn, cmd)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("%w: %q gave %d values", ErrMalformedReply, cmd, len(vals))
	}
	return vals[0], nil
}

// QueryFloats sends cmd and parses a comma or space separated list.
func QueryFloats(ctx context.Context, conn Conn, cmd string) ([]float64, error) {
	reply, err := conn.Query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return ParseFloats(reply)
}

// ParseFloats splits a reply on commas and whitespace.
func ParseFloats(reply string) ([]float64, error) {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, ErrEmptyReply
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedReply, f)
		}
		vals[i] = v
	}
	return vals, nil
}
