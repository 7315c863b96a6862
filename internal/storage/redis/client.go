// Package redis is a minimal RESP client covering the three commands the
// quota counters need: INCR, GET and EXPIRE. It speaks RESP2 over a small
// channel-backed connection pool.
package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

type Client struct {
	addr     string
	password string
	db       int

	pool chan net.Conn
	mu   sync.Mutex
}

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	c := &Client{
		addr:     cfg.Addr,
		password: cfg.Password,
		db:       cfg.DB,
		pool:     make(chan net.Conn, cfg.PoolSize),
	}

	// Validate connectivity.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		select {
		case conn := <-c.pool:
			_ = conn.Close()
		default:
			return nil
		}
	}
}

func (c *Client) Ping(ctx context.Context) error {
	rep, err := c.do(ctx, "PING")
	if err != nil {
		return err
	}
	if rep.typ != replySimpleString || rep.str != "PONG" {
		return fmt.Errorf("unexpected PING response: %s", rep.String())
	}
	return nil
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	rep, err := c.do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	if rep.typ != replyInteger {
		return 0, fmt.Errorf("unexpected INCR response: %s", rep.String())
	}
	return rep.num, nil
}

// Get reads an integer counter. A missing key counts as zero, which is what
// an empty quota bucket means.
func (c *Client) Get(ctx context.Context, key string) (int64, error) {
	rep, err := c.do(ctx, "GET", key)
	if err != nil {
		return 0, err
	}
	if rep.typ != replyBulkString {
		return 0, fmt.Errorf("unexpected GET response: %s", rep.String())
	}
	if rep.isNil {
		return 0, nil
	}
	n, err := strconv.ParseInt(rep.str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: non-integer value at %s: %w", key, err)
	}
	return n, nil
}

func (c *Client) ExpireSeconds(ctx context.Context, key string, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	rep, err := c.do(ctx, "EXPIRE", key, strconv.FormatInt(ttlSeconds, 10))
	if err != nil {
		return err
	}
	if rep.typ != replyInteger {
		return fmt.Errorf("unexpected EXPIRE response: %s", rep.String())
	}
	// 1 means TTL set, 0 means key does not exist. Either way, not fatal for quota counting.
	return nil
}

func (c *Client) getConn(ctx context.Context) (net.Conn, *bufio.ReadWriter, func(error), error) {
	select {
	case conn := <-c.pool:
		rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
		return conn, rw, c.releaseFn(conn), nil
	default:
		// Pool empty; dial a fresh connection.
		d := net.Dialer{Timeout: 1 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return nil, nil, nil, err
		}

		rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
		if err := c.initConn(ctx, conn, rw); err != nil {
			_ = conn.Close()
			return nil, nil, nil, err
		}

		return conn, rw, c.releaseFn(conn), nil
	}
}

// releaseFn returns the connection to the pool, or closes it after a
// protocol or transport error since the stream may be desynced.
func (c *Client) releaseFn(conn net.Conn) func(error) {
	return func(err error) {
		if err != nil {
			_ = conn.Close()
			return
		}
		select {
		case c.pool <- conn:
		default:
			_ = conn.Close()
		}
	}
}

func (c *Client) initConn(ctx context.Context, conn net.Conn, rw *bufio.ReadWriter) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	}

	if c.password != "" {
		if err := c.roundTrip(rw, "AUTH", c.password); err != nil {
			return err
		}
	}

	if c.db != 0 {
		if err := c.roundTrip(rw, "SELECT", strconv.Itoa(c.db)); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) roundTrip(rw *bufio.ReadWriter, args ...string) error {
	if err := writeCommand(rw.Writer, args...); err != nil {
		return err
	}
	if err := rw.Flush(); err != nil {
		return err
	}
	rep, err := readReply(rw.Reader)
	if err != nil {
		return err
	}
	if rep.typ == replyError {
		return rep.err
	}
	return nil
}

func (c *Client) do(ctx context.Context, args ...string) (reply, error) {
	if len(args) == 0 {
		return reply{}, errors.New("redis: empty command")
	}

	conn, rw, release, err := c.getConn(ctx)
	if err != nil {
		return reply{}, err
	}

	var opErr error
	defer func() { release(opErr) }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	}

	if err := writeCommand(rw.Writer, args...); err != nil {
		opErr = err
		return reply{}, err
	}
	if err := rw.Flush(); err != nil {
		opErr = err
		return reply{}, err
	}

	r, err := readReply(rw.Reader)
	if err != nil {
		opErr = err
		return reply{}, err
	}
	if r.typ == replyError {
		opErr = r.err
		return reply{}, r.err
	}

	return r, nil
}

func writeCommand(w *bufio.Writer, args ...string) error {
	if _, err := fmt.Fprintf(w, "*%d\r\n", len(args)); err != nil {
		return err
	}
	for _, arg := range args {
		if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(arg), arg); err != nil {
			return err
		}
	}
	return nil
}

type replyType byte

const (
	replySimpleString replyType = '+'
	replyError        replyType = '-'
	replyInteger      replyType = ':'
	replyBulkString   replyType = '$'
)

type reply struct {
	typ   replyType
	str   string
	num   int64
	isNil bool
	err   error
}

func (r reply) String() string {
	switch r.typ {
	case replySimpleString:
		return "+" + r.str
	case replyInteger:
		return ":" + strconv.FormatInt(r.num, 10)
	case replyBulkString:
		if r.isNil {
			return "$-1"
		}
		return "$" + r.str
	case replyError:
		if r.err != nil {
			return "-" + r.err.Error()
		}
		return "-ERR"
	default:
		return "?"
	}
}

func readLine(rd *bufio.Reader) (string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	// line includes \n; should end with \r\n
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", errors.New("redis: invalid line ending")
	}
	return line[:len(line)-2], nil
}

func readReply(rd *bufio.Reader) (reply, error) {
	b, err := rd.ReadByte()
	if err != nil {
		return reply{}, err
	}

	switch replyType(b) {
	case replySimpleString:
		s, err := readLine(rd)
		if err != nil {
			return reply{}, err
		}
		return reply{typ: replySimpleString, str: s}, nil
	case replyError:
		s, err := readLine(rd)
		if err != nil {
			return reply{}, err
		}
		return reply{typ: replyError, err: errors.New(s)}, nil
	case replyInteger:
		s, err := readLine(rd)
		if err != nil {
			return reply{}, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return reply{}, err
		}
		return reply{typ: replyInteger, num: n}, nil
	case replyBulkString:
		s, err := readLine(rd)
		if err != nil {
			return reply{}, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return reply{}, err
		}
		if n == -1 {
			return reply{typ: replyBulkString, isNil: true}, nil
		}
		buf := make([]byte, n+2) // includes \r\n
		if _, err := io.ReadFull(rd, buf); err != nil {
			return reply{}, err
		}
		if len(buf) < 2 || buf[len(buf)-2] != '\r' || buf[len(buf)-1] != '\n' {
			return reply{}, errors.New("redis: invalid bulk string ending")
		}
		return reply{typ: replyBulkString, str: string(buf[:len(buf)-2])}, nil
	default:
		return reply{}, fmt.Errorf("redis: unsupported reply type %q", b)
	}
}
