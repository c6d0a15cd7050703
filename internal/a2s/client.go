// Package a2s implements the client side of the Source engine A2S_INFO query:
// request framing, the optional challenge round trip, multi-packet reassembly
// and parsing of the info response.
//
// A Client holds configuration only. Every Query opens its own UDP socket and
// fragment buffer, so a single Client may be used from many goroutines.
package a2s

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Defaults applied to zero Client fields.
const (
	DefaultTimeout    = 3 * time.Second
	DefaultBufferSize = 1400
)

// Client queries game servers for A2S_INFO.
type Client struct {
	// Observer, when set, receives pipeline events for diagnostics.
	Observer Observer

	// Timeout bounds every single receive wait, not the whole query.
	Timeout time.Duration

	// BufferSize is the receive buffer size; longer datagrams are truncated by the kernel.
	BufferSize uint16
}

// New returns a Client with the given per-receive timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		Timeout:    timeout,
		BufferSize: DefaultBufferSize,
	}
}

// Query is a shortcut for New(timeout).Query.
func Query(ctx context.Context, host string, port int, timeout time.Duration) (*Info, error) {
	return New(timeout).Query(ctx, host, port)
}

// Query sends A2S_INFO to host:port and returns the parsed response.
// Failures are *QueryError values wrapping one of the Err* kinds; nothing is retried
// except the single challenge round trip required by the protocol.
func (c *Client) Query(ctx context.Context, host string, port int) (info *Info, err error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	defer func() {
		var qe *QueryError
		if errors.As(err, &qe) && qe.Addr == "" {
			qe.Addr = addr
		}
		c.emit(Event{Kind: EventDone, Addr: addr, Err: err})
	}()

	if port < 0 || port > 65535 {
		return nil, newError(OpDial, ErrNetwork, fmt.Errorf("port %d out of range", port))
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(OpDial, err, nil)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newError(OpDial, ctxErr, err)
		}
		return nil, newError(OpDial, ErrNetwork, err)
	}
	defer func() { _ = conn.Close() }()

	// Wake a blocked read as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	s := &session{
		ctx:     ctx,
		conn:    conn,
		client:  c,
		addr:    addr,
		timeout: c.timeout(),
		buf:     make([]byte, c.bufferSize()),
	}

	payload, err := s.exchange()
	if err != nil {
		return nil, err
	}

	return parseInfo(payload)
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}

	return c.Timeout
}

func (c *Client) bufferSize() int {
	if c.BufferSize < multiHeaderSize {
		return DefaultBufferSize
	}

	return int(c.BufferSize)
}

func (c *Client) emit(ev Event) {
	if c.Observer != nil {
		c.Observer(ev)
	}
}

// session is the state of one Query call.
type session struct {
	ctx     context.Context
	conn    net.Conn
	client  *Client
	addr    string
	buf     []byte
	timeout time.Duration
}

// exchange runs the request, the optional challenge round trip and reassembly,
// returning a buffer that starts with the info response header.
func (s *session) exchange() ([]byte, error) {
	if err := s.send(OpSend, infoRequest(nil)); err != nil {
		return nil, err
	}

	data, err := s.receive(OpReceive, ErrTimeout)
	if err != nil {
		return nil, err
	}
	tag, err := responseTag(OpReceive, data)
	if err != nil {
		return nil, err
	}

	if tag == TagChallenge {
		token := data[headerSize:]
		if len(token) < challengeSize {
			return nil, newError(OpChallenge, ErrMalformedResponse,
				fmt.Errorf("challenge token of %d bytes", len(token)))
		}
		s.emit(Event{Kind: EventChallenge, Size: len(token)})

		// infoRequest copies the token out of the receive buffer.
		if err := s.send(OpChallenge, infoRequest(token)); err != nil {
			return nil, err
		}

		data, err = s.receive(OpChallenge, ErrTimeout)
		if err != nil {
			return nil, err
		}
		tag, err = responseTag(OpChallenge, data)
		if err != nil {
			return nil, err
		}
		if tag == TagChallenge {
			return nil, newError(OpChallenge, ErrUnexpectedResponse, fmt.Errorf("repeated challenge"))
		}
	}

	switch tag {
	case TagInfo:
		return data, nil
	case TagMultiPacket:
		return s.reassemble(data)
	default:
		return nil, newError(OpReceive, ErrUnexpectedResponse, fmt.Errorf("response tag 0x%02X", tag))
	}
}

// reassemble collects the fragments of a multi-packet response, first being the datagram already received.
func (s *session) reassemble(first []byte) ([]byte, error) {
	f, err := parseFragment(first)
	if err != nil {
		return nil, err
	}

	frags := newFragmentBuffer(f)
	s.emit(Event{Kind: EventFragment, Index: int(f.index), Total: int(f.total), Size: len(f.payload)})

	// Fragments of another group do not extend the wait.
	wait := time.Now().Add(s.timeout)
	for !frags.complete() {
		data, err := s.receiveUntil(OpReassemble, ErrIncompleteFragments, wait)
		if err != nil {
			var qe *QueryError
			if errors.As(err, &qe) && qe.Kind == ErrIncompleteFragments {
				qe.Err = fmt.Errorf("received %d of %d fragments: %w", len(frags.parts), frags.total, qe.Err)
			}
			return nil, err
		}

		tag, err := responseTag(OpReassemble, data)
		if err != nil {
			return nil, err
		}
		if tag != TagMultiPacket {
			return nil, newError(OpReassemble, ErrUnexpectedResponse,
				fmt.Errorf("tag 0x%02X while reassembling", tag))
		}

		f, err := parseFragment(data)
		if err != nil {
			return nil, err
		}

		ok, err := frags.add(f)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.emit(Event{Kind: EventStaleFragment, Index: int(f.index), Total: int(f.total), Size: len(f.payload)})
			continue
		}
		wait = time.Now().Add(s.timeout)
		s.emit(Event{Kind: EventFragment, Index: int(f.index), Total: int(f.total), Size: len(f.payload)})
	}

	return frags.assemble(), nil
}

func (s *session) send(op string, datagram []byte) error {
	if _, err := s.conn.Write(datagram); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return newError(op, ctxErr, err)
		}
		return newError(op, ErrNetwork, err)
	}
	s.emit(Event{Kind: EventSend, Size: len(datagram)})

	return nil
}

// receive waits for one datagram. An expired wait is reported as timeoutKind.
// The returned slice is only valid until the next receive.
func (s *session) receive(op string, timeoutKind error) ([]byte, error) {
	return s.receiveUntil(op, timeoutKind, time.Now().Add(s.timeout))
}

// receiveUntil reads one datagram, waiting no later than deadline or the context deadline.
func (s *session) receiveUntil(op string, timeoutKind error, deadline time.Time) ([]byte, error) {
	ctxBound := false
	if d, ok := s.ctx.Deadline(); ok && d.Before(deadline) {
		deadline, ctxBound = d, true
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, newError(op, ErrNetwork, err)
	}

	// Checked after the deadline is set: a cancellation racing with it has either
	// already set Err or will reset the deadline through AfterFunc.
	if err := s.ctx.Err(); err != nil {
		return nil, newError(op, err, nil)
	}

	n, err := s.conn.Read(s.buf)
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, newError(op, ctxErr, err)
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if ctxBound {
				return nil, newError(op, context.DeadlineExceeded, err)
			}
			return nil, newError(op, timeoutKind, err)
		}

		return nil, newError(op, ErrNetwork, err)
	}
	s.emit(Event{Kind: EventReceive, Size: n})

	return s.buf[:n], nil
}

func (s *session) emit(ev Event) {
	ev.Addr = s.addr
	s.client.emit(ev)
}
