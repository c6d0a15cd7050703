// Package fake provides a fake A2S game server for tests and local development.
package fake

import (
	"bytes"
	"errors"
	"net"
	"sync"
)

// Handler returns the datagrams sent back for a request.
// n is the 1-based number of the request from the same peer.
type Handler func(request []byte, n int) [][]byte

// Responder is a UDP server answering A2S requests through a Handler.
type Responder struct {
	conn     net.PacketConn
	handler  Handler
	peers    map[string]int
	requests [][]byte
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Listen starts a responder on addr, e.g. "127.0.0.1:0".
func Listen(addr string, h Handler) (*Responder, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}

	r := &Responder{
		conn:    conn,
		handler: h,
		peers:   make(map[string]int),
	}

	r.wg.Add(1)
	go r.serve()

	return r, nil
}

// Addr returns the listening address.
func (r *Responder) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Host returns the listening IP as a string.
func (r *Responder) Host() string {
	return r.Addr().IP.String()
}

// Port returns the listening port.
func (r *Responder) Port() int {
	return r.Addr().Port
}

// Requests returns copies of every datagram received so far.
func (r *Responder) Requests() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.requests))
	for i, req := range r.requests {
		out[i] = bytes.Clone(req)
	}

	return out
}

// Close stops the responder and waits for the serving goroutine.
func (r *Responder) Close() error {
	err := r.conn.Close()
	r.wg.Wait()

	return err
}

func (r *Responder) serve() {
	defer r.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		req := bytes.Clone(buf[:n])

		r.mu.Lock()
		r.requests = append(r.requests, req)
		r.peers[from.String()]++
		count := r.peers[from.String()]
		r.mu.Unlock()

		for _, datagram := range r.handler(req, count) {
			_, _ = r.conn.WriteTo(datagram, from)
		}
	}
}

// Reply answers every request with the same datagrams.
func Reply(datagrams ...[]byte) Handler {
	return func([]byte, int) [][]byte {
		return datagrams
	}
}

// Silent never answers.
func Silent() Handler {
	return func([]byte, int) [][]byte {
		return nil
	}
}

// Challenge answers requests that do not end with token by a challenge,
// and passes the others to next.
func Challenge(token []byte, next Handler) Handler {
	return func(req []byte, n int) [][]byte {
		if !bytes.HasSuffix(req, token) {
			return [][]byte{ChallengePacket(token)}
		}
		return next(req, n)
	}
}

// AlwaysChallenge answers every request by a challenge.
func AlwaysChallenge(token []byte) Handler {
	return Reply(ChallengePacket(token))
}

// Ordered sends the fragments of response split by size in the given index order.
// Indices missing from order are never sent.
func Ordered(response []byte, size int, order ...int) Handler {
	frags := Split(0x5A17, response, size)

	return func([]byte, int) [][]byte {
		if len(order) == 0 {
			return frags
		}

		out := make([][]byte, 0, len(order))
		for _, i := range order {
			out = append(out, frags[i])
		}
		return out
	}
}
