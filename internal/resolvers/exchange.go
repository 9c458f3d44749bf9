package resolvers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Exchange failure modes. The iterative resolver treats all of them the
// same way (the branch is abandoned), but callers and tests can tell them
// apart with errors.Is.
var (
	ErrAddressParse    = errors.New("exchange: bad server address")
	ErrSendFailed      = errors.New("exchange: send failed")
	ErrRecvFailed      = errors.New("exchange: receive failed")
	ErrExchangeTimeout = errors.New("exchange: timed out")
)

// DefaultExchangeTimeout bounds one UDP round trip.
const DefaultExchangeTimeout = 3 * time.Second

// exchangeRecvSize is the receive buffer for one upstream datagram.
const exchangeRecvSize = 4096

// Exchanger performs one DNS transaction: send a query datagram to a
// server, await one response datagram. Implementations must be safe for
// concurrent use; the iterative resolver shares one across all requests.
type Exchanger interface {
	Exchange(ctx context.Context, query []byte, serverAddr string) ([]byte, error)
}

// UDPExchanger exchanges DNS datagrams over a fresh ephemeral UDP socket
// per call. Binding a new socket for every transaction keeps transactions
// independent (distinct source ports) and makes release trivial: the
// socket is closed on every exit path.
type UDPExchanger struct {
	Timeout time.Duration // Per-exchange deadline (default DefaultExchangeTimeout)
}

// Exchange sends query to serverAddr ("host:port") and returns the first
// response datagram. The deadline is the sooner of the configured timeout
// and the context deadline.
func (e *UDPExchanger) Exchange(ctx context.Context, query []byte, serverAddr string) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrAddressParse, serverAddr, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer conn.Close()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	// Abort the read if the caller goes away mid-exchange.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(query); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	buf := make([]byte, exchangeRecvSize)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %s", ErrExchangeTimeout, serverAddr)
		}
		return nil, fmt.Errorf("%w: %v", ErrRecvFailed, err)
	}
	return buf[:n], nil
}
