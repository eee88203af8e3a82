package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nikoskalogridis/mpdtouch/internal/nav"
)

// readBufferSize is larger than a command so over-long datagrams are seen
// at their real length instead of being silently truncated to one byte.
const readBufferSize = 64

// receiveErrorBackoff keeps a socket in a persistent error state from
// spinning the loop.
const receiveErrorBackoff = 10 * time.Millisecond

// Listener receives remote commands on a UDP socket and pushes the decoded
// navigation events onto a shared channel.
type Listener struct {
	conn   net.PacketConn
	events chan<- nav.Event
	logger *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Addr joins a bind address and port into a listen address. An empty bind
// address listens on all interfaces.
func Addr(bind string, port int) string {
	return net.JoinHostPort(bind, strconv.Itoa(port))
}

// Listen binds the UDP socket. Events are delivered on events; the send
// blocks until the consumer takes them or the listener stops.
func Listen(ctx context.Context, addr string, events chan<- nav.Event, logger *slog.Logger) (*Listener, error) {
	if events == nil {
		return nil, errors.New("remote listener needs an event channel")
	}
	if logger == nil {
		logger = slog.Default()
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on udp %s: %w", addr, err)
	}

	logger.Info("remote control listening", "addr", conn.LocalAddr().String())
	return &Listener{
		conn:   conn,
		events: events,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// LocalAddr returns the bound address.
func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Run processes datagrams one at a time until Stop is called or ctx is
// canceled. Receive errors and malformed commands are logged and never end
// the loop.
func (l *Listener) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("remote listener already running")
	}
	defer close(l.done)

	// Closing the socket unblocks ReadFrom.
	go func() {
		select {
		case <-ctx.Done():
			l.shutdown()
		case <-l.stop:
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		if l.stopped() {
			return nil
		}

		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if l.stopped() || errors.Is(err, net.ErrClosed) {
				l.logger.Debug("remote listener closed")
				return nil
			}
			l.logger.Error("remote receive failed", "sender", senderString(from), "error", err)
			select {
			case <-time.After(receiveErrorBackoff):
			case <-l.stop:
				return nil
			}
			continue
		}

		if n != 1 {
			l.logger.Error("invalid command length", "sender", senderString(from), "length", n)
			continue
		}

		ev, ok := Decode(buf[0])
		if !ok {
			l.logger.Error("invalid command", "sender", senderString(from), "byte", strconv.QuoteRune(rune(buf[0])))
			continue
		}
		l.logger.Debug("remote command", "sender", senderString(from), "event", ev.String())

		// A stop that raced with the receive wins over delivery.
		if l.stopped() {
			return nil
		}
		select {
		case l.events <- ev:
		case <-l.stop:
			return nil
		}
	}
}

// Stop closes the socket and waits for a running Run to return. No event is
// delivered after Stop returns. Safe to call more than once.
func (l *Listener) Stop() {
	l.shutdown()
	if l.running.Load() {
		<-l.done
	}
}

func (l *Listener) shutdown() {
	l.stopOnce.Do(func() {
		close(l.stop)
		_ = l.conn.Close()
	})
}

func (l *Listener) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func senderString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return addr.String()
}
