package remote

import (
	"context"
	"fmt"
	"net"
)

// Send writes one command datagram to addr. Delivery is not confirmed.
func Send(ctx context.Context, addr string, b byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("dial udp %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write([]byte{b}); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}
