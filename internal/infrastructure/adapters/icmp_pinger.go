package adapters

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ICMPPinger sends one ICMP echo request per Ping call over a raw socket (requires root)
type ICMPPinger struct {
	id  int
	seq int
}

// NewICMPPinger creates a new ICMPPinger
func NewICMPPinger() interfaces.Pinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff}
}

// Ping sends a single echo request to addr and waits up to timeout for the matching reply
func (p *ICMPPinger) Ping(ctx context.Context, addr net.IP, timeout time.Duration) error {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return errors.NewSystemError("failed to open ICMP socket", err)
	}
	defer conn.Close()

	p.seq++
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  p.seq,
			Data: []byte("usbnic-failover"),
		},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return errors.NewSystemError("failed to build ICMP echo", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return errors.NewSystemError("failed to set ICMP deadline", err)
	}

	if _, err := conn.WriteTo(payload, &net.IPAddr{IP: addr}); err != nil {
		return errors.NewNetworkError(fmt.Sprintf("failed to send echo to %s", addr), err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return errors.NewNetworkError(fmt.Sprintf("no echo reply from %s", addr), err)
		}

		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.ID != p.id || echo.Seq != p.seq {
			continue
		}
		if ipAddr, ok := peer.(*net.IPAddr); ok && !ipAddr.IP.Equal(addr) {
			continue
		}
		return nil
	}
}
