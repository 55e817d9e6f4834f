package transport

import (
	"net"
	"net/url"

	pkgerrors "github.com/pkg/errors"
)

// UDP sends each message as one datagram.
type UDP struct {
	conn *net.UDPConn
}

func openUDP(u *url.URL) (Transport, error) {
	return NewUDP(u.Host)
}

// NewUDP connects a datagram socket to addr (host:port).
func NewUDP(addr string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to resolve %s", addr)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to dial %s", addr)
	}
	return &UDP{conn: conn}, nil
}

func (t *UDP) Send(payload []byte) error {
	_, err := t.conn.Write(payload)
	return err
}

func (t *UDP) Close() error {
	return t.conn.Close()
}

func (t *UDP) String() string {
	return "udp://" + t.conn.RemoteAddr().String()
}
