// Package zmqpub provides a ZeroMQ PUB transport. Importing it registers the
// zmq+tcp URL scheme with package transport.
package zmqpub

import (
	"net/url"

	"github.com/pebbe/zmq4"
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/markercam/pkg/transport"
)

const Scheme = "zmq+tcp"

func init() {
	transport.Register(Scheme, func(u *url.URL) (transport.Transport, error) {
		return New("tcp://" + u.Host)
	})
}

// Publisher binds a PUB socket. Messages are dropped while no subscriber is
// connected or when a subscriber's queue is full.
type Publisher struct {
	socket   *zmq4.Socket
	endpoint string
}

// New binds a PUB socket to endpoint, e.g. tcp://*:5556.
func New(endpoint string) (*Publisher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create zmq socket")
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return nil, pkgerrors.Wrapf(err, "failed to configure zmq socket")
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, pkgerrors.Wrapf(err, "failed to bind %s", endpoint)
	}
	return &Publisher{socket: socket, endpoint: endpoint}, nil
}

func (p *Publisher) Send(payload []byte) error {
	_, err := p.socket.SendBytes(payload, zmq4.DONTWAIT)
	return err
}

func (p *Publisher) Close() error {
	return p.socket.Close()
}

func (p *Publisher) String() string {
	return "zmq+" + p.endpoint
}
