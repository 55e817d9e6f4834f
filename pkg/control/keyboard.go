package control

import (
	"context"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const keyEscape = 0x1b

// KeyEvent maps a key press to an event.
func KeyEvent(b byte) Event {
	switch b {
	case 'g':
		return EventStart
	case 'u':
		return EventToggleUndistorted
	case keyEscape, 'q', 0x03:
		return EventStop
	default:
		return EventNone
	}
}

// ReadKeys pushes events for key presses read from r until r is exhausted
// or ctx is done. A stop key ends the reader after its event is queued.
func ReadKeys(ctx context.Context, r io.Reader, q *Queue) error {
	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n == 1 {
			e := KeyEvent(buf[0])
			if e != EventNone {
				logrus.WithField("event", e).Debug("key pressed")
				q.Push(e)
			}
			if e == EventStop {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to read key")
		}
	}
}

// Keyboard reads control keys from the terminal in raw mode.
type Keyboard struct {
	in    *os.File
	state *term.State
}

// NewKeyboard switches in to raw mode. Restore must be called to return the
// terminal to its previous state.
func NewKeyboard(in *os.File) (*Keyboard, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, pkgerrors.Errorf("%s is not a terminal", in.Name())
	}
	st, err := term.MakeRaw(fd)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to enable raw mode")
	}
	return &Keyboard{in: in, state: st}, nil
}

// Run forwards key presses to q until ctx is done or a stop key is read.
func (k *Keyboard) Run(ctx context.Context, q *Queue) error {
	return ReadKeys(ctx, k.in, q)
}

func (k *Keyboard) Restore() error {
	return term.Restore(int(k.in.Fd()), k.state)
}
