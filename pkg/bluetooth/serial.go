package bluetooth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// DefaultBaudRate is the UART speed of an xBridge wixel
const DefaultBaudRate = 9600

const (
	reopenDelay  = 5 * time.Second
	maxFrameSize = 32
	maxLineSize  = 256
)

// SerialCentral reads an xBridge wixel attached to a serial port. The wixel
// writes the same frames it would send over the radio.
type SerialCentral struct {
	link *Link
	opts Options

	mutex sync.Mutex
	port  serial.Port
}

// NewSerialCentral creates a serial central for the bridge families
func NewSerialCentral(link *Link, opts Options) (*SerialCentral, error) {
	if opts.Device == "" {
		return nil, fmt.Errorf("serial transport needs a device path")
	}
	if tx, profile := link.bound(); tx != nil && profile.Family != "xbridge" {
		return nil, fmt.Errorf("serial transport does not support %s transmitters", profile.Family)
	}
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	return &SerialCentral{link: link, opts: opts}, nil
}

func (s *SerialCentral) State() ConnectionState {
	return s.link.State()
}

// Run reads frames until ctx is done, reopening the port when it fails
func (s *SerialCentral) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if s.port != nil {
			_ = s.port.Close()
		}
	})
	defer stop()

	for ctx.Err() == nil {
		err := s.session(ctx)
		if ctx.Err() != nil {
			break
		}
		log.Warnf("pkg bluetooth; serial session on %s ended: %v", s.opts.Device, err)

		select {
		case <-ctx.Done():
		case <-time.After(reopenDelay):
		}
	}

	s.link.SetState(StateIdle)
	return nil
}

func (s *SerialCentral) session(ctx context.Context) error {
	s.link.SetState(StateConnecting)

	mode := &serial.Mode{
		BaudRate: s.opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.opts.Device, mode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.opts.Device, err)
	}

	s.mutex.Lock()
	s.port = port
	s.mutex.Unlock()
	if ctx.Err() != nil {
		_ = port.Close()
		return ctx.Err()
	}

	log.Infof("pkg bluetooth; opened %s at %d baud", s.opts.Device, s.opts.BaudRate)

	s.link.Attach(&serialRadio{port: port})
	s.link.Connected(s.opts.Device, "xBridge")

	err = s.link.ReadFrames(port)

	s.mutex.Lock()
	s.port = nil
	s.mutex.Unlock()
	_ = port.Close()

	s.link.Disconnected(err)
	return err
}

// ReadFrames delivers every frame read from r on the Receive role until r
// fails
func (l *Link) ReadFrames(r io.Reader) error {
	_, profile := l.bound()
	uuid := profile.Characteristics[cgm.RoleReceive]

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxFrameSize), maxLineSize)
	scanner.Split(SplitFrames)

	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)
		l.Deliver(uuid, frame)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// SplitFrames is a bufio.SplitFunc for a wixel UART stream. Text lines start
// with a digit and end at a newline; binary frames start with their length.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil
	}

	if data[0] >= '0' && data[0] <= '9' {
		for i, c := range data {
			if c == '\n' {
				return i + 1, data[:i], nil
			}
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}

	size := int(data[0])
	if size < 2 || size > maxFrameSize {
		// not a frame boundary, resync on the next byte
		return 1, nil, nil
	}
	if len(data) < size {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return size, data[:size], nil
}

// serialRadio writes frames to the wixel; every role shares the port
type serialRadio struct {
	mutex sync.Mutex
	port  serial.Port
}

func (r *serialRadio) WriteCharacteristic(uuid string, data []byte, withoutResponse bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, err := r.port.Write(data)
	return err
}

func (r *serialRadio) EnableNotifications(uuid string) error {
	return nil
}

func (r *serialRadio) Close() error {
	return r.port.Close()
}
