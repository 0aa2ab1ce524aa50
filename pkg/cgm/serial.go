package cgm

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Serial wraps a Transmitter so every call runs on its own session queue.
// Transports hand callbacks to a Serial from whatever goroutine the radio
// stack uses; the wrapped session only ever sees one call at a time.
type Serial struct {
	inner Transmitter
	queue *Queue
}

// NewSerial starts a queue for inner and returns the wrapper
func NewSerial(name string, inner Transmitter) *Serial {
	q := NewQueue(name, 64)
	q.Start()
	return &Serial{inner: inner, queue: q}
}

// Close stops the session queue after pending calls have run
func (s *Serial) Close() {
	s.queue.Stop()
}

func (s *Serial) submit(what string, task func()) {
	if err := s.queue.Submit(task); err != nil {
		log.Warnf("Dropping %s: %v", what, err)
	}
}

func (s *Serial) Connect(address, name string) {
	s.submit("connect", func() { s.inner.Connect(address, name) })
}

func (s *Serial) Disconnect(err error) {
	s.submit("disconnect", func() { s.inner.Disconnect(err) })
}

func (s *Serial) HandleNotification(role CharacteristicRole, payload []byte) {
	data := append([]byte(nil), payload...)
	s.submit("notification", func() { s.inner.HandleNotification(role, data) })
}

func (s *Serial) NotificationEnabled(role CharacteristicRole) {
	s.submit("notification enabled", func() { s.inner.NotificationEnabled(role) })
}

func (s *Serial) BluetoothStateChanged(state string) {
	s.submit("bluetooth state", func() { s.inner.BluetoothStateChanged(state) })
}

func (s *Serial) RequestReset() {
	s.submit("reset request", s.inner.RequestReset)
}

func (s *Serial) RequestPairing() {
	s.submit("pairing request", s.inner.RequestPairing)
}

func (s *Serial) SetScalingOverride(scale ScalingFunc) {
	s.submit("scaling override", func() { s.inner.SetScalingOverride(scale) })
}

// LastReadingTimestamp waits for the queue to answer. It returns the zero
// time once the queue is stopped.
func (s *Serial) LastReadingTimestamp() time.Time {
	var ts time.Time
	if err := s.queue.Do(func() { ts = s.inner.LastReadingTimestamp() }); err != nil {
		log.Debugf("LastReadingTimestamp: %v", err)
	}
	return ts
}

// Status asks the wrapped session for its state on the queue. It returns nil
// if the session reports nothing or the queue is stopped.
func (s *Serial) Status() map[string]interface{} {
	reporter, ok := s.inner.(StatusReporter)
	if !ok {
		return nil
	}
	var status map[string]interface{}
	if err := s.queue.Do(func() { status = reporter.Status() }); err != nil {
		log.Debugf("Status: %v", err)
	}
	return status
}

// Profile is static per family and does not go through the queue
func (s *Serial) Profile() Profile {
	return s.inner.Profile()
}
