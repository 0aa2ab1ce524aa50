// Package cgmtest provides recording fakes for the cgm session interfaces.
package cgmtest

import (
	"sync"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
)

// Clock is a settable clock
type Clock struct {
	mutex sync.Mutex
	now   time.Time
}

// NewClock creates a clock stopped at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = t
}

// Link records every command it is asked to perform
type Link struct {
	mutex    sync.Mutex
	Commands []cgm.Command

	// Err is returned from every call when set
	Err error
}

func (l *Link) record(c cgm.Command) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.Commands = append(l.Commands, c)
	return l.Err
}

func (l *Link) Write(role cgm.CharacteristicRole, data []byte, mode cgm.WriteMode) error {
	return l.record(cgm.Command{Kind: cgm.CommandWrite, Role: role, Data: append([]byte(nil), data...), Mode: mode})
}

func (l *Link) Subscribe(role cgm.CharacteristicRole) error {
	return l.record(cgm.Command{Kind: cgm.CommandSubscribe, Role: role})
}

func (l *Link) Disconnect() error {
	return l.record(cgm.Command{Kind: cgm.CommandDisconnect})
}

// Writes returns only the write commands
func (l *Link) Writes() []cgm.Command {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var out []cgm.Command
	for _, c := range l.Commands {
		if c.Kind == cgm.CommandWrite {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets every recorded command
func (l *Link) Reset() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.Commands = nil
}

// Delegate records the name of every event and the infos it received
type Delegate struct {
	mutex       sync.Mutex
	Events      []string
	Infos       []cgm.Info
	Resets      []bool
	Diagnostics []cgm.Diagnostic
}

func (d *Delegate) add(event string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Events = append(d.Events, event)
}

func (d *Delegate) DidConnect(address, name string) { d.add("didConnect") }
func (d *Delegate) DidDisconnect()                  { d.add("didDisconnect") }
func (d *Delegate) PairingNeeded()                  { d.add("pairingNeeded") }
func (d *Delegate) PairingSucceeded()               { d.add("pairingSucceeded") }
func (d *Delegate) PairingFailed()                  { d.add("pairingFailed") }

func (d *Delegate) BluetoothStateChanged(state string) { d.add("bluetoothStateChanged") }

func (d *Delegate) InfoReceived(info cgm.Info) {
	d.mutex.Lock()
	d.Infos = append(d.Infos, info)
	d.mutex.Unlock()
	d.add("infoReceived")
}

func (d *Delegate) ResetCompleted(success bool) {
	d.mutex.Lock()
	d.Resets = append(d.Resets, success)
	d.mutex.Unlock()
	d.add("resetCompleted")
}

func (d *Delegate) Diagnostic(diag cgm.Diagnostic) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Diagnostics = append(d.Diagnostics, diag)
}

// Count returns how many times event was recorded
func (d *Delegate) Count(event string) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n := 0
	for _, e := range d.Events {
		if e == event {
			n++
		}
	}
	return n
}
