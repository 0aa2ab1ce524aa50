package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"

	log "github.com/sirupsen/logrus"
)

// DefaultConnectTimeout bounds a connection attempt that never completes
const DefaultConnectTimeout = 30 * time.Second

var (
	ErrNotConnected  = errors.New("not connected")
	ErrNoRole        = errors.New("no characteristic for role")
	ErrNotSupported  = errors.New("bluetooth transport not supported on this platform")
	ErrUnknownDriver = errors.New("unknown transport")
)

// Radio is one open connection to a peripheral, addressed by characteristic
// UUID
type Radio interface {
	WriteCharacteristic(uuid string, data []byte, withoutResponse bool) error
	EnableNotifications(uuid string) error
	Close() error
}

// Central scans for, connects to and services one transmitter
type Central interface {
	Run(ctx context.Context) error
	State() ConnectionState
}

// Options configure a Central
type Options struct {
	// Address restricts connections to one peripheral when set
	Address string

	ConnectTimeout time.Duration

	// Device is the serial port path for the serial transport
	Device   string
	BaudRate int
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return o.ConnectTimeout
}

// ShouldConnect decides whether a discovered peripheral is the transmitter
// and whether now is a good time to connect to it
func ShouldConnect(tx cgm.Transmitter, opts Options, address, name string, now time.Time) bool {
	if opts.Address != "" && !strings.EqualFold(opts.Address, address) {
		return false
	}
	if opts.Address == "" && !tx.Profile().MatchesName(name) {
		return false
	}
	if cgm.SuppressConnection(tx.LastReadingTimestamp(), now, cgm.ConnectionSuppressionWindow) {
		log.Debugf("pkg bluetooth; ignoring %s (%s), last reading is too recent", name, address)
		return false
	}
	return true
}

// Link maps the roles a transmitter speaks in onto the characteristics of the
// currently attached radio
type Link struct {
	mutex   sync.Mutex
	radio   Radio
	profile cgm.Profile
	tx      cgm.Transmitter
	state   *stateHolder
}

// NewLink creates a detached link
func NewLink() *Link {
	return &Link{state: newStateHolder()}
}

// Bind sets the transmitter that receives notifications
func (l *Link) Bind(tx cgm.Transmitter) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.tx = tx
	l.profile = tx.Profile()
}

// Attach makes r the active connection
func (l *Link) Attach(r Radio) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.radio = r
	l.state.set(StateConnected)
}

// Detach forgets the active connection
func (l *Link) Detach() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.radio = nil
}

// State returns the connection state
func (l *Link) State() ConnectionState {
	return l.state.get()
}

// SetState records a new connection state
func (l *Link) SetState(s ConnectionState) {
	l.state.set(s)
}

func (l *Link) bound() (cgm.Transmitter, cgm.Profile) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.tx, l.profile
}

func (l *Link) attached(role cgm.CharacteristicRole) (Radio, string, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.radio == nil {
		return nil, "", ErrNotConnected
	}
	uuid, ok := l.profile.Characteristics[role]
	if !ok {
		return nil, "", fmt.Errorf("%w %s", ErrNoRole, role)
	}
	return l.radio, uuid, nil
}

// Write writes data to the characteristic serving role
func (l *Link) Write(role cgm.CharacteristicRole, data []byte, mode cgm.WriteMode) error {
	radio, uuid, err := l.attached(role)
	if err != nil {
		return err
	}
	return radio.WriteCharacteristic(uuid, data, mode == cgm.WithoutResponse)
}

// Subscribe enables notifications for role and tells the transmitter once
// they are on
func (l *Link) Subscribe(role cgm.CharacteristicRole) error {
	radio, uuid, err := l.attached(role)
	if err != nil {
		return err
	}
	if err := radio.EnableNotifications(uuid); err != nil {
		return fmt.Errorf("failed to enable notifications on %s: %w", role, err)
	}
	log.Infof("pkg bluetooth; notifications enabled for %s", role)

	if tx, _ := l.bound(); tx != nil {
		tx.NotificationEnabled(role)
	}
	return nil
}

// Disconnect closes the active connection
func (l *Link) Disconnect() error {
	l.mutex.Lock()
	radio := l.radio
	l.mutex.Unlock()

	if radio == nil {
		return ErrNotConnected
	}
	return radio.Close()
}

// Deliver routes a notification received on uuid to the transmitter
func (l *Link) Deliver(uuid string, data []byte) {
	tx, profile := l.bound()
	if tx == nil {
		return
	}
	role := profile.RoleFor(uuid)
	if role == cgm.RoleUnknown {
		log.Debugf("pkg bluetooth; notification on unmapped characteristic %s", uuid)
	}
	tx.HandleNotification(role, data)
}

// Connected runs the post-connect sequence: report the connection and
// subscribe to the characteristics the transmitter listens on
func (l *Link) Connected(address, name string) {
	tx, profile := l.bound()
	if tx == nil {
		return
	}
	tx.Connect(address, name)
	for _, role := range profile.Subscribe {
		if err := l.Subscribe(role); err != nil {
			log.Errorf("pkg bluetooth; %v", err)
			_ = l.Disconnect()
			return
		}
	}
}

// Disconnected detaches the radio and reports the end of the connection
func (l *Link) Disconnected(err error) {
	l.Detach()
	l.state.set(StateScanning)

	if tx, _ := l.bound(); tx != nil {
		tx.Disconnect(err)
	}
}

// NewCentral creates the central for the named transport
func NewCentral(transport string, link *Link, opts Options) (Central, error) {
	switch strings.ToLower(transport) {
	case "", "hci":
		return newGattCentral(link, opts)
	case "bluez":
		return newTinyGoCentral(link, opts)
	case "serial":
		c, err := NewSerialCentral(link, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, transport)
	}
}
