package cgm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ConnectionSuppressionWindow is how long after an accepted reading a new
// connection attempt is not worth making
const ConnectionSuppressionWindow = 60 * time.Second

// Link is the outbound half of the transport, used by a transmitter session
// to write frames, enable notifications and drop the connection
type Link interface {
	Write(role CharacteristicRole, data []byte, mode WriteMode) error
	Subscribe(role CharacteristicRole) error
	Disconnect() error
}

// Transmitter is the capability set shared by every transmitter family.
// Calls on one Transmitter must be serialized; see Serial.
type Transmitter interface {
	// Connect is called once the transport is connected to address
	Connect(address, name string)

	// Disconnect is called when the link dropped, err is nil on a clean disconnect
	Disconnect(err error)

	// HandleNotification processes one inbound frame received on role
	HandleNotification(role CharacteristicRole, payload []byte)

	// NotificationEnabled is called once notifications on role are active
	NotificationEnabled(role CharacteristicRole)

	// BluetoothStateChanged forwards adapter state changes
	BluetoothStateChanged(state string)

	// RequestReset asks for a transmitter reset on the next opportunity
	RequestReset()

	// RequestPairing sends the platform pairing trigger
	RequestPairing()

	// SetScalingOverride replaces the raw value scaling strategy
	SetScalingOverride(scale ScalingFunc)

	// LastReadingTimestamp returns when the last reading was accepted
	LastReadingTimestamp() time.Time

	// Profile describes the radio layout this family uses
	Profile() Profile
}

// StatusReporter is implemented by sessions that can describe their state
// for monitoring
type StatusReporter interface {
	Status() map[string]interface{}
}

// Profile is the radio layout of a transmitter family: what to scan for and
// which characteristic UUID backs each role
type Profile struct {
	Family            string
	AdvertisementUUID string
	ServiceUUID       string
	Characteristics   map[CharacteristicRole]string

	// Subscribe lists the roles the transport enables notifications on
	// right after discovery
	Subscribe []CharacteristicRole

	// ExpectedName is the advertised name prefix, empty if any name is accepted
	ExpectedName string
}

// RoleFor returns the role backed by the characteristic uuid. When several
// roles share one characteristic the lowest role wins.
func (p Profile) RoleFor(uuid string) CharacteristicRole {
	roles := make([]CharacteristicRole, 0, len(p.Characteristics))
	for role, u := range p.Characteristics {
		if strings.EqualFold(u, uuid) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return RoleUnknown
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles[0]
}

// MatchesName returns true if name is acceptable for this profile
func (p Profile) MatchesName(name string) bool {
	if p.ExpectedName == "" {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(p.ExpectedName))
}

// SuppressConnection returns true if a connection at now should be skipped
// because a reading was accepted less than window ago
func SuppressConnection(last, now time.Time, window time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Before(last.Add(window))
}

// --- Family registry ---

// FactoryConfig carries everything a family needs to build a session
type FactoryConfig struct {
	ID       string
	Link     Link
	Delegate Delegate
	Clock    Clock

	// BatteryReadInterval and KeepAlive are only used by authenticated families.
	// Zero selects the family default.
	BatteryReadInterval time.Duration
	KeepAlive           time.Duration
}

func (c *FactoryConfig) applyDefaults() {
	if c.Delegate == nil {
		c.Delegate = NoOpDelegate{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
}

// Factory creates a transmitter session for one family
type Factory func(cfg FactoryConfig) (Transmitter, error)

var (
	registry = make(map[string]Factory)
	regLock  = sync.RWMutex{}
)

// Register makes a family available by name. It is meant to be called from
// the init function of the family's package.
func Register(family string, factory Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	family = strings.ToLower(family)
	if _, found := registry[family]; found {
		log.Warnf("Transmitter family %q is being overwritten", family)
	}
	registry[family] = factory
}

// New creates a transmitter session for the named family
func New(family string, cfg FactoryConfig) (Transmitter, error) {
	regLock.RLock()
	factory, ok := registry[strings.ToLower(family)]
	regLock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no implementation found for transmitter family %q", family)
	}
	if cfg.Link == nil {
		return nil, fmt.Errorf("transmitter family %q needs a link", family)
	}

	cfg.applyDefaults()
	return factory(cfg)
}

// Families returns the registered family names, sorted
func Families() []string {
	regLock.RLock()
	defer regLock.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
