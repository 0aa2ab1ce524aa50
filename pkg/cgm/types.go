package cgm

import (
	"fmt"
	"time"
)

// GlucoseSample is a single validated reading
type GlucoseSample struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       float64   `json:"raw"`
	Filtered  float64   `json:"filtered"`
}

// NewSample creates a sample whose filtered value defaults to the raw value
func NewSample(ts time.Time, raw float64) GlucoseSample {
	return GlucoseSample{Timestamp: ts, Raw: raw, Filtered: raw}
}

// BatteryInfo is implemented by the family-specific battery reports
type BatteryInfo interface {
	Family() string
	String() string
}

// G4Battery is the battery level reported by bridge transmitters
type G4Battery struct {
	Level int `json:"level"`
}

// Family returns the transmitter family this battery report belongs to
func (b G4Battery) Family() string { return "xbridge" }

func (b G4Battery) String() string {
	return fmt.Sprintf("level=%d", b.Level)
}

// G5Battery is the battery status reported by authenticated transmitters.
// Resist is zero for transmitters that do not report it.
type G5Battery struct {
	Status      uint8 `json:"status"`
	VoltageA    int   `json:"voltageA"`
	VoltageB    int   `json:"voltageB"`
	Resist      int   `json:"resist"`
	Runtime     int   `json:"runtime"`
	Temperature int   `json:"temperature"`
}

// Family returns the transmitter family this battery report belongs to
func (b G5Battery) Family() string { return "dexcom" }

func (b G5Battery) String() string {
	return fmt.Sprintf("voltageA=%d voltageB=%d resist=%d runtime=%d temperature=%d",
		b.VoltageA, b.VoltageB, b.Resist, b.Runtime, b.Temperature)
}

// Info is the payload of one InfoReceived call. Samples may be empty when
// only battery or firmware information arrived.
type Info struct {
	Samples            []GlucoseSample
	Battery            BatteryInfo
	FirmwareVersion    string
	SensorSerialNumber string
}

// Empty returns true if the info carries nothing worth reporting
func (i Info) Empty() bool {
	return len(i.Samples) == 0 && i.Battery == nil && i.FirmwareVersion == "" && i.SensorSerialNumber == ""
}

// CharacteristicRole identifies the characteristic a frame arrived on or must be written to
type CharacteristicRole int

const (
	RoleUnknown CharacteristicRole = iota
	// RoleReceive is the Receive/Authentication characteristic
	RoleReceive
	// RoleWrite is the Write/Control characteristic
	RoleWrite
	RoleCommunication
	RoleBackfill
)

func (r CharacteristicRole) String() string {
	switch r {
	case RoleReceive:
		return "Receive/Authentication"
	case RoleWrite:
		return "Write/Control"
	case RoleCommunication:
		return "Communication"
	case RoleBackfill:
		return "Backfill"
	default:
		return "Unknown"
	}
}

// WriteMode selects whether a write expects an acknowledgement from the peripheral
type WriteMode int

const (
	WithResponse WriteMode = iota
	WithoutResponse
)

func (m WriteMode) String() string {
	if m == WithoutResponse {
		return "withoutResponse"
	}
	return "withResponse"
}

// CommandKind says what the transport must do with a Command
type CommandKind int

const (
	// CommandWrite writes Data to Role
	CommandWrite CommandKind = iota
	// CommandSubscribe enables notifications on Role
	CommandSubscribe
	// CommandDisconnect drops the connection
	CommandDisconnect
)

// Command is an outbound action handed back to the transport
type Command struct {
	Kind CommandKind
	Role CharacteristicRole
	Data []byte
	Mode WriteMode
}

// Write creates a write command
func Write(role CharacteristicRole, data []byte, mode WriteMode) *Command {
	return &Command{Kind: CommandWrite, Role: role, Data: data, Mode: mode}
}

// Subscribe creates a notification subscription command
func Subscribe(role CharacteristicRole) *Command {
	return &Command{Kind: CommandSubscribe, Role: role}
}

// Disconnect creates a disconnect command
func Disconnect() *Command {
	return &Command{Kind: CommandDisconnect}
}

// Apply executes the command against link
func (c *Command) Apply(link Link) error {
	switch c.Kind {
	case CommandWrite:
		return link.Write(c.Role, c.Data, c.Mode)
	case CommandSubscribe:
		return link.Subscribe(c.Role)
	case CommandDisconnect:
		return link.Disconnect()
	default:
		return fmt.Errorf("unknown command kind %d", c.Kind)
	}
}

// ScalingFunc converts a raw transmitter value into the unit the rest of the
// system expects. firmware is empty when the version is not known yet.
type ScalingFunc func(firmware string, value float64) float64

// IdentityScaling returns the value unchanged
func IdentityScaling(_ string, value float64) float64 {
	return value
}
