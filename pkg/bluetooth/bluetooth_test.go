package bluetooth

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
)

type fakeRadio struct {
	writes  []string
	notify  []string
	closed  bool
	failSub error
}

func (r *fakeRadio) WriteCharacteristic(uuid string, data []byte, withoutResponse bool) error {
	mode := "rsp"
	if withoutResponse {
		mode = "norsp"
	}
	r.writes = append(r.writes, uuid+" "+mode)
	return nil
}

func (r *fakeRadio) EnableNotifications(uuid string) error {
	if r.failSub != nil {
		return r.failSub
	}
	r.notify = append(r.notify, uuid)
	return nil
}

func (r *fakeRadio) Close() error {
	r.closed = true
	return nil
}

type fakeTransmitter struct {
	profile  cgm.Profile
	last     time.Time
	calls    []string
	payloads [][]byte
}

func (f *fakeTransmitter) Connect(address, name string) { f.calls = append(f.calls, "connect "+name) }
func (f *fakeTransmitter) Disconnect(err error)         { f.calls = append(f.calls, "disconnect") }

func (f *fakeTransmitter) HandleNotification(role cgm.CharacteristicRole, payload []byte) {
	f.calls = append(f.calls, "notification "+role.String())
	f.payloads = append(f.payloads, payload)
}

func (f *fakeTransmitter) NotificationEnabled(role cgm.CharacteristicRole) {
	f.calls = append(f.calls, "enabled "+role.String())
}

func (f *fakeTransmitter) BluetoothStateChanged(state string)       {}
func (f *fakeTransmitter) RequestReset()                            {}
func (f *fakeTransmitter) RequestPairing()                          {}
func (f *fakeTransmitter) SetScalingOverride(scale cgm.ScalingFunc) {}
func (f *fakeTransmitter) LastReadingTimestamp() time.Time          { return f.last }
func (f *fakeTransmitter) Profile() cgm.Profile                     { return f.profile }

const (
	authUUID    = "F8083535-849E-531C-C594-30F1F86A4EA5"
	controlUUID = "F8083534-849E-531C-C594-30F1F86A4EA5"
)

func newFake() *fakeTransmitter {
	return &fakeTransmitter{profile: cgm.Profile{
		Family:       "dexcomg5",
		ServiceUUID:  "F8083532-849E-531C-C594-30F1F86A4EA5",
		ExpectedName: "DEXCOM34",
		Characteristics: map[cgm.CharacteristicRole]string{
			cgm.RoleReceive: authUUID,
			cgm.RoleWrite:   controlUUID,
		},
		Subscribe: []cgm.CharacteristicRole{cgm.RoleReceive},
	}}
}

func TestLinkDetached(t *testing.T) {
	l := NewLink()
	l.Bind(newFake())

	if err := l.Write(cgm.RoleWrite, []byte{1}, cgm.WithResponse); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := l.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if l.State() != StateIdle {
		t.Errorf("Expected state %s, got %s", StateIdle, l.State())
	}
}

func TestLinkRoutesRoles(t *testing.T) {
	tx := newFake()
	l := NewLink()
	l.Bind(tx)
	radio := &fakeRadio{}
	l.Attach(radio)

	if err := l.Write(cgm.RoleWrite, []byte{0x2E}, cgm.WithResponse); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := l.Write(cgm.RoleReceive, []byte{0x01}, cgm.WithoutResponse); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	want := []string{controlUUID + " rsp", authUUID + " norsp"}
	for i := range want {
		if radio.writes[i] != want[i] {
			t.Errorf("Write %d: expected %s, got %s", i, want[i], radio.writes[i])
		}
	}

	if err := l.Write(cgm.RoleBackfill, []byte{0}, cgm.WithResponse); !errors.Is(err, ErrNoRole) {
		t.Errorf("Expected ErrNoRole, got %v", err)
	}

	l.Deliver(strings.ToLower(controlUUID), []byte{0x2F})
	if tx.calls[0] != "notification Write/Control" {
		t.Errorf("Expected notification on Write/Control, got %v", tx.calls)
	}
}

func TestLinkConnectedSubscribes(t *testing.T) {
	tx := newFake()
	l := NewLink()
	l.Bind(tx)
	radio := &fakeRadio{}
	l.Attach(radio)

	l.Connected("AA:BB", "DEXCOM34")

	want := []string{"connect DEXCOM34", "enabled Receive/Authentication"}
	if len(tx.calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, tx.calls)
	}
	for i := range want {
		if tx.calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], tx.calls[i])
		}
	}
	if len(radio.notify) != 1 || radio.notify[0] != authUUID {
		t.Errorf("Expected notifications on %s, got %v", authUUID, radio.notify)
	}
	if l.State() != StateConnected {
		t.Errorf("Expected state %s, got %s", StateConnected, l.State())
	}

	l.Disconnected(nil)
	if tx.calls[len(tx.calls)-1] != "disconnect" {
		t.Errorf("Expected disconnect, got %v", tx.calls)
	}
	if err := l.Write(cgm.RoleWrite, []byte{1}, cgm.WithResponse); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestLinkSubscribeFailureDisconnects(t *testing.T) {
	tx := newFake()
	l := NewLink()
	l.Bind(tx)
	radio := &fakeRadio{failSub: errors.New("gatt error")}
	l.Attach(radio)

	l.Connected("AA:BB", "DEXCOM34")

	if !radio.closed {
		t.Error("Expected the radio to be closed")
	}
	for _, c := range tx.calls {
		if strings.HasPrefix(c, "enabled") {
			t.Errorf("Notification must not be reported as enabled, got %v", tx.calls)
		}
	}
}

func TestShouldConnect(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		opts    Options
		address string
		adv     string
		last    time.Time
		want    bool
	}{
		{"name matches", Options{}, "AA", "DEXCOM34", time.Time{}, true},
		{"name mismatch", Options{}, "AA", "DEXCOM99", time.Time{}, false},
		{"address overrides name", Options{Address: "aa"}, "AA", "Other", time.Time{}, true},
		{"wrong address", Options{Address: "BB"}, "AA", "DEXCOM34", time.Time{}, false},
		{"recent reading", Options{}, "AA", "DEXCOM34", now.Add(-30 * time.Second), false},
		{"old reading", Options{}, "AA", "DEXCOM34", now.Add(-61 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newFake()
			tx.last = tt.last
			if got := ShouldConnect(tx, tt.opts, tt.address, tt.adv, now); got != tt.want {
				t.Errorf("ShouldConnect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitFrames(t *testing.T) {
	stream := []byte{0x07, 0xF1, 1, 2, 3, 4, 5}
	stream = append(stream, []byte("123632 218 0\r\n")...)
	stream = append(stream, 0x00, 0xFF)
	stream = append(stream, 0x02, 0xF0)
	stream = append(stream, []byte("99 5")...)

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Split(SplitFrames)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := [][]byte{
		{0x07, 0xF1, 1, 2, 3, 4, 5},
		[]byte("123632 218 0\r"),
		{0x02, 0xF0},
		[]byte("99 5"),
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d frames, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("Frame %d: expected % X, got % X", i, want[i], got[i])
		}
	}
}

func TestReadFrames(t *testing.T) {
	tx := newFake()
	l := NewLink()
	l.Bind(tx)

	err := l.ReadFrames(strings.NewReader("150000 200\n"))
	if err == nil {
		t.Error("Expected an error once the reader is drained")
	}
	if len(tx.payloads) != 1 || string(tx.payloads[0]) != "150000 200" {
		t.Errorf("Unexpected payloads %q", tx.payloads)
	}
	if tx.calls[0] != "notification Receive/Authentication" {
		t.Errorf("Expected delivery on the Receive role, got %v", tx.calls)
	}
}

func TestNewCentralUnknownTransport(t *testing.T) {
	if _, err := NewCentral("carrier-pigeon", NewLink(), Options{}); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}
}

func TestNewSerialCentral(t *testing.T) {
	l := NewLink()
	l.Bind(newFake())
	if _, err := NewSerialCentral(l, Options{Device: "/dev/ttyACM0"}); err == nil {
		t.Error("Expected the serial transport to reject an authenticated transmitter")
	}

	xb := newFake()
	xb.profile.Family = "xbridge"
	l.Bind(xb)
	c, err := NewSerialCentral(l, Options{Device: "/dev/ttyACM0"})
	if err != nil {
		t.Fatalf("NewSerialCentral failed: %v", err)
	}
	if c.opts.BaudRate != DefaultBaudRate {
		t.Errorf("Expected baud rate %d, got %d", DefaultBaudRate, c.opts.BaudRate)
	}

	if _, err := NewSerialCentral(l, Options{}); err == nil {
		t.Error("Expected an error without a device path")
	}
}
