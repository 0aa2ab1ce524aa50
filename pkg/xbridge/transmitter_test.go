package xbridge

import (
	"bytes"
	"testing"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/cgm/cgmtest"
)

func newTestTransmitter(t *testing.T, id string) (*Transmitter, *cgmtest.Link, *cgmtest.Delegate) {
	t.Helper()

	link := &cgmtest.Link{}
	delegate := &cgmtest.Delegate{}
	tx, err := cgm.New("xbridge", cgm.FactoryConfig{
		ID:       id,
		Link:     link,
		Delegate: delegate,
		Clock:    cgmtest.NewClock(arrival),
	})
	if err != nil {
		t.Fatalf("Failed to create transmitter: %v", err)
	}
	return tx.(*Transmitter), link, delegate
}

func TestDataPacketWithoutIdentity(t *testing.T) {
	tx, link, delegate := newTestTransmitter(t, "6DNL5")

	tx.HandleNotification(cgm.RoleReceive, dataPacket(12000, 11800, 90, "", 11))

	if len(delegate.Infos) != 1 {
		t.Fatalf("Expected 1 info, got %d", len(delegate.Infos))
	}
	info := delegate.Infos[0]
	if len(info.Samples) != 1 {
		t.Fatalf("Expected 1 sample, got %d", len(info.Samples))
	}
	if s := info.Samples[0]; s.Raw != 12000 || s.Filtered != 11800 {
		t.Errorf("Expected raw=12000 filtered=11800, got %+v", s)
	}
	if b, ok := info.Battery.(cgm.G4Battery); !ok || b.Level != 90 {
		t.Errorf("Expected G4Battery{90}, got %#v", info.Battery)
	}

	writes := link.Writes()
	if len(writes) != 1 || !bytes.Equal(writes[0].Data, AckFrame) {
		t.Fatalf("Expected only the ack write, got %+v", writes)
	}
	if writes[0].Mode != cgm.WithoutResponse {
		t.Errorf("Expected ack without response, got %s", writes[0].Mode)
	}
	if !tx.LastReadingTimestamp().Equal(arrival) {
		t.Errorf("Expected last reading at %v, got %v", arrival, tx.LastReadingTimestamp())
	}
}

func TestDataPacketIdentityMismatch(t *testing.T) {
	tx, link, delegate := newTestTransmitter(t, "6DNL5")

	tx.HandleNotification(cgm.RoleReceive, dataPacket(12000, 11800, 90, "ABCDE", 16))

	if len(delegate.Infos) != 0 {
		t.Errorf("Expected no info on identity mismatch, got %d", len(delegate.Infos))
	}
	writes := link.Writes()
	if len(writes) != 1 {
		t.Fatalf("Expected exactly 1 write, got %d", len(writes))
	}
	if want := CorrectionFrame("6DNL5"); !bytes.Equal(writes[0].Data, want) {
		t.Errorf("Expected correction % X, got % X", want, writes[0].Data)
	}
	if !tx.LastReadingTimestamp().IsZero() {
		t.Error("Rejected frame must not update the last reading")
	}
}

func TestDataPacketIdentityMatch(t *testing.T) {
	tx, link, delegate := newTestTransmitter(t, "6dnl5")

	tx.HandleNotification(cgm.RoleReceive, dataPacket(12000, 11800, 90, "6DNL5", 16))

	if len(delegate.Infos) != 1 {
		t.Fatalf("Expected 1 info, got %d", len(delegate.Infos))
	}
	writes := link.Writes()
	if len(writes) != 1 || !bytes.Equal(writes[0].Data, AckFrame) {
		t.Errorf("Expected only the ack write, got %+v", writes)
	}
}

func TestBeacon(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantWrites int
	}{
		{"matching", "6DNL5", 0},
		{"mismatch", "ABCDE", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, link, delegate := newTestTransmitter(t, "6DNL5")
			tx.HandleNotification(cgm.RoleReceive, beaconPacket(7, tt.id))

			if got := len(link.Writes()); got != tt.wantWrites {
				t.Errorf("Expected %d writes, got %d", tt.wantWrites, got)
			}
			if len(delegate.Infos) != 0 {
				t.Errorf("Beacon must not produce info, got %d", len(delegate.Infos))
			}
		})
	}
}

func TestLegacyFrame(t *testing.T) {
	tx, link, delegate := newTestTransmitter(t, "6DNL5")

	tx.HandleNotification(cgm.RoleReceive, []byte("123632 218 0"))

	if len(delegate.Infos) != 1 {
		t.Fatalf("Expected 1 info, got %d", len(delegate.Infos))
	}
	info := delegate.Infos[0]
	if s := info.Samples[0]; s.Raw != 123632 || s.Filtered != 123632 {
		t.Errorf("Expected raw and filtered 123632, got %+v", s)
	}
	if b, ok := info.Battery.(cgm.G4Battery); !ok || b.Level != 218 {
		t.Errorf("Expected G4Battery{218}, got %#v", info.Battery)
	}
	if len(link.Writes()) != 0 {
		t.Errorf("Legacy frames are not acknowledged, got %d writes", len(link.Writes()))
	}
}

func TestMalformedFrameIsDropped(t *testing.T) {
	tx, link, delegate := newTestTransmitter(t, "6DNL5")

	for _, payload := range [][]byte{{0x01}, dataPacket(1, 2, 3, "", 9), []byte("nonsense")} {
		tx.HandleNotification(cgm.RoleReceive, payload)
	}

	if len(delegate.Infos) != 0 || len(link.Commands) != 0 {
		t.Errorf("Expected no events and no writes, got %d infos and %d commands", len(delegate.Infos), len(link.Commands))
	}
	if len(delegate.Diagnostics) != 3 {
		t.Errorf("Expected 3 diagnostics, got %d", len(delegate.Diagnostics))
	}
}

func TestScalingOverride(t *testing.T) {
	tx, _, delegate := newTestTransmitter(t, "6DNL5")
	tx.SetScalingOverride(func(_ string, v float64) float64 { return v / 1000 })

	tx.HandleNotification(cgm.RoleReceive, dataPacket(12000, 11800, 90, "", 11))

	if s := delegate.Infos[0].Samples[0]; s.Raw != 12 || s.Filtered != 11.8 {
		t.Errorf("Expected scaled raw=12 filtered=11.8, got %+v", s)
	}
}

func TestStatus(t *testing.T) {
	tx, _, _ := newTestTransmitter(t, "6DNL5")
	tx.HandleNotification(cgm.RoleReceive, []byte("123632 218 0"))

	status := tx.Status()
	if status["transmitterId"] != "6DNL5" {
		t.Errorf("Expected transmitterId 6DNL5, got %v", status["transmitterId"])
	}
	if last, ok := status["lastReading"].(time.Time); !ok || !last.Equal(arrival) {
		t.Errorf("Expected lastReading %v, got %v", arrival, status["lastReading"])
	}
}

func TestNewRejectsInvalidID(t *testing.T) {
	for _, id := range []string{"", "ABCD", "ABCDEF", "ABCDI"} {
		if _, err := cgm.New("dexcomg4", cgm.FactoryConfig{ID: id, Link: &cgmtest.Link{}}); err == nil {
			t.Errorf("Expected error for id %q", id)
		}
	}
}
