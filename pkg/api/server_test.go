package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/cgm"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

type fakeController struct {
	resets   atomic.Int32
	pairings atomic.Int32
	last     time.Time
}

func (f *fakeController) RequestReset()                   { f.resets.Inc() }
func (f *fakeController) RequestPairing()                 { f.pairings.Inc() }
func (f *fakeController) LastReadingTimestamp() time.Time { return f.last }

type reportingController struct {
	fakeController
}

func (r *reportingController) Status() map[string]interface{} {
	return map[string]interface{}{"phase": "paired"}
}

func TestCurrentState(t *testing.T) {
	last := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s := New("dexcomg6")
	s.SetController(&fakeController{last: last})
	s.SetTransportState(func() string { return "Scanning" })

	s.DidConnect("AA:BB", "DEXCOM34")
	s.InfoReceived(cgm.Info{
		Samples:         []cgm.GlucoseSample{{Timestamp: last, Raw: 150000, Filtered: 148000}},
		FirmwareVersion: "1.6.5.25",
	})
	s.InfoReceived(cgm.Info{Battery: cgm.G4Battery{Level: 215}})
	s.PairingNeeded()

	state := s.CurrentState()
	if !state.Connected {
		t.Error("Expected connected")
	}
	if state.Transport != "Scanning" {
		t.Errorf("Expected transport state Scanning, got %s", state.Transport)
	}
	if state.LastReading == nil || !state.LastReading.Equal(last) {
		t.Errorf("Expected last reading %v, got %v", last, state.LastReading)
	}
	if state.LastSample == nil || state.LastSample.Raw != 150000 {
		t.Errorf("Expected last sample to be kept, got %+v", state.LastSample)
	}
	if state.FirmwareVersion != "1.6.5.25" {
		t.Errorf("Expected firmware to survive a battery only info, got %q", state.FirmwareVersion)
	}
	if state.Battery == "" {
		t.Error("Expected battery")
	}
	if state.Pairing != "needed" {
		t.Errorf("Expected pairing needed, got %q", state.Pairing)
	}

	if state.Session != nil {
		t.Errorf("Expected no session status from a plain controller, got %v", state.Session)
	}

	s.DidDisconnect()
	if s.CurrentState().Connected {
		t.Error("Expected disconnected")
	}
}

func TestStateIncludesSessionStatus(t *testing.T) {
	s := New("dexcomg5")
	s.SetController(&reportingController{})
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Session["phase"] != "paired" {
		t.Errorf("Expected session phase paired, got %v", state.Session)
	}
}

func TestCommandAPI(t *testing.T) {
	s := New("dexcomg5")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a session, got %d", resp.StatusCode)
	}

	c := &fakeController{}
	s.SetController(c)

	tests := []struct {
		path string
		want func() int32
	}{
		{"/api/reset", c.resets.Load},
		{"/api/pair", c.pairings.Load},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, "application/json", nil)
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("Expected 200, got %d", resp.StatusCode)
			}
			if tt.want() != 1 {
				t.Errorf("Expected the command to reach the controller once, got %d", tt.want())
			}

			resp, err = http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", resp.StatusCode)
			}
		})
	}
}

func TestStateAPI(t *testing.T) {
	s := New("xbridge")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Family != "xbridge" || state.Connected {
		t.Errorf("Unexpected state %+v", state)
	}
}

func TestWebSocketEvents(t *testing.T) {
	s := New("dexcomg5")
	c := &fakeController{}
	s.SetController(c)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	read := func() map[string]interface{} {
		t.Helper()
		if err := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("SetReadDeadline failed: %v", err)
		}
		var msg map[string]interface{}
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		return msg
	}

	if msg := read(); msg["type"] != "state" {
		t.Fatalf("Expected initial state, got %v", msg)
	}

	s.ResetCompleted(true)
	msg := read()
	if msg["type"] != "reset_completed" || msg["success"] != true {
		t.Errorf("Unexpected event %v", msg)
	}

	s.Diagnostic(cgm.Diagnostic{Role: cgm.RoleWrite, Reason: "unknown opcode", Payload: []byte{0x99}})
	msg = read()
	if msg["type"] != "diagnostic" || msg["data"] != "99" || msg["role"] != "Write/Control" {
		t.Errorf("Unexpected event %v", msg)
	}

	if err := ws.WriteJSON(map[string]string{"command": "getState"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if msg := read(); msg["type"] != "state" {
		t.Errorf("Expected state, got %v", msg)
	}
}
