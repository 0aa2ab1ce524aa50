package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jwoglom/cgmbridge/pkg/config"
)

func testConfig(t *testing.T, family, id string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Family = family
	cfg.TransmitterID = id
	cfg.Transport = "serial"
	cfg.SerialPort = filepath.Join(t.TempDir(), "missing-tty")
	cfg.APIListen = "127.0.0.1:0"
	return cfg
}

func TestFailedSessionExits(t *testing.T) {
	// the serial transport only carries bridge transmitters
	p := newProgram(testConfig(t, "dexcomg5", "4G1234"))
	codes := make(chan int, 1)
	p.exit = func(code int) { codes <- code }

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case code := <-codes:
		if code != 1 {
			t.Errorf("Expected exit code 1, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected a failed session to end the process")
	}
}

func TestStopDoesNotExit(t *testing.T) {
	p := newProgram(testConfig(t, "xbridge", "6DNL5"))
	codes := make(chan int, 1)
	p.exit = func(code int) { codes <- code }

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		_ = p.Stop(nil)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	select {
	case code := <-codes:
		t.Errorf("Expected no exit on Stop, got code %d", code)
	default:
	}
}
