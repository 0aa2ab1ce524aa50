//go:build linux

package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paypal/gatt"
	log "github.com/sirupsen/logrus"
)

// DefaultClientOptions contains the default options for the HCI central
var DefaultClientOptions = []gatt.Option{
	gatt.LnxMaxConnections(1),
	gatt.LnxDeviceID(-1, true),
}

// gattCentral drives a transmitter through a raw HCI socket
type gattCentral struct {
	link *Link
	opts Options

	device gatt.Device

	mutex        sync.Mutex
	pending      gatt.Peripheral
	connectTimer *time.Timer
}

func newGattCentral(link *Link, opts Options) (Central, error) {
	return &gattCentral{link: link, opts: opts}, nil
}

func (g *gattCentral) State() ConnectionState {
	return g.link.State()
}

// Run opens the HCI device and services the transmitter until ctx is done
func (g *gattCentral) Run(ctx context.Context) error {
	d, err := gatt.NewDevice(DefaultClientOptions...)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	g.device = d

	d.Handle(
		gatt.PeripheralDiscovered(g.onDiscovered),
		gatt.PeripheralConnected(g.onConnected),
		gatt.PeripheralDisconnected(g.onDisconnected),
	)

	if err := d.Init(g.onStateChanged); err != nil {
		return fmt.Errorf("could not init bluetooth: %w", err)
	}

	<-ctx.Done()

	g.mutex.Lock()
	p := g.pending
	g.mutex.Unlock()
	if p != nil {
		d.CancelConnection(p)
	}
	d.StopScanning()
	g.link.SetState(StateIdle)
	return nil
}

func (g *gattCentral) onStateChanged(d gatt.Device, s gatt.State) {
	log.Infof("pkg bluetooth; adapter state: %s", s)
	if tx, _ := g.link.bound(); tx != nil {
		tx.BluetoothStateChanged(s.String())
	}

	switch s {
	case gatt.StatePoweredOn:
		g.scan()
	default:
		d.StopScanning()
		g.link.SetState(StateIdle)
	}
}

func (g *gattCentral) scan() {
	var services []gatt.UUID
	_, profile := g.link.bound()
	if adv := profile.AdvertisementUUID; adv != "" {
		services = append(services, gatt.MustParseUUID(adv))
	}
	log.Debugf("pkg bluetooth; scanning for %v", services)
	g.link.SetState(StateScanning)
	g.device.Scan(services, true)
}

func (g *gattCentral) onDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	if g.link.State() != StateScanning {
		return
	}

	tx, _ := g.link.bound()
	if tx == nil || !ShouldConnect(tx, g.opts, p.ID(), a.LocalName, time.Now()) {
		return
	}

	log.Infof("pkg bluetooth; connecting to %s (%s, rssi %d)", a.LocalName, p.ID(), rssi)
	g.device.StopScanning()
	g.link.SetState(StateConnecting)

	g.mutex.Lock()
	g.pending = p
	g.connectTimer = time.AfterFunc(g.opts.connectTimeout(), func() {
		g.connectTimedOut(p)
	})
	g.mutex.Unlock()

	g.device.Connect(p)
}

func (g *gattCentral) connectTimedOut(p gatt.Peripheral) {
	if g.link.State() != StateConnecting {
		return
	}
	log.Warnf("pkg bluetooth; connection to %s timed out", p.ID())
	g.device.CancelConnection(p)
	g.scan()
}

func (g *gattCentral) stopTimer() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.connectTimer != nil {
		g.connectTimer.Stop()
		g.connectTimer = nil
	}
}

func (g *gattCentral) onConnected(p gatt.Peripheral, err error) {
	g.stopTimer()
	if err != nil {
		log.Errorf("pkg bluetooth; failed to connect to %s: %v", p.ID(), err)
		g.scan()
		return
	}
	log.Tracef("pkg bluetooth; ** connected: %s", p.ID())

	radio, err := g.discover(p)
	if err != nil {
		log.Errorf("pkg bluetooth; %v", err)
		g.device.CancelConnection(p)
		return
	}

	g.link.Attach(radio)
	g.link.Connected(p.ID(), p.Name())
}

func (g *gattCentral) onDisconnected(p gatt.Peripheral, err error) {
	log.Tracef("pkg bluetooth; ** disconnect: %s", p.ID())
	g.stopTimer()

	g.mutex.Lock()
	g.pending = nil
	g.mutex.Unlock()

	g.link.Disconnected(err)
	g.scan()
}

// discover finds the characteristics of the transmitter service
func (g *gattCentral) discover(p gatt.Peripheral) (*gattRadio, error) {
	_, profile := g.link.bound()
	serviceUUID := gatt.MustParseUUID(profile.ServiceUUID)

	services, err := p.DiscoverServices([]gatt.UUID{serviceUUID})
	if err != nil {
		return nil, fmt.Errorf("could not discover services: %w", err)
	}

	radio := &gattRadio{
		device:     g.device,
		peripheral: p,
		chars:      make(map[string]*gatt.Characteristic),
		deliver:    g.link.Deliver,
	}

	for _, s := range services {
		if !s.UUID().Equal(serviceUUID) {
			continue
		}
		chars, err := p.DiscoverCharacteristics(nil, s)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics: %w", err)
		}
		for _, c := range chars {
			for _, uuid := range profile.Characteristics {
				if c.UUID().Equal(gatt.MustParseUUID(uuid)) {
					radio.chars[strings.ToUpper(uuid)] = c
				}
			}
		}
	}

	if len(radio.chars) == 0 {
		return nil, fmt.Errorf("could not find service %s on %s", profile.ServiceUUID, p.ID())
	}
	return radio, nil
}

// gattRadio is a connected peripheral
type gattRadio struct {
	device     gatt.Device
	peripheral gatt.Peripheral
	chars      map[string]*gatt.Characteristic
	deliver    func(uuid string, data []byte)
}

func (r *gattRadio) char(uuid string) (*gatt.Characteristic, error) {
	c, ok := r.chars[strings.ToUpper(uuid)]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not discovered", uuid)
	}
	return c, nil
}

func (r *gattRadio) WriteCharacteristic(uuid string, data []byte, withoutResponse bool) error {
	c, err := r.char(uuid)
	if err != nil {
		return err
	}
	return r.peripheral.WriteCharacteristic(c, data, withoutResponse)
}

func (r *gattRadio) EnableNotifications(uuid string) error {
	c, err := r.char(uuid)
	if err != nil {
		return err
	}
	if _, err := r.peripheral.DiscoverDescriptors(nil, c); err != nil {
		return fmt.Errorf("could not discover descriptors: %w", err)
	}
	return r.peripheral.SetNotifyValue(c, func(_ *gatt.Characteristic, data []byte, err error) {
		if err != nil {
			log.Warnf("pkg bluetooth; notification error on %s: %v", uuid, err)
			return
		}
		r.deliver(uuid, data)
	})
}

func (r *gattRadio) Close() error {
	r.device.CancelConnection(r.peripheral)
	return nil
}
