//go:build linux || darwin || windows

package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// tinyGoCentral drives a transmitter through the OS bluetooth stack
type tinyGoCentral struct {
	link    *Link
	opts    Options
	adapter *bluetooth.Adapter

	mutex        sync.Mutex
	disconnected chan struct{}
}

func newTinyGoCentral(link *Link, opts Options) (Central, error) {
	return &tinyGoCentral{
		link:    link,
		opts:    opts,
		adapter: bluetooth.DefaultAdapter,
	}, nil
}

func (c *tinyGoCentral) State() ConnectionState {
	return c.link.State()
}

type found struct {
	address bluetooth.Address
	name    string
}

// Run connects to the transmitter every time it shows up until ctx is done
func (c *tinyGoCentral) Run(ctx context.Context) error {
	log.Info("pkg bluetooth; enabling adapter")
	if err := c.adapter.Enable(); err != nil {
		return fmt.Errorf("could not enable adapter: %w", err)
	}
	if tx, _ := c.link.bound(); tx != nil {
		tx.BluetoothStateChanged("poweredOn")
	}

	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		c.mutex.Lock()
		ch := c.disconnected
		c.disconnected = nil
		c.mutex.Unlock()
		if ch != nil {
			close(ch)
		}
	})

	for ctx.Err() == nil {
		target, err := c.scan(ctx)
		if err != nil {
			return err
		}
		if target == nil {
			break
		}

		done, err := c.connect(ctx, *target)
		if err != nil {
			log.Errorf("pkg bluetooth; %v", err)
			continue
		}

		select {
		case <-done:
		case <-ctx.Done():
			_ = c.link.Disconnect()
		}
		c.link.Disconnected(nil)
	}

	c.link.SetState(StateIdle)
	return nil
}

// scan blocks until the transmitter is seen or ctx is done
func (c *tinyGoCentral) scan(ctx context.Context) (*found, error) {
	tx, profile := c.link.bound()
	if tx == nil {
		return nil, ErrNotConnected
	}

	var adv bluetooth.UUID
	filterAdv := profile.AdvertisementUUID != ""
	if filterAdv {
		u, err := bluetooth.ParseUUID(strings.ToLower(profile.AdvertisementUUID))
		if err != nil {
			return nil, fmt.Errorf("invalid advertisement uuid: %w", err)
		}
		adv = u
	}

	c.link.SetState(StateScanning)
	result := make(chan found, 1)
	stop := context.AfterFunc(ctx, func() {
		_ = c.adapter.StopScan()
	})
	defer stop()

	err := c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if filterAdv && !r.HasServiceUUID(adv) {
			return
		}
		name := r.LocalName()
		if !ShouldConnect(tx, c.opts, r.Address.String(), name, time.Now()) {
			return
		}
		select {
		case result <- found{address: r.Address, name: name}:
			_ = a.StopScan()
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	select {
	case f := <-result:
		return &f, nil
	default:
		return nil, nil
	}
}

func (c *tinyGoCentral) connect(ctx context.Context, target found) (<-chan struct{}, error) {
	log.Infof("pkg bluetooth; connecting to %s (%s)", target.name, target.address.String())
	c.link.SetState(StateConnecting)

	done := make(chan struct{})
	c.mutex.Lock()
	c.disconnected = done
	c.mutex.Unlock()

	type outcome struct {
		device bluetooth.Device
		err    error
	}
	connected := make(chan outcome, 1)
	go func() {
		d, err := c.adapter.Connect(target.address, bluetooth.ConnectionParams{})
		connected <- outcome{d, err}
	}()

	var device bluetooth.Device
	select {
	case o := <-connected:
		if o.err != nil {
			return nil, fmt.Errorf("failed to connect: %w", o.err)
		}
		device = o.device
	case <-time.After(c.opts.connectTimeout()):
		return nil, fmt.Errorf("connection to %s timed out", target.address.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	radio, err := c.discover(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	c.link.Attach(radio)
	c.link.Connected(target.address.String(), target.name)
	return done, nil
}

func (c *tinyGoCentral) discover(device bluetooth.Device) (*tinyGoRadio, error) {
	_, profile := c.link.bound()

	serviceUUID, err := bluetooth.ParseUUID(strings.ToLower(profile.ServiceUUID))
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid: %w", err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return nil, fmt.Errorf("could not discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("could not find service %s", profile.ServiceUUID)
	}

	radio := &tinyGoRadio{
		device:  device,
		chars:   make(map[string]bluetooth.DeviceCharacteristic),
		deliver: c.link.Deliver,
	}
	for _, service := range services {
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics: %w", err)
		}
		for _, char := range chars {
			for _, uuid := range profile.Characteristics {
				u, err := bluetooth.ParseUUID(strings.ToLower(uuid))
				if err == nil && char.UUID() == u {
					radio.chars[strings.ToUpper(uuid)] = char
				}
			}
		}
	}
	return radio, nil
}

// tinyGoRadio is a connected device
type tinyGoRadio struct {
	device  bluetooth.Device
	chars   map[string]bluetooth.DeviceCharacteristic
	deliver func(uuid string, data []byte)
}

func (r *tinyGoRadio) char(uuid string) (bluetooth.DeviceCharacteristic, error) {
	c, ok := r.chars[strings.ToUpper(uuid)]
	if !ok {
		return c, fmt.Errorf("characteristic %s not discovered", uuid)
	}
	return c, nil
}

func (r *tinyGoRadio) WriteCharacteristic(uuid string, data []byte, withoutResponse bool) error {
	c, err := r.char(uuid)
	if err != nil {
		return err
	}
	if withoutResponse {
		_, err = c.WriteWithoutResponse(data)
	} else {
		_, err = c.Write(data)
	}
	return err
}

func (r *tinyGoRadio) EnableNotifications(uuid string) error {
	c, err := r.char(uuid)
	if err != nil {
		return err
	}
	return c.EnableNotifications(func(buf []byte) {
		r.deliver(uuid, buf)
	})
}

func (r *tinyGoRadio) Close() error {
	return r.device.Disconnect()
}
