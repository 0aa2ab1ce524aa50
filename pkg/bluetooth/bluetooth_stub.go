//go:build !linux

package bluetooth

import log "github.com/sirupsen/logrus"

// newGattCentral reports that raw HCI access is only available on Linux
func newGattCentral(link *Link, opts Options) (Central, error) {
	log.Warn("HCI transport is only supported on Linux, use the bluez or serial transport")
	return nil, ErrNotSupported
}
