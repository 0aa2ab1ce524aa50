//go:build !linux && !darwin && !windows

package bluetooth

func newTinyGoCentral(link *Link, opts Options) (Central, error) {
	return nil, ErrNotSupported
}
