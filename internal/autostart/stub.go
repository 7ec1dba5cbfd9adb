//go:build !windows

package autostart

func IsEnabled(_ string) (bool, error) {
	return false, nil
}

func Enable(_ Entry) error {
	return nil
}

func Disable(_ string) error {
	return nil
}
