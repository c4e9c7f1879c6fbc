package domain

import (
	"errors"
	"net"
	"net/netip"
	"strings"
	"unicode/utf8"
)

// Value objects. Each constructor validates and normalizes its input so that
// anything holding one of these types can trust it.

var (
	ErrInvalidDeviceName = errors.New("device name must be 1-100 characters")
	ErrInvalidIPAddress  = errors.New("invalid IP address")
	ErrInvalidMACAddress = errors.New("invalid MAC address")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidSSHPort    = errors.New("ssh port must be between 1 and 65535")
)

const maxDeviceNameLen = 100

type DeviceName string

func NewDeviceName(s string) (DeviceName, error) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > maxDeviceNameLen {
		return "", ErrInvalidDeviceName
	}
	return DeviceName(s), nil
}

func (n DeviceName) String() string { return string(n) }

type IPAddress struct {
	addr netip.Addr
}

func NewIPAddress(s string) (IPAddress, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || addr.Zone() != "" {
		return IPAddress{}, ErrInvalidIPAddress
	}
	return IPAddress{addr: addr.Unmap()}, nil
}

func (ip IPAddress) String() string { return ip.addr.String() }

func (ip IPAddress) Is6() bool { return ip.addr.Is6() }

// MACAddress is stored in lower-case colon-separated form (aa:bb:cc:dd:ee:ff).
type MACAddress string

func NewMACAddress(s string) (MACAddress, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil || len(hw) != 6 {
		return "", ErrInvalidMACAddress
	}
	return MACAddress(hw.String()), nil
}

func (m MACAddress) String() string { return string(m) }

type Email string

func NewEmail(s string) (Email, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') || at == len(s)-1 {
		return "", ErrInvalidEmail
	}
	if strings.ContainsAny(s, " \t\r\n") || !strings.Contains(s[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	return Email(s), nil
}

func (e Email) String() string { return string(e) }

func ValidateSSHPort(p int) error {
	if p < 1 || p > 65535 {
		return ErrInvalidSSHPort
	}
	return nil
}
