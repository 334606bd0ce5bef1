package utils

import (
	"fmt"
	"strings"
)

// MaxDeviceNameLen is IFNAMSIZ minus the terminating NUL
const MaxDeviceNameLen = 15

// ValidateDeviceName checks a name against the kernel's rules for interface names
func ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("device name is required")
	}
	if len(name) > MaxDeviceNameLen {
		return fmt.Errorf("device name %q longer than %d bytes", name, MaxDeviceNameLen)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid device name %q", name)
	}
	if strings.ContainsAny(name, "/:\x00") || strings.IndexFunc(name, isSpace) >= 0 {
		return fmt.Errorf("invalid device name %q", name)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
