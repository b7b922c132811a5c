// Package platform classifies the host operating system into the small,
// closed set of platform classes panmk distinguishes between when choosing
// rc-file locations and viewer launch commands.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Class is a platform class. The zero value is POSIX, the fallback for any
// system that is not recognised.
type Class int

// Supported platform classes.
const (
	POSIX Class = iota
	Windows
	Cygwin
	Darwin
)

// fragments maps a system-identifier fragment to its class. Order matters:
// "cygwin" identifiers frequently also contain "windows".
var fragments = []struct {
	fragment string
	class    Class
}{
	{"cygwin", Cygwin},
	{"windows", Windows},
	{"darwin", Darwin},
}

// Detect classifies a system identifier such as runtime.GOOS or the output of
// `uname -s`. Unknown identifiers are POSIX.
func Detect(system string) Class {
	system = strings.ToLower(system)

	for _, p := range fragments {
		if strings.Contains(system, p.fragment) {
			return p.class
		}
	}

	return POSIX
}

// Current returns the class of the running binary.
func Current() Class {
	return Detect(runtime.GOOS)
}

// Parse converts a class name as written in configuration ("posix",
// "windows", "cygwin", "darwin"). An empty name yields Current().
func Parse(name string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return Current(), nil
	case "posix":
		return POSIX, nil
	case "windows":
		return Windows, nil
	case "cygwin":
		return Cygwin, nil
	case "darwin":
		return Darwin, nil
	default:
		return POSIX, fmt.Errorf("unknown platform %q: must be one of posix, windows, cygwin, darwin", name)
	}
}

// String returns the configuration name of the class.
func (c Class) String() string {
	switch c {
	case Windows:
		return "windows"
	case Cygwin:
		return "cygwin"
	case Darwin:
		return "darwin"
	default:
		return "posix"
	}
}
