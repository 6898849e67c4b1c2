// Package kernel exposes kernel-version gating for pkg/capture and
// pkg/connect's TCP_INFO enrichment path.
//
// Adapted from runZeroInc/sockstats's pkg/kernel: the teacher's own
// kernel_unix.go hand-rolled uname(2) bindings and a VersionInfo type
// that duplicate what docker/docker/pkg/parsers/kernel — already a
// teacher dependency via pkg/linux/init.go — provides directly. Rather
// than re-implement uname(2) parsing a second time, this package is a
// thin re-export over that dependency.
package kernel

import dockerkernel "github.com/docker/docker/pkg/parsers/kernel"

type VersionInfo = dockerkernel.VersionInfo

// GetKernelVersion returns the running kernel's parsed version.
func GetKernelVersion() (*VersionInfo, error) {
	return dockerkernel.GetKernelVersion()
}

// CheckKernelVersion reports whether the running kernel is at least
// k.major.minor.
func CheckKernelVersion(k, major, minor int) (bool, error) {
	v, err := GetKernelVersion()
	if err != nil {
		return false, err
	}
	cmp := dockerkernel.CompareKernelVersion(*v, dockerkernel.VersionInfo{Kernel: k, Major: major, Minor: minor})
	return cmp >= 0, nil
}

// SupportsModernRawSocketOptions reports whether the kernel is at
// least 4.14. pkg/capture's Linux raw-socket backend uses it only to
// choose SO_RCVBUFFORCE (>= 4.14) or SO_RCVBUF (older) when sizing the
// receive buffer; the raw-socket backend is opened either way.
func SupportsModernRawSocketOptions() bool {
	ok, err := CheckKernelVersion(4, 14, 0)
	return err == nil && ok
}
