//go:build linux || darwin || freebsd || netbsd || openbsd

package hostinfo

import (
	"golang.org/x/sys/unix"
)

func uname() (Info, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return Info{}, err
	}
	return Info{
		System:  unix.ByteSliceToString(u.Sysname[:]),
		Node:    unix.ByteSliceToString(u.Nodename[:]),
		Release: unix.ByteSliceToString(u.Release[:]),
		Version: unix.ByteSliceToString(u.Version[:]),
		Machine: unix.ByteSliceToString(u.Machine[:]),
	}, nil
}
