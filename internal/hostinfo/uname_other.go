//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package hostinfo

import (
	"os"
	"runtime"
)

func uname() (Info, error) {
	node, err := os.Hostname()
	if err != nil {
		return Info{}, err
	}
	return Info{
		System:  runtime.GOOS,
		Node:    node,
		Release: "unknown",
		Version: "unknown",
		Machine: runtime.GOARCH,
	}, nil
}
