//go:build !unix

package remote

import "syscall"

func reuseAddrControl(network, address string, c syscall.RawConn) error { return nil }
