//go:build !unix

package server

import "syscall"

func listenControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
