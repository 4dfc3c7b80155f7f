//go:build !linux && !windows

package devserver

import "net"

func reuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
