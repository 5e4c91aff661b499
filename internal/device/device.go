// Package device reports best-effort facts about the local host. Every accessor degrades
// to an empty value instead of failing.
package device

import (
	"net"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Info interface {
	LocalIP() string
	MACs() []string
}

// System reads the host's network interfaces.
type System struct{}

// LocalIP returns the first non-loopback IPv4 address of an up interface.
func (System) LocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("list interfaces")
		return ""
	}
	for _, ifc := range usable(ifaces) {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != "" {
			return ip
		}
	}
	return ""
}

// MACs lists hardware addresses of up, non-loopback interfaces, upper-cased and de-duplicated.
func (System) MACs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("list interfaces")
		return nil
	}
	macs := lo.FilterMap(usable(ifaces), func(ifc net.Interface, _ int) (string, bool) {
		if len(ifc.HardwareAddr) == 0 {
			return "", false
		}
		return strings.ToUpper(ifc.HardwareAddr.String()), true
	})
	return lo.Uniq(macs)
}

func usable(ifaces []net.Interface) []net.Interface {
	return lo.Filter(ifaces, func(ifc net.Interface, _ int) bool {
		return ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0
	})
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

// FirstMAC is MACs()[0] or "".
func FirstMAC(i Info) string {
	macs := i.MACs()
	if len(macs) == 0 {
		return ""
	}
	return macs[0]
}

// Static returns fixed values. Useful for tests and hosts where introspection is unwanted.
type Static struct {
	IP      string
	MACList []string
}

func (s Static) LocalIP() string { return s.IP }
func (s Static) MACs() []string  { return s.MACList }
