// Package discovery implements the discover_devices control operation of
// spec.md §6: a bounded-time mDNS browse for acquisition hardware
// advertising itself on the local network. It browses with a
// zeroconf.Resolver and consolidates results by key, over the set of
// service names BCI acquisition hardware and LSL relays actually advertise.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/miekg/dns"

	"github.com/identity-wael/neurascale-sub000/internal/device"
)

// serviceNames are the mDNS service types probed for BCI-capable hosts:
// OpenBCI's WiFi shield, an LSL relay, and a generic BrainFlow bridge.
var serviceNames = map[string]device.Kind{
	"_openbci._tcp": device.KindCyton,
	"_lsl._tcp":     device.KindLSL,
	"_brainflow._tcp": device.KindBrainFlow,
}

// ErrDiscoveryFailed wraps any resolver/browse error into the taxonomy
// spec.md §6 names for discover_devices.
var ErrDiscoveryFailed = fmt.Errorf("discovery: discovery failed")

// Found describes one discovered host, pre-validated as a syntactically
// well-formed DNS hostname.
type Found struct {
	Kind      device.Kind
	Instance  string
	Hostname  string
	Addresses []net.IP
	Port      int
}

// Discover browses every configured service name for up to timeout,
// merging results by (hostname, port). A malformed hostname from a
// misbehaving responder is dropped rather than surfaced, since spec.md's
// device identity is keyed on hostname and a malformed one cannot route.
func Discover(ctx context.Context, timeout time.Duration, methods []string) ([]Found, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wanted := serviceNames
	if len(methods) > 0 {
		wanted = filterServices(methods)
	}

	var mu sync.Mutex
	resultMap := make(map[string]Found)
	var wg sync.WaitGroup

	for svc, kind := range wanted {
		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func(kind device.Kind) {
			defer wg.Done()
			for {
				select {
				case e, ok := <-entries:
					if !ok {
						return
					}
					if e == nil || !isValidHostname(e.HostName) {
						continue
					}
					addrs := append(append([]net.IP{}, e.AddrIPv4...), e.AddrIPv6...)
					key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
					mu.Lock()
					resultMap[key] = Found{
						Kind:      kind,
						Instance:  strings.ReplaceAll(e.Instance, `\ `, " "),
						Hostname:  e.HostName,
						Addresses: addrs,
						Port:      e.Port,
					}
					mu.Unlock()
				case <-browseCtx.Done():
					return
				}
			}
		}(kind)

		if err := resolver.Browse(browseCtx, svc, "local.", entries); err != nil {
			cancel()
			wg.Wait()
			return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
		}
	}

	wg.Wait()

	out := make([]Found, 0, len(resultMap))
	for _, f := range resultMap {
		out = append(out, f)
	}
	return out, nil
}

func filterServices(methods []string) map[string]device.Kind {
	want := make(map[string]bool, len(methods))
	for _, m := range methods {
		want[strings.ToLower(m)] = true
	}
	out := make(map[string]device.Kind)
	for svc, kind := range serviceNames {
		if want[string(kind)] {
			out[svc] = kind
		}
	}
	if len(out) == 0 {
		return serviceNames
	}
	return out
}

// isValidHostname uses miekg/dns's name parser to reject malformed mDNS
// responses before they are surfaced as discovered devices.
func isValidHostname(name string) bool {
	if name == "" {
		return false
	}
	_, ok := dns.IsDomainName(name)
	return ok
}
