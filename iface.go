package main

import (
	"fmt"
	"net"

	"github.com/jackpal/gateway"
	"github.com/vishvananda/netlink"
)

// findDefaultInterface discovers the interface that carries traffic to the
// default gateway.
func findDefaultInterface() (string, error) {
	gatewayIP, err := gateway.DiscoverGateway()
	if err != nil {
		return "", fmt.Errorf("could not discover gateway: %w", err)
	}

	links, err := netlink.LinkList()
	if err != nil {
		return "", fmt.Errorf("could not list interfaces: %w", err)
	}

	for _, link := range links {
		attrs := link.Attrs()
		// Skip loopback and interfaces that are down
		if attrs.Flags&net.FlagUp == 0 || attrs.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if addr.IPNet != nil && addr.IPNet.Contains(gatewayIP) {
				return attrs.Name, nil
			}
		}
	}

	return "", fmt.Errorf("no interface found for gateway %s", gatewayIP)
}

// sourceAddress returns the first address of the named interface that
// matches the family of dst. "auto" selects the default-route interface.
func sourceAddress(name string, dst net.IP) (net.IP, error) {
	if name == "auto" {
		found, err := findDefaultInterface()
		if err != nil {
			return nil, err
		}
		name = found
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, WrapErrorWithContext("interface lookup", err, name)
	}

	family := netlink.FAMILY_V4
	if dst.To4() == nil {
		family = netlink.FAMILY_V6
	}
	addrs, err := netlink.AddrList(link, family)
	if err != nil {
		return nil, WrapErrorWithContext("address lookup", err, name)
	}
	for _, addr := range addrs {
		// Link-local IPv6 sources need a zone the socket layer does not track.
		if addr.IP.IsLinkLocalUnicast() {
			continue
		}
		appLogger.Debug("Using source address %s from %s", addr.IP, name)
		return addr.IP, nil
	}
	return nil, fmt.Errorf("interface %s has no usable address for %s", name, dst)
}
