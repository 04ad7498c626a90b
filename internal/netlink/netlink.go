// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package netlink exposes the node's IP link as a connectivity flag plus a
// dialer that the message publisher carries its transport over.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotConnected is returned by the disabled network's dialer.
var ErrNotConnected = errors.New("netlink: network not connected")

// Dialer opens a transport connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Provider is the network capability of the node.
type Provider interface {
	// Connected reports whether the link is up with an address.
	Connected() bool
	// Handle returns the dialer transports are opened with.
	Handle() Dialer
}

// Host uses the host's network stack.
type Host struct {
	// Interface restricts the link check to one interface, e.g. "wlan0".
	// Empty means any non-loopback interface.
	Interface string
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// links lists the candidate interfaces with their addresses.
	links func() ([]link, error)
}

type link struct {
	name     string
	flags    net.Flags
	hasAddrs bool
}

// NewHost returns a provider for the host network stack.
func NewHost(iface string, dialTimeout time.Duration) *Host {
	return &Host{Interface: iface, DialTimeout: dialTimeout, links: hostLinks}
}

func (h *Host) String() string {
	if h.Interface == "" {
		return "host"
	}
	return fmt.Sprintf("host(%s)", h.Interface)
}

// Connected implements Provider.
func (h *Host) Connected() bool {
	links, err := h.links()
	if err != nil {
		return false
	}
	for _, l := range links {
		if h.Interface != "" {
			if l.name == h.Interface {
				return l.flags&net.FlagUp != 0 && l.hasAddrs
			}
			continue
		}
		if l.flags&net.FlagLoopback != 0 {
			continue
		}
		if l.flags&net.FlagUp != 0 && l.hasAddrs {
			return true
		}
	}
	return false
}

// Handle implements Provider.
func (h *Host) Handle() Dialer {
	return &net.Dialer{Timeout: h.DialTimeout, KeepAlive: 30 * time.Second}
}

func hostLinks() ([]link, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]link, 0, len(ifs))
	for _, i := range ifs {
		addrs, err := i.Addrs()
		out = append(out, link{name: i.Name, flags: i.Flags, hasAddrs: err == nil && len(addrs) > 0})
	}
	return out, nil
}

// Disabled is the provider of a node built without networking.
type Disabled struct{}

func (Disabled) String() string { return "disabled" }

// Connected implements Provider.
func (Disabled) Connected() bool { return false }

// Handle implements Provider.
func (Disabled) Handle() Dialer { return disabledDialer{} }

type disabledDialer struct{}

func (disabledDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return nil, ErrNotConnected
}
