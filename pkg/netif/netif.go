// Package netif reports the kernel's network interfaces.
package netif

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/vishvananda/netlink"
)

// Link is the inventory view of one interface.
type Link struct {
	Name    string
	Index   int
	Kind    string
	MTU     int
	MAC     string
	AdminUp bool
	OperUp  bool
}

// State renders the admin/oper state as "up", "down" or
// "administratively down".
func (l Link) State() string {
	switch {
	case !l.AdminUp:
		return "administratively down"
	case l.OperUp:
		return "up"
	}
	return "down"
}

// Source lists interfaces.
type Source interface {
	Links() ([]Link, error)
}

// linkLister is the subset of netlink used here.
type linkLister interface {
	LinkList() ([]netlink.Link, error)
}

type pkgLister struct{}

func (pkgLister) LinkList() ([]netlink.Link, error) { return netlink.LinkList() }

// Netlink lists interfaces through rtnetlink.
type Netlink struct {
	nl linkLister
	// SkipLoopback hides "lo".
	SkipLoopback bool
}

// NewNetlink returns a Source backed by the kernel.
func NewNetlink() *Netlink {
	return &Netlink{nl: pkgLister{}, SkipLoopback: true}
}

// Links implements Source. Links are sorted by name.
func (n *Netlink) Links() ([]Link, error) {
	links, err := n.nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	out := make([]Link, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if n.SkipLoopback && attrs.Name == "lo" {
			continue
		}
		l := Link{
			Name:    attrs.Name,
			Index:   attrs.Index,
			Kind:    link.Type(),
			MTU:     attrs.MTU,
			AdminUp: attrs.Flags&net.FlagUp != 0,
			OperUp:  attrs.OperState == netlink.OperUp || attrs.OperState == netlink.OperUnknown && attrs.Flags&net.FlagRunning != 0,
		}
		if len(attrs.HardwareAddr) > 0 {
			l.MAC = attrs.HardwareAddr.String()
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Link) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Static is a fixed inventory.
type Static []Link

// Links implements Source.
func (s Static) Links() ([]Link, error) { return slices.Clone(s), nil }

// Names returns the interface names of src, or nil on error.
func Names(src Source) []string {
	links, err := src.Links()
	if err != nil {
		return nil
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names
}

// Find returns the link called name.
func Find(src Source, name string) (Link, bool, error) {
	links, err := src.Links()
	if err != nil {
		return Link{}, false, err
	}
	for _, l := range links {
		if l.Name == name {
			return l, true, nil
		}
	}
	return Link{}, false, nil
}
