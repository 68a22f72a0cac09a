package configstore

import (
	"maps"
	"net/netip"
	"slices"
)

// State is the device configuration edited by command actions.
type State struct {
	Hostname   string
	BannerMOTD string
	Users      map[string]User
	Interfaces map[string]*Interface
	ACLs       map[string]*ACL
	// Features holds the enabled optional services (ntp, snmp, lldp).
	Features    map[string]bool
	NTPServers  []string
	NameServers []netip.Addr
	DomainName  string
	// Communities maps an SNMP community to its access, "ro" or "rw".
	Communities map[string]string
	LogHosts    []string
	LogLevel    string
}

// User is a local account.
type User struct {
	Name string
	Hash string
	Role string
}

// Interface is the configuration of one port.
type Interface struct {
	Name        string
	Description string
	Shutdown    bool
	MTU         int
	Address     netip.Prefix
	AccessVLAN  int
	// DHCPRequest lists the DHCP options the client requests, by name.
	DHCPRequest []string
}

// ACL is a named access list.
type ACL struct {
	Name    string
	Rules   []Rule
	Remarks []string
}

// Rule is one access-list entry.
type Rule struct {
	Seq    int
	Action string
	Proto  string
	Src    string
	Dst    string
}

// DefaultHostname is used until a hostname is configured.
const DefaultHostname = "switch"

// NewState returns the factory-default configuration.
func NewState() *State {
	return &State{
		Hostname:    DefaultHostname,
		Users:       make(map[string]User),
		Interfaces:  make(map[string]*Interface),
		ACLs:        make(map[string]*ACL),
		Features:    make(map[string]bool),
		Communities: make(map[string]string),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Users = maps.Clone(s.Users)
	c.Interfaces = make(map[string]*Interface, len(s.Interfaces))
	for k, v := range s.Interfaces {
		ifc := *v
		ifc.DHCPRequest = slices.Clone(v.DHCPRequest)
		c.Interfaces[k] = &ifc
	}
	c.ACLs = make(map[string]*ACL, len(s.ACLs))
	for k, v := range s.ACLs {
		c.ACLs[k] = &ACL{Name: v.Name, Rules: slices.Clone(v.Rules), Remarks: slices.Clone(v.Remarks)}
	}
	c.Features = maps.Clone(s.Features)
	c.NTPServers = slices.Clone(s.NTPServers)
	c.NameServers = slices.Clone(s.NameServers)
	c.Communities = maps.Clone(s.Communities)
	c.LogHosts = slices.Clone(s.LogHosts)
	return &c
}

// Interface returns the named interface, creating it when missing.
func (s *State) Interface(name string) *Interface {
	ifc, ok := s.Interfaces[name]
	if !ok {
		ifc = &Interface{Name: name}
		s.Interfaces[name] = ifc
	}
	return ifc
}

// ACL returns the named access list, creating it when missing.
func (s *State) ACL(name string) *ACL {
	a, ok := s.ACLs[name]
	if !ok {
		a = &ACL{Name: name}
		s.ACLs[name] = a
	}
	return a
}

// InterfaceNames returns the configured interface names in order.
func (s *State) InterfaceNames() []string {
	return slices.SortedFunc(maps.Keys(s.Interfaces), CompareInterfaceNames)
}

// SetRule inserts r, replacing a rule with the same sequence number, and
// keeps rules sorted.
func (a *ACL) SetRule(r Rule) {
	i, found := slices.BinarySearchFunc(a.Rules, r.Seq, func(e Rule, seq int) int { return e.Seq - seq })
	if found {
		a.Rules[i] = r
		return
	}
	a.Rules = slices.Insert(a.Rules, i, r)
}

// DeleteRule removes the rule with seq and reports whether it existed.
func (a *ACL) DeleteRule(seq int) bool {
	i, found := slices.BinarySearchFunc(a.Rules, seq, func(e Rule, seq int) int { return e.Seq - seq })
	if found {
		a.Rules = slices.Delete(a.Rules, i, i+1)
	}
	return found
}

// NextSeq returns the sequence number for an appended rule.
func (a *ACL) NextSeq() int {
	if len(a.Rules) == 0 {
		return 10
	}
	return (a.Rules[len(a.Rules)-1].Seq/10 + 1) * 10
}

// CompareInterfaceNames orders names by prefix and then by numeric suffix,
// so ethernet2 sorts before ethernet10.
func CompareInterfaceNames(a, b string) int {
	pa, na := splitIfName(a)
	pb, nb := splitIfName(b)
	if pa != pb {
		if pa < pb {
			return -1
		}
		return 1
	}
	if na != nb {
		return na - nb
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func splitIfName(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	n := 0
	for _, c := range s[i:] {
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			break
		}
	}
	return s[:i], n
}
