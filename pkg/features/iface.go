package features

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/netif"
	"github.com/psaab/swsh/pkg/runcfg"
	"github.com/psaab/swsh/pkg/shell"
)

// ModeInterface is the interface configuration submode.
const ModeInterface = "config-if"

const objInterface = "interface"

// Interface configures ports and reports their state.
type Interface struct {
	deps Deps
}

func (*Interface) Name() string { return "interface" }

func (f *Interface) Register(r *shell.Registrar) error {
	err := registerActions(r, map[string]shell.ActionFunc{
		"interface":       f.enter,
		"no-interface":    f.remove,
		"if-shutdown":     f.shutdown,
		"if-description":  f.description,
		"if-mtu":          f.mtu,
		"if-address":      f.address,
		"if-access-vlan":  f.accessVLAN,
		"if-default":      f.reset,
		"show-interfaces": f.show,
	})
	if err != nil {
		return err
	}
	if err := r.Grammar.RegisterObjectType(objInterface,
		"access-vlan", "description", "dhcp-request", "ip-address", "mtu", "shutdown"); err != nil {
		return err
	}
	if err := r.Grammar.RegisterCompletion("interfaces", f.complete); err != nil {
		return err
	}
	if err := r.Grammar.RegisterDataHandler("interface-address", hostAddress); err != nil {
		return err
	}
	return r.RunCfg.Register(runcfg.Provider{
		Name:  "interface",
		Order: 2000,
		Help:  "Interface configuration",
		Emit:  f.emit,
		Args: []grammar.NodeDesc{{Optional: []grammar.NodeDesc{
			{Field: "name", Type: "word", Completion: "interfaces", Help: "Interface name"},
		}}},
	})
}

// names returns the kernel and configured interface names, ordered.
func (f *Interface) names() []string {
	set := make(map[string]bool)
	for _, n := range netif.Names(f.deps.Links) {
		set[n] = true
	}
	f.deps.Store.View(func(st *configstore.State) {
		for n := range st.Interfaces {
			set[n] = true
		}
	})
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, configstore.CompareInterfaceNames)
	return out
}

// complete offers known interfaces. Inside a list the already typed
// elements are kept as the candidate prefix.
func (f *Interface) complete(req grammar.CompletionRequest) []grammar.Candidate {
	base := ""
	if i := strings.LastIndexByte(req.Partial, ','); i >= 0 {
		base = req.Partial[:i+1]
	}
	var out []grammar.Candidate
	for _, n := range f.names() {
		out = append(out, grammar.Candidate{Text: base + n, Help: "Known interface", Kind: grammar.CandDynamic})
	}
	return out
}

// hostAddress rejects prefixes whose address is the network itself.
func hostAddress(d grammar.Data, field string, v any) error {
	p, ok := v.(netip.Prefix)
	if !ok {
		return fmt.Errorf("not an address/prefix-length")
	}
	if host := p.Addr().BitLen() - p.Bits(); host > 1 && p.Masked().Addr() == p.Addr() {
		return fmt.Errorf("%s is a network address", p)
	}
	d[field] = p
	return nil
}

func (f *Interface) enter(c *shell.Call) error {
	d := c.Data()
	names := d.Strings("names")
	if len(names) == 0 {
		return incomplete(c)
	}
	err := f.deps.Store.Update(func(st *configstore.State) error {
		for _, n := range names {
			ifc := st.Interface(n)
			if d.Has("shutdown") {
				ifc.Shutdown = true
			}
		}
		return nil
	})
	if err != nil || d.Has("shutdown") {
		return err
	}
	return c.Session.Stack.Push(mode.Frame{
		Mode:    ModeInterface,
		ObjType: objInterface,
		ObjKey:  strings.Join(names, ","),
		Data:    map[string]any{"names": names},
		Exit:    f.prune,
	})
}

// prune drops interfaces left at their defaults when their submode is
// left, so selecting an interface alone does not add configuration.
func (f *Interface) prune(fr mode.Frame) error {
	names, _ := fr.Data["names"].([]string)
	return f.deps.Store.Update(func(st *configstore.State) error {
		for _, n := range names {
			if ifc, ok := st.Interfaces[n]; ok && isDefault(ifc) {
				delete(st.Interfaces, n)
			}
		}
		return nil
	})
}

func isDefault(ifc *configstore.Interface) bool {
	return ifc.Description == "" && !ifc.Shutdown && ifc.MTU == 0 &&
		!ifc.Address.IsValid() && ifc.AccessVLAN == 0 && len(ifc.DHCPRequest) == 0
}

func (f *Interface) remove(c *shell.Call) error {
	names := c.Data().Strings("names")
	return f.deps.Store.Update(func(st *configstore.State) error {
		for _, n := range names {
			if _, ok := st.Interfaces[n]; !ok {
				return grammar.Actionf("interface %s is not configured", n)
			}
			delete(st.Interfaces, n)
		}
		return nil
	})
}

// each applies fn to every interface of the current submode.
func (f *Interface) each(c *shell.Call, fn func(ifc *configstore.Interface) error) error {
	names := objNames(c)
	if len(names) == 0 {
		return grammar.Semanticf("no interface selected")
	}
	return f.deps.Store.Update(func(st *configstore.State) error {
		for _, n := range names {
			if err := fn(st.Interface(n)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *Interface) shutdown(c *shell.Call) error {
	return f.each(c, func(ifc *configstore.Interface) error {
		ifc.Shutdown = !c.Negated()
		return nil
	})
}

func (f *Interface) description(c *shell.Call) error {
	text := c.Data().String("text")
	if text == "" && !c.Negated() {
		return incomplete(c)
	}
	if len(text) > 240 {
		return grammar.Actionf("description is longer than 240 characters")
	}
	return f.each(c, func(ifc *configstore.Interface) error {
		ifc.Description = text
		return nil
	})
}

func (f *Interface) mtu(c *shell.Call) error {
	n, ok := c.Data().Int("mtu")
	if !ok && !c.Negated() {
		return incomplete(c)
	}
	if c.Negated() {
		n = 0
	}
	return f.each(c, func(ifc *configstore.Interface) error {
		ifc.MTU = int(n)
		return nil
	})
}

func (f *Interface) address(c *shell.Call) error {
	p, ok := c.Data()["address"].(netip.Prefix)
	if !ok && !c.Negated() {
		return incomplete(c)
	}
	if ok && !c.Negated() && len(objNames(c)) > 1 {
		return grammar.Semanticf("an address can only be set on a single interface")
	}
	if c.Negated() {
		p = netip.Prefix{}
	}
	return f.each(c, func(ifc *configstore.Interface) error {
		ifc.Address = p
		return nil
	})
}

func (f *Interface) accessVLAN(c *shell.Call) error {
	n, ok := c.Data().Int("vlan")
	if !ok && !c.Negated() {
		return incomplete(c)
	}
	if c.Negated() {
		n = 0
	}
	return f.each(c, func(ifc *configstore.Interface) error {
		ifc.AccessVLAN = int(n)
		return nil
	})
}

// reset restores one setting, named by an object field, to its default.
func (f *Interface) reset(c *shell.Call) error {
	if t := c.String("type"); t != objInterface {
		return grammar.Semanticf("default is not supported for %q", t)
	}
	setting := c.Data().String("setting")
	return f.each(c, func(ifc *configstore.Interface) error {
		switch setting {
		case "access-vlan":
			ifc.AccessVLAN = 0
		case "description":
			ifc.Description = ""
		case "dhcp-request":
			ifc.DHCPRequest = nil
		case "ip-address":
			ifc.Address = netip.Prefix{}
		case "mtu":
			ifc.MTU = 0
		case "shutdown":
			ifc.Shutdown = false
		default:
			return grammar.Actionf("unknown setting %q", setting)
		}
		return nil
	})
}

type ifaceStatus struct {
	name   string
	cfg    configstore.Interface
	link   netif.Link
	inKern bool
}

func (s ifaceStatus) state() string {
	switch {
	case s.cfg.Shutdown:
		return "administratively down"
	case !s.inKern:
		return "not present"
	}
	return s.link.State()
}

func (s ifaceStatus) mtu() int {
	switch {
	case s.cfg.MTU != 0:
		return s.cfg.MTU
	case s.link.MTU != 0:
		return s.link.MTU
	}
	return 1500
}

func (f *Interface) status() ([]ifaceStatus, error) {
	links, err := f.deps.Links.Links()
	if err != nil {
		return nil, &grammar.ActionError{Err: err}
	}
	byName := make(map[string]netif.Link, len(links))
	for _, l := range links {
		byName[l.Name] = l
	}
	var out []ifaceStatus
	f.deps.Store.View(func(st *configstore.State) {
		for _, n := range f.namesLocked(st, links) {
			s := ifaceStatus{name: n}
			if ifc, ok := st.Interfaces[n]; ok {
				s.cfg = *ifc
			}
			s.link, s.inKern = byName[n]
			out = append(out, s)
		}
	})
	return out, nil
}

func (f *Interface) namesLocked(st *configstore.State, links []netif.Link) []string {
	set := make(map[string]bool)
	for _, l := range links {
		set[l.Name] = true
	}
	for n := range st.Interfaces {
		set[n] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, configstore.CompareInterfaceNames)
	return out
}

func (f *Interface) show(c *shell.Call) error {
	d := c.Data()
	all, err := f.status()
	if err != nil {
		return err
	}
	if name := d.String("name"); name != "" {
		i := slices.IndexFunc(all, func(s ifaceStatus) bool { return s.name == name })
		if i < 0 {
			return grammar.Actionf("interface %s does not exist", name)
		}
		all = all[i : i+1]
	}
	if d.Has("brief") {
		t := newTable(c.Out, "Interface", "Status", "VLAN", "MTU", "Address", "Description")
		for _, s := range all {
			vlan, addr := "-", "-"
			if s.cfg.AccessVLAN != 0 {
				vlan = fmt.Sprint(s.cfg.AccessVLAN)
			}
			if s.cfg.Address.IsValid() {
				addr = s.cfg.Address.String()
			}
			t.AppendRow([]any{s.name, s.state(), vlan, s.mtu(), addr, s.cfg.Description})
		}
		t.Render()
		return nil
	}
	for _, s := range all {
		c.Printf("%s is %s\n", s.name, s.state())
		if s.cfg.Description != "" {
			c.Printf("  Description: %s\n", s.cfg.Description)
		}
		if s.link.MAC != "" {
			c.Printf("  Hardware address is %s\n", s.link.MAC)
		}
		c.Printf("  MTU %d bytes\n", s.mtu())
		if s.cfg.Address.IsValid() {
			c.Printf("  Internet address is %s\n", s.cfg.Address)
		}
		if s.cfg.AccessVLAN != 0 {
			c.Printf("  Access VLAN %d\n", s.cfg.AccessVLAN)
		}
		if len(s.cfg.DHCPRequest) > 0 {
			c.Printf("  DHCP client requests %s\n", strings.Join(s.cfg.DHCPRequest, ", "))
		}
	}
	return nil
}

func (f *Interface) emit(ec *runcfg.EmitContext) (string, error) {
	only := ec.Args.String("name")
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		first := true
		for _, n := range st.InterfaceNames() {
			if only != "" && n != only {
				continue
			}
			if !first {
				b.WriteString(runcfg.Separator + "\n")
			}
			first = false
			writeInterface(&b, st.Interfaces[n])
		}
	})
	return b.String(), nil
}

func writeInterface(b *strings.Builder, ifc *configstore.Interface) {
	fmt.Fprintf(b, "interface %s\n", ifc.Name)
	if ifc.Description != "" {
		fmt.Fprintf(b, " description %s\n", shell.Quote(ifc.Description))
	}
	if ifc.MTU != 0 {
		fmt.Fprintf(b, " mtu %d\n", ifc.MTU)
	}
	if ifc.Address.IsValid() {
		fmt.Fprintf(b, " ip address %s\n", ifc.Address)
	}
	if ifc.AccessVLAN != 0 {
		fmt.Fprintf(b, " switchport access vlan %d\n", ifc.AccessVLAN)
	}
	for _, o := range ifc.DHCPRequest {
		fmt.Fprintf(b, " ip dhcp client request %s\n", o)
	}
	if ifc.Shutdown {
		b.WriteString(" shutdown\n")
	}
}
