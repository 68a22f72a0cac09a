package features

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/netif"
	"github.com/psaab/swsh/pkg/shell"
)

// dhcpOptions names the DHCPv4 options an interface may request.
var dhcpOptions = map[string]dhcpv4.OptionCode{
	"subnet-mask":            dhcpv4.OptionSubnetMask,
	"router":                 dhcpv4.OptionRouter,
	"domain-name-server":     dhcpv4.OptionDomainNameServer,
	"host-name":              dhcpv4.OptionHostName,
	"domain-name":            dhcpv4.OptionDomainName,
	"interface-mtu":          dhcpv4.OptionInterfaceMTU,
	"broadcast-address":      dhcpv4.OptionBroadcastAddress,
	"ntp-servers":            dhcpv4.OptionNTPServers,
	"vendor-specific":        dhcpv4.OptionVendorSpecificInformation,
	"tftp-server-name":       dhcpv4.OptionTFTPServerName,
	"bootfile-name":          dhcpv4.OptionBootfileName,
	"domain-search":          dhcpv4.OptionDNSDomainSearchList,
	"classless-static-route": dhcpv4.OptionClasslessStaticRoute,
}

func dhcpOptionNames() []string {
	out := make([]string, 0, len(dhcpOptions))
	for n := range dhcpOptions {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// dhcpOptionType accepts an option name or its numeric code.
var dhcpOptionType = &grammar.TypeDef{
	Name: "dhcp-option",
	Help: "DHCP option name or code",
	Parse: func(word string, _ grammar.Scope) (any, error) {
		if n, err := strconv.Atoi(word); err == nil {
			if n < 1 || n > 254 {
				return nil, errors.New("option code must be 1-254")
			}
			for name, code := range dhcpOptions {
				if int(code.Code()) == n {
					return name, nil
				}
			}
			return word, nil
		}
		w := strings.ToLower(word)
		if _, ok := dhcpOptions[w]; ok {
			return w, nil
		}
		var hits []string
		for _, name := range dhcpOptionNames() {
			if strings.HasPrefix(name, w) {
				hits = append(hits, name)
			}
		}
		switch len(hits) {
		case 0:
			return nil, fmt.Errorf("unknown DHCP option %q", word)
		case 1:
			return hits[0], nil
		}
		return nil, fmt.Errorf("ambiguous, could be %s", strings.Join(hits, ", "))
	},
	Values: func(grammar.Scope) []string { return dhcpOptionNames() },
}

// optionCode resolves a stored option name.
func optionCode(name string) dhcpv4.OptionCode {
	if c, ok := dhcpOptions[name]; ok {
		return c
	}
	n, _ := strconv.Atoi(name)
	return dhcpv4.GenericOptionCode(n)
}

// DHCP configures the options the DHCP client requests per interface.
type DHCP struct {
	deps Deps
}

func (*DHCP) Name() string { return "dhcp" }

func (f *DHCP) Register(r *shell.Registrar) error {
	if err := r.Grammar.RegisterType(dhcpOptionType); err != nil {
		return err
	}
	return registerActions(r, map[string]shell.ActionFunc{
		"dhcp-request":     f.request,
		"show-dhcp-client": f.show,
	})
}

func (f *DHCP) request(c *shell.Call) error {
	opt := c.Data().String("option")
	names := objNames(c)
	return f.deps.Store.Update(func(st *configstore.State) error {
		for _, n := range names {
			ifc := st.Interface(n)
			i := slices.Index(ifc.DHCPRequest, opt)
			switch {
			case c.Negated() && i >= 0:
				ifc.DHCPRequest = slices.Delete(ifc.DHCPRequest, i, i+1)
			case !c.Negated() && i < 0:
				ifc.DHCPRequest = append(ifc.DHCPRequest, opt)
			}
		}
		return nil
	})
}

// show prints the DISCOVER message the interface's client would send.
func (f *DHCP) show(c *shell.Call) error {
	name := c.Data().String("name")
	link, ok, err := netif.Find(f.deps.Links, name)
	if err != nil {
		return &grammar.ActionError{Err: err}
	}
	if !ok {
		return grammar.Actionf("interface %s does not exist", name)
	}
	hw, err := net.ParseMAC(link.MAC)
	if err != nil {
		return grammar.Actionf("interface %s has no hardware address", name)
	}
	var codes []dhcpv4.OptionCode
	f.deps.Store.View(func(st *configstore.State) {
		if ifc, ok := st.Interfaces[name]; ok {
			for _, o := range ifc.DHCPRequest {
				codes = append(codes, optionCode(o))
			}
		}
	})
	msg, err := dhcpv4.NewDiscovery(hw, dhcpv4.WithRequestedOptions(codes...))
	if err != nil {
		return &grammar.ActionError{Msg: "build DHCP discover", Err: err}
	}
	c.Printf("%s\n", msg.Summary())
	return nil
}
