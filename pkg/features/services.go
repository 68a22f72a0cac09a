package features

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/logging"
	"github.com/psaab/swsh/pkg/runcfg"
	"github.com/psaab/swsh/pkg/shell"
)

// Services toggles optional services and configures name resolution, time
// and remote logging.
type Services struct {
	deps Deps
}

func (*Services) Name() string { return "services" }

func (f *Services) Register(r *shell.Registrar) error {
	err := registerActions(r, map[string]shell.ActionFunc{
		"feature":        f.feature,
		"ntp-server":     f.ntpServer,
		"name-server":    f.nameServer,
		"domain-name":    f.domainName,
		"snmp-community": f.snmpCommunity,
		"logging-host":   f.loggingHost,
		"logging-level":  f.loggingLevel,
	})
	if err != nil {
		return err
	}
	err = r.Grammar.RegisterCompletion("snmp-communities", func(grammar.CompletionRequest) []grammar.Candidate {
		var names []string
		f.deps.Store.View(func(st *configstore.State) {
			names = slices.Sorted(maps.Keys(st.Communities))
		})
		return candidates(names, "Configured community")
	})
	if err != nil {
		return err
	}
	for _, p := range []runcfg.Provider{
		{Name: "feature", Order: 100, Help: "Enabled services", Emit: f.emitFeatures},
		{Name: "ip", Order: 1700, Help: "Name resolution", Emit: f.emitIP},
		{Name: "logging", Order: 3000, Help: "Remote logging", Emit: f.emitLogging},
		{Name: "ntp", Order: 3100, Help: "NTP servers", Emit: f.emitNTP, Feature: f.enabled("ntp")},
		{Name: "snmp", Order: 3300, Help: "SNMP communities", Emit: f.emitSNMP, Feature: f.enabled("snmp")},
	} {
		if err := r.RunCfg.Register(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *Services) enabled(name string) func() bool {
	return func() bool {
		var on bool
		f.deps.Store.View(func(st *configstore.State) { on = st.Features[name] })
		return on
	}
}

func (f *Services) feature(c *shell.Call) error {
	svc := c.Data().String("service")
	return f.deps.Store.Update(func(st *configstore.State) error {
		if c.Negated() {
			delete(st.Features, svc)
			return nil
		}
		st.Features[svc] = true
		return nil
	})
}

func requireFeature(st *configstore.State, name string) error {
	if !st.Features[name] {
		return grammar.Actionf("feature %s is not enabled", name)
	}
	return nil
}

// toggle adds v to list, or removes it when negated.
func toggle[T comparable](list []T, v T, negated bool) ([]T, error) {
	i := slices.Index(list, v)
	switch {
	case negated && i < 0:
		return nil, grammar.Actionf("%v is not configured", v)
	case negated:
		return slices.Delete(list, i, i+1), nil
	case i >= 0:
		return list, nil
	}
	return append(list, v), nil
}

func (f *Services) ntpServer(c *shell.Call) error {
	server := c.Data().String("server")
	return f.deps.Store.Update(func(st *configstore.State) error {
		if err := requireFeature(st, "ntp"); err != nil {
			return err
		}
		l, err := toggle(st.NTPServers, server, c.Negated())
		st.NTPServers = l
		return err
	})
}

func (f *Services) nameServer(c *shell.Call) error {
	addr, _ := c.Data()["server"].(netip.Addr)
	return f.deps.Store.Update(func(st *configstore.State) error {
		l, err := toggle(st.NameServers, addr, c.Negated())
		st.NameServers = l
		return err
	})
}

func (f *Services) domainName(c *shell.Call) error {
	domain := c.Data().String("domain")
	if domain == "" && !c.Negated() {
		return incomplete(c)
	}
	return f.deps.Store.Update(func(st *configstore.State) error {
		st.DomainName = domain
		return nil
	})
}

func (f *Services) snmpCommunity(c *shell.Call) error {
	d := c.Data()
	name := d.String("community")
	return f.deps.Store.Update(func(st *configstore.State) error {
		if err := requireFeature(st, "snmp"); err != nil {
			return err
		}
		if c.Negated() {
			if _, ok := st.Communities[name]; !ok {
				return grammar.Actionf("community %s is not configured", name)
			}
			delete(st.Communities, name)
			return nil
		}
		access := d.String("access")
		if access == "" {
			access = "ro"
		}
		st.Communities[name] = access
		return nil
	})
}

func (f *Services) loggingHost(c *shell.Call) error {
	host := c.Data().String("host")
	err := f.deps.Store.Update(func(st *configstore.State) error {
		l, err := toggle(st.LogHosts, host, c.Negated())
		st.LogHosts = l
		return err
	})
	if err != nil {
		return err
	}
	return f.applyLogging()
}

func (f *Services) loggingLevel(c *shell.Call) error {
	level := c.Data().String("level")
	if level == "" && !c.Negated() {
		return incomplete(c)
	}
	err := f.deps.Store.Update(func(st *configstore.State) error {
		st.LogLevel = level
		return nil
	})
	if err != nil {
		return err
	}
	return f.applyLogging()
}

// applyLogging points the log handler at the configured syslog servers.
func (f *Services) applyLogging() error {
	if f.deps.Logging == nil {
		return nil
	}
	var hosts []string
	var level string
	f.deps.Store.View(func(st *configstore.State) {
		hosts = slices.Clone(st.LogHosts)
		level = st.LogLevel
	})
	var clients []*logging.SyslogClient
	for _, h := range hosts {
		cl, err := logging.NewSyslogClient(h, logging.DefaultSyslogPort, f.deps.Store.Hostname)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return &grammar.ActionError{Msg: "configure syslog server " + h, Err: err}
		}
		cl.MinSeverity = logging.ParseSeverity(level)
		clients = append(clients, cl)
	}
	f.deps.Logging.SetClients(clients)
	return nil
}

func (f *Services) emitFeatures(*runcfg.EmitContext) (string, error) {
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		for _, n := range slices.Sorted(maps.Keys(st.Features)) {
			fmt.Fprintf(&b, "feature %s\n", n)
		}
	})
	return b.String(), nil
}

func (f *Services) emitIP(*runcfg.EmitContext) (string, error) {
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		if st.DomainName != "" {
			fmt.Fprintf(&b, "ip domain-name %s\n", st.DomainName)
		}
		for _, a := range st.NameServers {
			fmt.Fprintf(&b, "ip name-server %s\n", a)
		}
	})
	return b.String(), nil
}

func (f *Services) emitLogging(*runcfg.EmitContext) (string, error) {
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		for _, h := range st.LogHosts {
			fmt.Fprintf(&b, "logging host %s\n", h)
		}
		if st.LogLevel != "" {
			fmt.Fprintf(&b, "logging level %s\n", st.LogLevel)
		}
	})
	return b.String(), nil
}

func (f *Services) emitNTP(*runcfg.EmitContext) (string, error) {
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		for _, s := range st.NTPServers {
			fmt.Fprintf(&b, "ntp server %s\n", s)
		}
	})
	return b.String(), nil
}

func (f *Services) emitSNMP(*runcfg.EmitContext) (string, error) {
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		for _, n := range slices.Sorted(maps.Keys(st.Communities)) {
			fmt.Fprintf(&b, "snmp-server community %s %s\n", n, st.Communities[n])
		}
	})
	return b.String(), nil
}
