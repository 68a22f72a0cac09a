package features

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/runcfg"
	"github.com/psaab/swsh/pkg/shell"
)

// System manages the host name, the login banner and local users.
type System struct {
	deps Deps
}

func (*System) Name() string { return "system" }

func (f *System) Register(r *shell.Registrar) error {
	err := registerActions(r, map[string]shell.ActionFunc{
		"hostname":   f.hostname,
		"username":   f.username,
		"banner":     f.banner,
		"show-users": f.showUsers,
	})
	if err != nil {
		return err
	}
	err = r.Grammar.RegisterCompletion("usernames", func(grammar.CompletionRequest) []grammar.Candidate {
		var names []string
		f.deps.Store.View(func(st *configstore.State) {
			names = slices.Sorted(maps.Keys(st.Users))
		})
		return candidates(names, "Configured user")
	})
	if err != nil {
		return err
	}
	for _, p := range []runcfg.Provider{
		{Name: "hostname", Order: 500, Help: "Host name", Emit: f.emitHostname},
		{Name: "banner", Order: 600, Help: "Login banner", Emit: f.emitBanner},
		{Name: "username", Order: 1500, Help: "Local users", Emit: f.emitUsers},
	} {
		if err := r.RunCfg.Register(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *System) hostname(c *shell.Call) error {
	name := c.Data().String("name")
	if name == "" && !c.Negated() {
		return incomplete(c)
	}
	if c.Negated() {
		name = configstore.DefaultHostname
	}
	return f.deps.Store.Update(func(st *configstore.State) error {
		st.Hostname = name
		return nil
	})
}

func (f *System) username(c *shell.Call) error {
	d := c.Data()
	name := d.String("name")
	return f.deps.Store.Update(func(st *configstore.State) error {
		u, exists := st.Users[name]
		if c.Negated() {
			if !exists {
				return grammar.Actionf("user %s does not exist", name)
			}
			delete(st.Users, name)
			return nil
		}
		if !d.Has("password") && !exists {
			return grammar.Actionf("a password is required for new user %s", name)
		}
		u.Name = name
		if d.Has("password") {
			u.Hash = d.String("password")
		}
		if role := d.String("role"); role != "" {
			u.Role = role
		}
		if u.Role == "" {
			u.Role = "operator"
		}
		st.Users[name] = u
		return nil
	})
}

func (f *System) banner(c *shell.Call) error {
	text := c.Data().String("text")
	if text == "" && !c.Negated() {
		return incomplete(c)
	}
	return f.deps.Store.Update(func(st *configstore.State) error {
		st.BannerMOTD = text
		return nil
	})
}

func (f *System) showUsers(c *shell.Call) error {
	var users []configstore.User
	f.deps.Store.View(func(st *configstore.State) {
		for _, n := range slices.Sorted(maps.Keys(st.Users)) {
			users = append(users, st.Users[n])
		}
	})
	if len(users) == 0 {
		c.Printf("No users configured\n")
		return nil
	}
	t := newTable(c.Out, "User", "Role")
	for _, u := range users {
		t.AppendRow([]any{u.Name, u.Role})
	}
	t.Render()
	return nil
}

func (f *System) emitHostname(*runcfg.EmitContext) (string, error) {
	return "hostname " + f.deps.Store.Hostname(), nil
}

func (f *System) emitBanner(*runcfg.EmitContext) (string, error) {
	var out string
	f.deps.Store.View(func(st *configstore.State) {
		if st.BannerMOTD != "" {
			out = "banner motd " + shell.Quote(st.BannerMOTD)
		}
	})
	return out, nil
}

func (f *System) emitUsers(*runcfg.EmitContext) (string, error) {
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		for _, n := range slices.Sorted(maps.Keys(st.Users)) {
			u := st.Users[n]
			fmt.Fprintf(&b, "username %s password %s role %s\n", u.Name, u.Hash, u.Role)
		}
	})
	return b.String(), nil
}
