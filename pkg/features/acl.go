package features

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"

	"github.com/psaab/swsh/pkg/configstore"
	"github.com/psaab/swsh/pkg/grammar"
	"github.com/psaab/swsh/pkg/mode"
	"github.com/psaab/swsh/pkg/runcfg"
	"github.com/psaab/swsh/pkg/shell"
)

// ModeACL is the access-list configuration submode.
const ModeACL = "config-acl"

const maxRemark = 100

// ACL manages named IP access lists.
type ACL struct {
	deps Deps
}

func (*ACL) Name() string { return "acl" }

func (f *ACL) Register(r *shell.Registrar) error {
	err := registerActions(r, map[string]shell.ActionFunc{
		"acl-enter":         f.enter,
		"acl-delete":        f.remove,
		"acl-rule":          f.rule,
		"acl-remark":        f.remark,
		"show-access-lists": f.show,
	})
	if err != nil {
		return err
	}
	err = r.Grammar.RegisterCompletion("access-lists", func(grammar.CompletionRequest) []grammar.Candidate {
		return candidates(f.names(), "Configured access list")
	})
	if err != nil {
		return err
	}
	return r.RunCfg.Register(runcfg.Provider{
		Name:  "access-list",
		Order: 2500,
		Help:  "IP access lists",
		Emit:  f.emit,
		Args: []grammar.NodeDesc{{Optional: []grammar.NodeDesc{
			{Field: "name", Type: "word", Completion: "access-lists", Help: "Access list name"},
		}}},
	})
}

func (f *ACL) names() []string {
	var out []string
	f.deps.Store.View(func(st *configstore.State) {
		out = slices.Sorted(maps.Keys(st.ACLs))
	})
	return out
}

func (f *ACL) enter(c *shell.Call) error {
	name := c.Data().String("name")
	err := f.deps.Store.Update(func(st *configstore.State) error {
		st.ACL(name)
		return nil
	})
	if err != nil {
		return err
	}
	return c.Session.Stack.Push(mode.Frame{Mode: ModeACL, ObjType: "access-list", ObjKey: name})
}

func (f *ACL) remove(c *shell.Call) error {
	name := c.Data().String("name")
	return f.deps.Store.Update(func(st *configstore.State) error {
		if _, ok := st.ACLs[name]; !ok {
			return grammar.Actionf("access list %s does not exist", name)
		}
		delete(st.ACLs, name)
		return nil
	})
}

// endpoint renders the matched source or destination of a rule.
func endpoint(d grammar.Data, side string) string {
	switch {
	case d.Has(side):
		return "any"
	case d.Has(side + "-host"):
		return "host " + d.String(side+"-host")
	case d.Has(side + "-net"):
		p, _ := d[side+"-net"].(netip.Prefix)
		return p.Masked().String()
	}
	return ""
}

func (f *ACL) rule(c *shell.Call) error {
	d := c.Data()
	name := c.String("acl")
	seq, hasSeq := d.Int("seq")
	if !hasSeq && c.Negated() {
		return grammar.Semanticf("a sequence number is required to remove a rule")
	}
	if hasSeq && !d.Has("action") && !c.Negated() {
		return incomplete(c)
	}
	return f.deps.Store.Update(func(st *configstore.State) error {
		acl, ok := st.ACLs[name]
		if !ok {
			return grammar.Semanticf("access list %s does not exist", name)
		}
		if c.Negated() {
			if !acl.DeleteRule(int(seq)) {
				return grammar.Actionf("rule %d does not exist in %s", seq, name)
			}
			return nil
		}
		if !hasSeq {
			seq = int64(acl.NextSeq())
		}
		acl.SetRule(configstore.Rule{
			Seq:    int(seq),
			Action: d.String("action"),
			Proto:  d.String("proto"),
			Src:    endpoint(d, "src"),
			Dst:    endpoint(d, "dst"),
		})
		return nil
	})
}

func (f *ACL) remark(c *shell.Call) error {
	name := c.String("acl")
	text := c.Data().String("text")
	if text == "" && !c.Negated() {
		return incomplete(c)
	}
	if len(text) > maxRemark {
		return grammar.Actionf("remark is longer than %d characters", maxRemark)
	}
	return f.deps.Store.Update(func(st *configstore.State) error {
		acl, ok := st.ACLs[name]
		if !ok {
			return grammar.Semanticf("access list %s does not exist", name)
		}
		if !c.Negated() {
			acl.Remarks = append(acl.Remarks, text)
			return nil
		}
		if text == "" {
			acl.Remarks = nil
			return nil
		}
		i := slices.Index(acl.Remarks, text)
		if i < 0 {
			return grammar.Actionf("no such remark in %s", name)
		}
		acl.Remarks = slices.Delete(acl.Remarks, i, i+1)
		return nil
	})
}

func ruleText(r configstore.Rule) string {
	return fmt.Sprintf("%d %s %s %s %s", r.Seq, r.Action, r.Proto, r.Src, r.Dst)
}

func (f *ACL) show(c *shell.Call) error {
	only := c.Data().String("name")
	var acls []configstore.ACL
	f.deps.Store.View(func(st *configstore.State) {
		for _, n := range slices.Sorted(maps.Keys(st.ACLs)) {
			if only == "" || n == only {
				acls = append(acls, *st.ACLs[n])
			}
		}
	})
	if only != "" && len(acls) == 0 {
		return grammar.Actionf("access list %s does not exist", only)
	}
	for _, a := range acls {
		c.Printf("IP access list %s\n", a.Name)
		for _, r := range a.Rules {
			c.Printf("    %s\n", ruleText(r))
		}
	}
	return nil
}

func (f *ACL) emit(ec *runcfg.EmitContext) (string, error) {
	only := ec.Args.String("name")
	var b strings.Builder
	f.deps.Store.View(func(st *configstore.State) {
		first := true
		for _, n := range slices.Sorted(maps.Keys(st.ACLs)) {
			if only != "" && n != only {
				continue
			}
			if !first {
				b.WriteString(runcfg.Separator + "\n")
			}
			first = false
			a := st.ACLs[n]
			fmt.Fprintf(&b, "ip access-list %s\n", a.Name)
			for _, rm := range a.Remarks {
				fmt.Fprintf(&b, " remark %s\n", shell.Quote(rm))
			}
			for _, r := range a.Rules {
				fmt.Fprintf(&b, " %s\n", ruleText(r))
			}
		}
	})
	return b.String(), nil
}
