package grammar

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// TypeDef validates and converts the word matched by a Field node.
type TypeDef struct {
	Name string
	// Help describes the expected input in help listings, e.g. "A.B.C.D".
	Help string
	// Parse converts a word into the value stored in the data object.
	Parse func(word string, sc Scope) (any, error)
	// Format renders a parsed value back to text. Nil means fmt.Sprint.
	Format func(v any) string
	// Values enumerates the accepted words for completion. Nil for open types.
	Values func(sc Scope) []string
	// Rest makes the field consume every remaining word of the statement.
	Rest bool
}

// FormatValue renders v with the type's formatter.
func (t *TypeDef) FormatValue(v any) string {
	if t.Format != nil {
		return t.Format(v)
	}
	return fmt.Sprint(v)
}

var (
	identRe    = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.:/-]*$`)
	hostLabel  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	ifNameRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9/._:-]*$`)
	ifRangeRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9/._:]*?)(\d+)-(\d+)$`)
	sha256Hash = regexp.MustCompile(`^\$sha256\$[0-9a-f]{64}$`)
)

const maxInterfaceListSize = 4096

// Enum returns a type accepting one of values, matched case-insensitively
// by exact word or unique prefix and stored in its canonical spelling.
func Enum(name string, values ...string) *TypeDef {
	vals := append([]string(nil), values...)
	return &TypeDef{
		Name: name,
		Help: strings.Join(vals, "|"),
		Parse: func(word string, _ Scope) (any, error) {
			return matchKeyword(word, vals)
		},
		Values: func(Scope) []string { return vals },
	}
}

// IntRange returns an integer type bounded by [lo, hi].
func IntRange(lo, hi int64) *TypeDef {
	return &TypeDef{
		Name: fmt.Sprintf("integer(%d-%d)", lo, hi),
		Help: fmt.Sprintf("<%d-%d>", lo, hi),
		Parse: func(word string, _ Scope) (any, error) {
			n, err := strconv.ParseInt(word, 10, 64)
			if err != nil {
				return nil, errors.New("not a number")
			}
			if n < lo || n > hi {
				return nil, fmt.Errorf("out of range %d-%d", lo, hi)
			}
			return n, nil
		},
	}
}

// matchKeyword resolves word against vals by exact match first, then by
// unique prefix, ignoring case.
func matchKeyword(word string, vals []string) (string, error) {
	lw := strings.ToLower(word)
	var prefixed []string
	for _, v := range vals {
		lv := strings.ToLower(v)
		if lv == lw {
			return v, nil
		}
		if strings.HasPrefix(lv, lw) {
			prefixed = append(prefixed, v)
		}
	}
	switch len(prefixed) {
	case 1:
		return prefixed[0], nil
	case 0:
		return "", fmt.Errorf("must be one of %s", strings.Join(vals, ", "))
	}
	return "", fmt.Errorf("ambiguous, could be %s", strings.Join(prefixed, ", "))
}

// HashPassword returns the stored form of a clear-text password.
func HashPassword(clear string) string {
	sum := sha256.Sum256([]byte(clear))
	return "$sha256$" + hex.EncodeToString(sum[:])
}

// ExpandInterfaceList expands "ethernet1,ethernet3-5" into its names.
func ExpandInterfaceList(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, item := range strings.Split(s, ",") {
		if item == "" {
			return nil, errors.New("empty list element")
		}
		if m := ifRangeRe.FindStringSubmatch(item); m != nil {
			lo, err1 := strconv.Atoi(m[2])
			hi, err2 := strconv.Atoi(m[3])
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("range %s is out of bounds", item)
			}
			if lo > hi {
				return nil, fmt.Errorf("range %s is reversed", item)
			}
			if hi-lo >= maxInterfaceListSize-len(out) {
				return nil, fmt.Errorf("range %s is too large", item)
			}
			for n := 0; n <= hi-lo; n++ {
				add(m[1] + strconv.Itoa(lo+n))
			}
			continue
		}
		if !ifNameRe.MatchString(item) {
			return nil, fmt.Errorf("%q is not an interface name", item)
		}
		add(item)
	}
	return out, nil
}

func builtinTypes() []*TypeDef {
	anyWord := func(word string, _ Scope) (any, error) {
		if word == "" {
			return nil, errors.New("empty value")
		}
		return word, nil
	}
	return []*TypeDef{
		{Name: "string", Help: "WORD", Parse: anyWord},
		{Name: "word", Help: "WORD", Parse: anyWord},
		{Name: "line", Help: "LINE", Parse: anyWord, Rest: true},
		{Name: "identifier", Help: "NAME", Parse: func(word string, _ Scope) (any, error) {
			if len(word) > 64 || !identRe.MatchString(word) {
				return nil, errors.New("not a valid identifier")
			}
			return word, nil
		}},
		{Name: "integer", Help: "<number>", Parse: func(word string, _ Scope) (any, error) {
			n, err := strconv.ParseInt(word, 10, 64)
			if err != nil {
				return nil, errors.New("not a number")
			}
			return n, nil
		}},
		{Name: "ip-address", Help: "A.B.C.D or X:X::X", Parse: func(word string, _ Scope) (any, error) {
			a, err := netip.ParseAddr(word)
			if err != nil {
				return nil, errors.New("not an IP address")
			}
			return a, nil
		}},
		{Name: "ipv4-address", Help: "A.B.C.D", Parse: func(word string, _ Scope) (any, error) {
			a, err := netip.ParseAddr(word)
			if err != nil || !a.Is4() {
				return nil, errors.New("not an IPv4 address")
			}
			return a, nil
		}},
		{Name: "cidr-range", Help: "A.B.C.D/M", Parse: func(word string, _ Scope) (any, error) {
			p, err := netip.ParsePrefix(word)
			if err != nil {
				return nil, errors.New("not an address/prefix-length")
			}
			return p, nil
		}},
		{Name: "mac-address", Help: "H.H.H or HH:HH:HH:HH:HH:HH", Parse: func(word string, _ Scope) (any, error) {
			hw, err := net.ParseMAC(word)
			if err != nil || len(hw) != 6 {
				return nil, errors.New("not a MAC address")
			}
			return hw, nil
		}, Format: func(v any) string {
			if hw, ok := v.(net.HardwareAddr); ok {
				return hw.String()
			}
			return fmt.Sprint(v)
		}},
		{Name: "hostname", Help: "HOSTNAME", Parse: func(word string, _ Scope) (any, error) {
			if len(word) > 253 {
				return nil, errors.New("host name too long")
			}
			for _, label := range strings.Split(word, ".") {
				if len(label) > 63 || !hostLabel.MatchString(label) {
					return nil, errors.New("not a valid host name")
				}
			}
			return word, nil
		}},
		{Name: "hashed-password", Help: "PASSWORD", Parse: func(word string, _ Scope) (any, error) {
			if word == "" {
				return nil, errors.New("empty password")
			}
			if sha256Hash.MatchString(word) {
				return word, nil
			}
			return HashPassword(word), nil
		}},
		{Name: "interface-list", Help: "IFNAME[,IFNAME-N]", Parse: func(word string, _ Scope) (any, error) {
			return ExpandInterfaceList(word)
		}, Format: func(v any) string {
			if l, ok := v.([]string); ok {
				return strings.Join(l, ",")
			}
			return fmt.Sprint(v)
		}},
		{Name: "obj-field", Help: "FIELD", Parse: func(word string, sc Scope) (any, error) {
			if len(sc.ObjFields) == 0 {
				return nil, errors.New("no object selected")
			}
			return matchKeyword(word, sc.ObjFields)
		}, Values: func(sc Scope) []string { return sc.ObjFields }},
	}
}
