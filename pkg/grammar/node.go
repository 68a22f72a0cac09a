package grammar

// Kind tags the variant of a grammar node.
type Kind int

const (
	KindToken Kind = iota
	KindField
	KindChoice
	KindOptional
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindField:
		return "field"
	case KindChoice:
		return "choice"
	case KindOptional:
		return "optional"
	case KindSequence:
		return "sequence"
	}
	return "unknown"
}

// Node is one element of a compiled command. Nodes are built once by
// Compile and never modified afterwards; matchers only read them.
type Node struct {
	Kind Kind

	// Literal is the keyword of a token node.
	Literal string
	// Name is the data object key written by a field node, or by a token
	// node that records its canonical spelling.
	Name string
	Type *TypeDef

	Handler     DataHandler
	HandlerName string
	Completion  CompletionFunc

	// Children holds the elements of sequence and optional nodes.
	Children []*Node
	// Alts holds the alternatives of a choice node, each a sequence.
	Alts []*Node

	Data     map[string]any
	Help     string
	Doc      string
	Action   string
	NoAction string
}

// Source names where a bound action parameter takes its value from.
type Source int

const (
	SourceLiteral Source = iota
	SourceData
	SourceNegated
	SourceReplay
	SourceMode
	SourceObjType
	SourceObjKey
)

var placeholders = map[string]Source{
	"$data":     SourceData,
	"$is-no":    SourceNegated,
	"$is-init":  SourceReplay,
	"$mode":     SourceMode,
	"$obj-type": SourceObjType,
	"$obj-key":  SourceObjKey,
}

// Binding maps a formal action parameter to a placeholder or a literal.
type Binding struct {
	Param  string
	Source Source
	Value  string
}

// Entry is a compiled command bound to one or more modes.
type Entry struct {
	// Name is the leading keyword, empty for pattern commands.
	Name        string
	Modes       []ModePattern
	Root        *Node
	Action      string
	NoAction    string
	NoSupported bool
	ShortHelp   string
	Doc         string
	Bindings    []Binding
	Completion  CompletionFunc
	ObjType     string
	Feature     string

	index int
}

// Index is the registration order of the entry.
func (e *Entry) Index() int { return e.index }
