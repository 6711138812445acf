package nanoql

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
}

// BinaryExpr represents a binary logical expression (AND, OR).
type BinaryExpr struct {
	Op    string // "AND" or "OR"
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

// Match operators.
const (
	OpEqual       = "="
	OpNotEqual    = "!="
	OpContains    = "CONTAINS"
	OpNotContains = "NOT CONTAINS"
	OpGreater     = ">"
	OpLess        = "<"
)

// MatchExpr compares one record field with a value. An empty Key searches
// the text fields.
type MatchExpr struct {
	Key   string
	Value string
	Op    string
}

func (MatchExpr) node() {}

// NotExpr represents a NOT expression that negates its inner expression.
type NotExpr struct {
	Expr Node
}

func (NotExpr) node() {}
