package nanoql

import (
	"testing"
)

// testLogRow implements LogRecord for testing
type testLogRow struct {
	counter uint64
	session string
	caller  string
	source  string
	level   string
	message string
}

func (r *testLogRow) GetCounter() uint64 { return r.counter }
func (r *testLogRow) GetSession() string { return r.session }
func (r *testLogRow) GetCaller() string  { return r.caller }
func (r *testLogRow) GetSource() string  { return r.source }
func (r *testLogRow) GetLevel() string   { return r.level }
func (r *testLogRow) GetMessage() string { return r.message }

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{"source:pawn.go", []TokenType{TokenIdent, TokenColon, TokenIdent, TokenEOF}},
		{`level:"Error"`, []TokenType{TokenIdent, TokenColon, TokenString, TokenEOF}},
		{"msg~ammo", []TokenType{TokenIdent, TokenTilde, TokenIdent, TokenEOF}},
		{"a ! b", []TokenType{TokenIdent, TokenIdent, TokenEOF}},
		{"a AND b", []TokenType{TokenIdent, TokenAnd, TokenIdent, TokenEOF}},
		{"a OR b", []TokenType{TokenIdent, TokenOr, TokenIdent, TokenEOF}},
		{"NOT a", []TokenType{TokenNot, TokenIdent, TokenEOF}},
		{"(a)", []TokenType{TokenLParen, TokenIdent, TokenRParen, TokenEOF}},
		{`key!="value"`, []TokenType{TokenIdent, TokenNeq, TokenString, TokenEOF}},
		{"msg!~ammo", []TokenType{TokenIdent, TokenNotTilde, TokenIdent, TokenEOF}},
		{"counter>10 counter<20", []TokenType{TokenIdent, TokenGreater, TokenIdent, TokenIdent, TokenLess, TokenIdent, TokenEOF}},
		{"caller:'[Door #1]'", []TokenType{TokenIdent, TokenColon, TokenString, TokenEOF}},
		{"caller~[Door", []TokenType{TokenIdent, TokenTilde, TokenIdent, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			for i, expected := range tt.expected {
				tok := lexer.NextToken()
				if tok.Type != expected {
					t.Errorf("token %d: expected %v, got %v (%q)", i, expected, tok.Type, tok.Value)
				}
			}
		})
	}
}

func TestParseSimple(t *testing.T) {
	tests := []struct {
		input string
		check func(Node) bool
	}{
		{
			input: "source:pawn.go",
			check: func(n Node) bool {
				m, ok := n.(MatchExpr)
				return ok && m.Key == "source" && m.Value == "pawn.go" && m.Op == "="
			},
		},
		{
			input: `level:"Error"`,
			check: func(n Node) bool {
				m, ok := n.(MatchExpr)
				return ok && m.Key == "level" && m.Value == "Error" && m.Op == "="
			},
		},
		{
			input: `caller~"[Client] [Pawn \"A\"]"`,
			check: func(n Node) bool {
				m, ok := n.(MatchExpr)
				return ok && m.Key == "caller" && m.Value == `[Client] [Pawn "A"]` && m.Op == "CONTAINS"
			},
		},
		{
			input: `"timeout"`,
			check: func(n Node) bool {
				m, ok := n.(MatchExpr)
				return ok && m.Key == "" && m.Value == "timeout" && m.Op == "CONTAINS"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if !tt.check(node) {
				t.Errorf("check failed for input %q, got: %+v", tt.input, node)
			}
		})
	}
}

func TestParseCompound(t *testing.T) {
	node, err := Parse("source:pawn.go AND level:Error")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	bin, ok := node.(BinaryExpr)
	if !ok || bin.Op != "AND" {
		t.Fatalf("expected BinaryExpr AND, got %+v", node)
	}

	left, ok := bin.Left.(MatchExpr)
	if !ok || left.Key != "source" || left.Value != "pawn.go" {
		t.Errorf("left expected source:pawn.go, got %+v", left)
	}

	right, ok := bin.Right.(MatchExpr)
	if !ok || right.Key != "level" || right.Value != "Error" {
		t.Errorf("right expected level:Error, got %+v", right)
	}
}

func TestParseParentheses(t *testing.T) {
	node, err := Parse("source:pawn.go AND (level:Error OR level:Warning)")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	bin, ok := node.(BinaryExpr)
	if !ok || bin.Op != "AND" {
		t.Fatalf("expected AND at root, got %+v", node)
	}

	rightBin, ok := bin.Right.(BinaryExpr)
	if !ok || rightBin.Op != "OR" {
		t.Errorf("expected OR on right, got %+v", bin.Right)
	}
}

func TestParseNot(t *testing.T) {
	node, err := Parse("NOT level:Info")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	not, ok := node.(NotExpr)
	if !ok {
		t.Fatalf("expected NotExpr, got %+v", node)
	}

	m, ok := not.Expr.(MatchExpr)
	if !ok || m.Key != "level" || m.Value != "Info" {
		t.Errorf("expected level:Info, got %+v", not.Expr)
	}
}

func TestMatch(t *testing.T) {
	row := &testLogRow{
		counter: 1234567890,
		session: "2025.03.14-09.26.50",
		caller:  "[Client] [BP_Hero #0]",
		source:  "pawn.go:42",
		level:   "Error",
		message: "Connection timeout occurred",
	}

	tests := []struct {
		query    string
		expected bool
	}{
		{`source:"pawn.go:42"`, true},
		{"source:weapon.go", false},
		{"level:Error", true},
		{"level:err", true},
		{"level:Info", false},
		{`"timeout"`, true},
		{`"success"`, false},
		{`source~pawn AND level:Error`, true},
		{`source~pawn AND level:Info`, false},
		{"source:weapon.go OR level:Error", true},
		{"NOT level:Warning", true},
		{"NOT level:Error", false},
		{`caller~"BP_Hero #0"`, true},
		{`context~Server`, false},
		{`msg~timeout`, true},
		{"counter:1234567890", true},
		{`session:"2025.03.14-09.26.50"`, true},
		{"host:anything", false},
		{"msg!~timeout", false},
		{"msg!~ammo", true},
		{"counter>1234567889", true},
		{"counter>1234567890", false},
		{"counter<1234567891 AND counter>100", true},
		{"counter>abc", false},
		{"source<weapon.go", true},
		{"caller~[BP_Hero", true},
		{"caller:'[Client] [BP_Hero #0]'", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			result := Match(node, row)
			if result != tt.expected {
				t.Errorf("Match(%q) = %v, want %v", tt.query, result, tt.expected)
			}
		})
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	row := &testLogRow{
		level:   "Warning",
		source:  "OrderService",
		message: "REQUEST completed",
	}

	tests := []struct {
		query    string
		expected bool
	}{
		{"source:orderservice", true},
		{"source:ORDERSERVICE", true},
		{"level:warning", true},
		{"level:WARN", true},
		{`"request"`, true},
		{`"REQUEST"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if Match(node, row) != tt.expected {
				t.Errorf("Match(%q) failed", tt.query)
			}
		})
	}
}
