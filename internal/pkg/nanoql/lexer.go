package nanoql

import (
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenColon
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenNot
	TokenNeq      // !=
	TokenTilde    // ~ (contains)
	TokenNotTilde // !~
	TokenGreater  // >
	TokenLess     // <
)

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
}

// Lexer tokenizes NanoQL input.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, pos: 0}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF}
	}

	ch := l.input[l.pos]

	// Single-character tokens
	switch ch {
	case ':':
		l.pos++
		return Token{Type: TokenColon, Value: ":"}
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "("}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")"}
	case '!':
		if l.pos+1 < len(l.input) {
			switch l.input[l.pos+1] {
			case '=':
				l.pos += 2
				return Token{Type: TokenNeq, Value: "!="}
			case '~':
				l.pos += 2
				return Token{Type: TokenNotTilde, Value: "!~"}
			}
		}
		// A lone '!' carries no meaning; skip it.
		l.pos++
		return l.NextToken()
	case '~':
		l.pos++
		return Token{Type: TokenTilde, Value: "~"}
	case '>':
		l.pos++
		return Token{Type: TokenGreater, Value: ">"}
	case '<':
		l.pos++
		return Token{Type: TokenLess, Value: "<"}
	case '"', '\'':
		return l.readString(ch)
	}

	// Keywords and identifiers
	if isIdentStart(ch) {
		return l.readIdent()
	}

	// Unknown character, skip
	l.pos++
	return l.NextToken()
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readString reads a string closed by the same quote that opened it.
func (l *Lexer) readString(quote byte) Token {
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) && l.input[l.pos] != quote {
		if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		b.WriteByte(l.input[l.pos])
		l.pos++
	}
	if l.pos < len(l.input) {
		l.pos++
	}
	return Token{Type: TokenString, Value: b.String()}
}

func (l *Lexer) readIdent() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]

	// Check for keywords
	upper := strings.ToUpper(value)
	switch upper {
	case "AND":
		return Token{Type: TokenAnd, Value: upper}
	case "OR":
		return Token{Type: TokenOr, Value: upper}
	case "NOT":
		return Token{Type: TokenNot, Value: upper}
	}

	return Token{Type: TokenIdent, Value: value}
}

func isIdentStart(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)) || ch == '_' || ch == '['
}

// Caller labels look like "[Client] [BP_Pawn #3]", so brackets and '#' stay
// inside identifiers.
func isIdentChar(ch byte) bool {
	switch ch {
	case '_', '-', '.', '/', '#', '[', ']':
		return true
	}
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
