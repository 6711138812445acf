package nanoql

import (
	"fmt"
)

// comparisons maps operator tokens onto MatchExpr.Op.
var comparisons = map[TokenType]string{
	TokenColon:    OpEqual,
	TokenNeq:      OpNotEqual,
	TokenTilde:    OpContains,
	TokenNotTilde: OpNotContains,
	TokenGreater:  OpGreater,
	TokenLess:     OpLess,
}

// Parser parses NanoQL queries into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
}

// Parse parses the input string and returns the AST root node.
func Parse(input string) (Node, error) {
	if input == "" {
		return nil, nil
	}
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	return p.parseOr()
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

// parseOr handles OR expressions (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}

	return left, nil
}

// parseAnd handles AND expressions.
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}

	return left, nil
}

// parseNot handles NOT expressions.
func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot() // NOT is right-associative
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles (expr), key<op>value, quoted strings and bare words.
func (p *Parser) parsePrimary() (Node, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' but got %q", p.current.Value)
		}
		p.advance()
		return expr, nil

	case TokenString:
		// Full-text search: "some text"
		value := p.current.Value
		p.advance()
		return MatchExpr{Value: value, Op: OpContains}, nil

	case TokenIdent:
		key := p.current.Value
		p.advance()

		if op, ok := comparisons[p.current.Type]; ok {
			p.advance()
			return p.parseValue(key, op)
		}

		// Bare identifier: treat as full-text search
		return MatchExpr{Value: key, Op: OpContains}, nil

	case TokenEOF:
		return nil, nil

	default:
		return nil, fmt.Errorf("unexpected token %q", p.current.Value)
	}
}

// parseValue parses the value following a comparison operator.
func (p *Parser) parseValue(key, op string) (Node, error) {
	var value string

	switch p.current.Type {
	case TokenString:
		value = p.current.Value
		p.advance()
	case TokenIdent:
		value = p.current.Value
		p.advance()
	default:
		return nil, fmt.Errorf("expected value after %s %s but got %q", key, op, p.current.Value)
	}

	return MatchExpr{Key: key, Value: value, Op: op}, nil
}
