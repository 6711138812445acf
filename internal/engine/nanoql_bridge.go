package engine

import (
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/pkg/nanoql"
)

// MatchNanoQL is a bridge function that calls the NanoQL matcher.
func MatchNanoQL(node nanoql.Node, rec *model.Record) bool {
	if node == nil {
		return true
	}
	return nanoql.Match(node, rec)
}

// ParseNanoQL parses a query string into a NanoQL AST node.
// Returns nil if query is empty.
func ParseNanoQL(query string) (nanoql.Node, error) {
	if query == "" {
		return nil, nil
	}
	return nanoql.Parse(query)
}
