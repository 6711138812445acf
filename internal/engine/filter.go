package engine

import (
	"fmt"
	"strings"

	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/pkg/nanoql"
)

// Filter is the compiled form of the Params predicates.
type Filter struct {
	session  string
	context  string
	message  string
	level    model.Level
	anyLevel bool
	expr     nanoql.Node
}

// NewFilter compiles the predicates of p.
func NewFilter(p Params) (*Filter, error) {
	f := &Filter{
		session: p.SessionID,
		message: p.Message,
	}
	if p.Context != model.AllContexts {
		f.context = p.Context
	}

	switch lvl := strings.TrimSpace(p.Level); {
	case lvl == "" || strings.Contains(lvl, model.AllLevels):
		f.anyLevel = true
	default:
		parsed, ok := model.ParseLevel(lvl)
		if !ok {
			return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidQuery, p.Level)
		}
		f.level = parsed
	}

	node, err := ParseNanoQL(p.Expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	f.expr = node
	return f, nil
}

// Match reports whether rec passes every predicate.
func (f *Filter) Match(rec *model.Record) bool {
	if f.session != "" && rec.SessionID != f.session {
		return false
	}
	if f.context != "" && rec.Caller != f.context {
		return false
	}
	if f.message != "" && !strings.Contains(rec.Message, f.message) {
		return false
	}
	if !f.anyLevel && rec.Level != f.level {
		return false
	}
	return MatchNanoQL(f.expr, rec)
}
