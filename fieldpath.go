package linqpipe

import (
	"strings"

	"github.com/marrow-systems/linqpipe/expr"
)

// rewriteField renders a Field node as the aggregation-expression string
// that refers to it from wherever it is emitted: a bound-variable
// reference ("$$v.path") when Scope names an enclosing Select/Where
// variable, or a root-document reference ("$path") when Scope is empty.
//
// The rewrite happens at emit time — the Expression tree itself is never
// mutated, only the string a given Field node produces when translate.go
// reaches it.
func rewriteField(f expr.Field) string {
	if f.Scope == "" {
		return "$" + f.Path
	}
	return "$$" + f.Scope + "." + f.Path
}

// fuseSelectField detects a field-path fusion case: both the source and
// the selector of a Select are bare field expressions, i.e. the selector
// projects a sub-field of the source. When it applies, the concatenated
// path can be emitted directly as a single field reference instead of
// wrapping in $map, producing shorter pipelines that match server
// idioms.
//
// Returns the fused Field and true when fusion applies.
func fuseSelectField(sel expr.Select) (expr.Field, bool) {
	srcField, ok := sel.Source.(expr.Field)
	if !ok {
		return expr.Field{}, false
	}
	selField, ok := sel.Selector.(expr.Field)
	if !ok || selField.Scope != sel.Var {
		// A selector field scoped anywhere other than this Select's own
		// bound variable is a free outer-field reference, not a sub-field
		// of Source — fusing it here would silently drop the outer scope.
		return expr.Field{}, false
	}
	return expr.Field{
		Path:  strings.TrimPrefix(srcField.Path+"."+selField.Path, "."),
		Scope: srcField.Scope,
	}, true
}

// rewriteRootFieldsToID returns a copy of e with every root-scoped Field
// node's path rewritten to live under "_id" — the shape a Distinct()
// over the whole root produces, since the original document becomes
// $$ROOT nested under the group's _id. Fields scoped to an inner
// Select/Where variable are left untouched: they already resolve
// against their own bound scope, not the root.
func rewriteRootFieldsToID(e expr.Expression) expr.Expression {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case expr.Field:
		if n.Scope != "" {
			return n
		}
		if n.Path == "" {
			return expr.NewField("_id")
		}
		return expr.NewField("_id." + n.Path)
	case expr.Binary:
		return expr.NewBinary(n.Op, rewriteRootFieldsToID(n.Left), rewriteRootFieldsToID(n.Right), n.Typ)
	case expr.Unary:
		return expr.NewUnary(n.Op, rewriteRootFieldsToID(n.Operand))
	case expr.Conditional:
		return expr.NewConditional(rewriteRootFieldsToID(n.Test), rewriteRootFieldsToID(n.IfTrue), rewriteRootFieldsToID(n.IfFalse))
	case expr.Constant:
		return n
	case expr.MemberAccess:
		return expr.NewMemberAccess(rewriteRootFieldsToID(n.Target), n.MemberName, n.DeclaringType)
	case expr.MethodCall:
		var recv expr.Expression
		if n.Receiver != nil {
			recv = rewriteRootFieldsToID(n.Receiver)
		}
		args := make([]expr.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = rewriteRootFieldsToID(a)
		}
		return expr.MethodCall{Receiver: recv, Method: n.Method, Args: args}
	case expr.MemberInit:
		members := make([]expr.Member, len(n.Members))
		for i, m := range n.Members {
			members[i] = expr.Member{Name: m.Name, Value: rewriteRootFieldsToID(m.Value)}
		}
		return expr.MemberInit{Members: members}
	case expr.FieldAsDocument:
		return expr.NewFieldAsDocument(n.Name, rewriteRootFieldsToID(n.Inner))
	case expr.Select:
		return expr.Select{Source: rewriteRootFieldsToID(n.Source), Var: n.Var, Selector: rewriteRootFieldsToID(n.Selector)}
	case expr.Where:
		return expr.Where{Source: rewriteRootFieldsToID(n.Source), Var: n.Var, Predicate: rewriteRootFieldsToID(n.Predicate)}
	case expr.Accumulator:
		return expr.NewAccumulator(n.Kind, rewriteRootFieldsToID(n.Arg))
	case expr.GroupingKey:
		return expr.NewGroupingKey(rewriteRootFieldsToID(n.Key))
	case expr.SetCombination:
		return expr.NewSetCombination(n.Op, rewriteRootFieldsToID(n.Source), rewriteRootFieldsToID(n.Other))
	default:
		return e
	}
}
