package linqpipe

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// compileMatchBody lowers a pipeline-level predicate to a $match stage
// body. A predicate that reduces entirely to field-vs-constant
// comparisons (and conjunctions of them) compiles to plain query-match
// syntax — {field: value} or {field: {$op: value}} — the form the server
// can use an index against. Anything that doesn't fit that shape (a
// field-to-field comparison, a computed operand, Or/Not) falls back to an
// $expr clause carrying that piece of the predicate, and the two forms
// are combined in a single match document when a top-level And mixes
// both kinds of clause.
func compileMatchBody(e expr.Expression) (bson.D, error) {
	clauses := flattenAnd(e)

	var nativeDocs []bson.D
	var exprClauses []expr.Expression
	for _, c := range clauses {
		entry, ok, err := compileQueryClause(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			exprClauses = append(exprClauses, c)
			continue
		}
		nativeDocs = append(nativeDocs, bson.D{entry})
	}

	var match bson.D
	if len(nativeDocs) > 0 {
		if anyDuplicateKey(nativeDocs) {
			arr := make(bson.A, len(nativeDocs))
			for i, d := range nativeDocs {
				arr[i] = d
			}
			match = append(match, bson.E{Key: "$and", Value: arr})
		} else {
			for _, d := range nativeDocs {
				match = append(match, d...)
			}
		}
	}

	if len(exprClauses) > 0 {
		combined := exprClauses[0]
		for _, c := range exprClauses[1:] {
			combined = expr.NewBinary(expr.And, combined, c, expr.TypeBool)
		}
		cond, err := translateValue(combined)
		if err != nil {
			return nil, err
		}
		match = append(match, bson.E{Key: "$expr", Value: cond})
	}

	if len(match) == 0 {
		return nil, internalInvariant("predicate compiled to an empty match body")
	}
	return match, nil
}

// flattenAnd splits a top-level chain of And nodes into its conjuncts, so
// each conjunct can be compiled to a native clause independently of its
// siblings. A non-And expression is its own single-element result.
func flattenAnd(e expr.Expression) []expr.Expression {
	bin, ok := e.(expr.Binary)
	if !ok || bin.Op != expr.And {
		return []expr.Expression{e}
	}
	return append(flattenAnd(bin.Left), flattenAnd(bin.Right)...)
}

// compileQueryClause recognizes a single comparison between a root-scoped
// field and a value expression that doesn't itself reference a field, and
// lowers it to the corresponding query-match entry. Anything else (a
// field-to-field comparison, a scoped/bound-variable field, a non-
// comparison operator) is reported via ok=false so the caller falls back
// to $expr for that clause.
func compileQueryClause(e expr.Expression) (bson.E, bool, error) {
	bin, ok := e.(expr.Binary)
	if !ok {
		return bson.E{}, false, nil
	}

	_, isComparison := queryCompareOp[bin.Op]
	if !isComparison && bin.Op != expr.Eq {
		return bson.E{}, false, nil
	}

	leftField, leftIsField := bin.Left.(expr.Field)
	rightField, rightIsField := bin.Right.(expr.Field)
	if leftIsField == rightIsField {
		// Either neither side is a bare field (nothing to match against)
		// or both sides are (a field-to-field comparison needs $expr).
		return bson.E{}, false, nil
	}

	field := leftField
	valueExpr := bin.Right
	cmpOp := bin.Op
	if rightIsField {
		field = rightField
		valueExpr = bin.Left
		cmpOp = flipCompareOp(cmpOp)
	}

	if field.Scope != "" || referencesField(valueExpr) {
		return bson.E{}, false, nil
	}

	val, err := translateValue(valueExpr)
	if err != nil {
		return bson.E{}, false, err
	}
	if d, isDoc := val.(bson.D); isDoc && len(d) == 1 && len(d[0].Key) > 0 && d[0].Key[0] == '$' {
		// A computed operand (or a $literal-escaped string) is an
		// aggregation operator document, which query-match syntax would
		// read as a query operator: leave it to $expr.
		return bson.E{}, false, nil
	}

	if cmpOp == expr.Eq {
		return bson.E{Key: field.Path, Value: val}, true, nil
	}
	qop, ok := queryCompareOp[cmpOp]
	if !ok {
		return bson.E{}, false, nil
	}
	return bson.E{Key: field.Path, Value: bson.D{{Key: qop, Value: val}}}, true, nil
}

var queryCompareOp = map[expr.BinaryOp]string{
	expr.Ne: "$ne",
	expr.Lt: "$lt",
	expr.Le: "$lte",
	expr.Gt: "$gt",
	expr.Ge: "$gte",
}

// flipCompareOp mirrors a comparison operator for the case where the
// field operand was on the right (value OP field rather than field OP
// value).
func flipCompareOp(op expr.BinaryOp) expr.BinaryOp {
	switch op {
	case expr.Lt:
		return expr.Gt
	case expr.Le:
		return expr.Ge
	case expr.Gt:
		return expr.Lt
	case expr.Ge:
		return expr.Le
	default:
		return op
	}
}

// referencesField reports whether e contains a Field node anywhere in its
// tree — used to tell an operand that does not depend on document state
// apart from one that does (which needs $expr).
func referencesField(e expr.Expression) bool {
	switch n := e.(type) {
	case expr.Field:
		return true
	case expr.Binary:
		return referencesField(n.Left) || referencesField(n.Right)
	case expr.Unary:
		return referencesField(n.Operand)
	case expr.Conditional:
		return referencesField(n.Test) || referencesField(n.IfTrue) || referencesField(n.IfFalse)
	case expr.Constant:
		return false
	case expr.MemberAccess:
		return referencesField(n.Target)
	case expr.MethodCall:
		if n.Receiver != nil && referencesField(n.Receiver) {
			return true
		}
		for _, a := range n.Args {
			if referencesField(a) {
				return true
			}
		}
		return false
	case expr.FieldAsDocument:
		return referencesField(n.Inner)
	case expr.Accumulator:
		return referencesField(n.Arg)
	case expr.GroupingKey:
		return referencesField(n.Key)
	case expr.SetCombination:
		return referencesField(n.Source) || referencesField(n.Other)
	default:
		return false
	}
}

// anyDuplicateKey reports whether two single-entry documents in docs
// share the same key, the case compileMatchBody falls back to $and for
// rather than silently overwriting one constraint with another.
func anyDuplicateKey(docs []bson.D) bool {
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d[0].Key] {
			return true
		}
		seen[d[0].Key] = true
	}
	return false
}
