package linqpipe

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// Translate lowers a single expression to a BSON value: a field reference
// string, a scalar literal, a single-key operator document, or an array.
// It is total over the recognized subset and fails with an
// *UnsupportedExpressionError for anything else. Translate has no side
// effects beyond the pure tree walk described here — no field-path
// rewriter state survives past a single call, since Field nodes already
// carry their own scope (see fieldpath.go).
func Translate(e expr.Expression) (any, error) {
	return translateValue(e)
}

func translateValue(e expr.Expression) (any, error) {
	switch n := e.(type) {
	case expr.Binary:
		return translateBinary(n)
	case expr.Unary:
		return translateUnary(n)
	case expr.Conditional:
		t, err := translateValue(n.Test)
		if err != nil {
			return nil, err
		}
		ifTrue, err := translateValue(n.IfTrue)
		if err != nil {
			return nil, err
		}
		ifFalse, err := translateValue(n.IfFalse)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$cond", Value: bson.A{t, ifTrue, ifFalse}}}, nil
	case expr.Constant:
		return translateConstant(n), nil
	case expr.MemberAccess:
		return translateMemberAccess(n)
	case expr.MethodCall:
		return translateMethodCall(n)
	case expr.MemberInit:
		doc, _, err := projectMemberInit(n)
		return doc, err
	case expr.Field:
		return rewriteField(n), nil
	case expr.FieldAsDocument:
		inner, err := translateValue(n.Inner)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: n.Name, Value: inner}}, nil
	case expr.Select:
		return translateSelect(n)
	case expr.Where:
		return translateWhere(n)
	case expr.Accumulator:
		return translateAccumulator(n)
	case expr.GroupingKey:
		return translateValue(n.Key)
	case expr.SetCombination:
		return translateSetCombination(n)
	case expr.Pipeline:
		return nil, unsupportedExpr(n, "")
	default:
		return nil, unsupportedExpr(e, "")
	}
}

// translateConstant wraps a literal string beginning with "$" in
// {"$literal": ...} so the server does not mistake it for a field
// reference.
func translateConstant(n expr.Constant) any {
	if s, ok := n.Value.(string); ok && len(s) > 0 && s[0] == '$' {
		return bson.D{{Key: "$literal", Value: s}}
	}
	return n.Value
}

func translateBinary(n expr.Binary) (any, error) {
	left, err := translateValue(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := translateValue(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case expr.Add:
		if n.Typ == expr.TypeString {
			return flattenBinary("$concat", left, right), nil
		}
		return flattenBinary("$add", left, right), nil
	case expr.Sub:
		return bson.D{{Key: "$subtract", Value: bson.A{left, right}}}, nil
	case expr.Mul:
		return flattenBinary("$multiply", left, right), nil
	case expr.Div:
		return bson.D{{Key: "$divide", Value: bson.A{left, right}}}, nil
	case expr.Mod:
		return bson.D{{Key: "$mod", Value: bson.A{left, right}}}, nil
	case expr.And:
		return flattenBinary("$and", left, right), nil
	case expr.Or:
		return flattenBinary("$or", left, right), nil
	case expr.Eq:
		return bson.D{{Key: "$eq", Value: bson.A{left, right}}}, nil
	case expr.Ne:
		return bson.D{{Key: "$ne", Value: bson.A{left, right}}}, nil
	case expr.Lt:
		return bson.D{{Key: "$lt", Value: bson.A{left, right}}}, nil
	case expr.Le:
		return bson.D{{Key: "$lte", Value: bson.A{left, right}}}, nil
	case expr.Gt:
		return bson.D{{Key: "$gt", Value: bson.A{left, right}}}, nil
	case expr.Ge:
		return bson.D{{Key: "$gte", Value: bson.A{left, right}}}, nil
	case expr.Coalesce:
		return bson.D{{Key: "$ifNull", Value: bson.A{left, right}}}, nil
	default:
		return nil, internalInvariant("unhandled binary operator %d", n.Op)
	}
}

// flattenBinary collapses repeated applications of an associative
// operator into one document: when the left operand's translation is
// already a document of the same operator with an array payload, the
// right operand is appended to that array in place rather than nesting a
// new operator document. Flattening never changes observable semantics.
func flattenBinary(op string, left, right any) bson.D {
	if ld, ok := left.(bson.D); ok && len(ld) == 1 && ld[0].Key == op {
		if arr, ok := ld[0].Value.(bson.A); ok {
			newArr := make(bson.A, len(arr), len(arr)+1)
			copy(newArr, arr)
			newArr = append(newArr, right)
			return bson.D{{Key: op, Value: newArr}}
		}
	}
	return bson.D{{Key: op, Value: bson.A{left, right}}}
}

func translateUnary(n expr.Unary) (any, error) {
	operand, err := translateValue(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case expr.Not:
		return bson.D{{Key: "$not", Value: bson.A{operand}}}, nil
	case expr.Convert:
		return operand, nil
	case expr.ArrayLength:
		return bson.D{{Key: "$size", Value: operand}}, nil
	case expr.Negate:
		return bson.D{{Key: "$subtract", Value: bson.A{0, operand}}}, nil
	default:
		return nil, internalInvariant("unhandled unary operator %d", n.Op)
	}
}

// translateMemberAccess handles DateTime member access and
// Collection.Count; any other member is outside the recognized subset.
func translateMemberAccess(n expr.MemberAccess) (any, error) {
	target, err := translateValue(n.Target)
	if err != nil {
		return nil, err
	}

	if n.DeclaringType == expr.TypeCollection && n.MemberName == "Count" {
		return bson.D{{Key: "$size", Value: target}}, nil
	}

	if n.DeclaringType == expr.TypeDateTime {
		if op, ok := dateTimeMemberOp[n.MemberName]; ok {
			if n.MemberName == "DayOfWeek" {
				// The server numbers Sunday=1; the object model numbers
				// Sunday=0, hence the -1 adjustment.
				return bson.D{{Key: "$subtract", Value: bson.A{
					bson.D{{Key: op, Value: target}}, 1,
				}}}, nil
			}
			return bson.D{{Key: op, Value: target}}, nil
		}
	}

	return nil, unsupportedExpr(n, "")
}

var dateTimeMemberOp = map[string]string{
	"Day":         "$dayOfMonth",
	"DayOfYear":   "$dayOfYear",
	"Hour":        "$hour",
	"Minute":      "$minute",
	"Second":      "$second",
	"Millisecond": "$millisecond",
	"Month":       "$month",
	"Year":        "$year",
	"DayOfWeek":   "$dayOfWeek",
}

func translateSelect(n expr.Select) (any, error) {
	if fused, ok := fuseSelectField(n); ok {
		return rewriteField(fused), nil
	}

	input, err := translateValue(n.Source)
	if err != nil {
		return nil, err
	}
	in, err := translateValue(n.Selector)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "as", Value: n.Var},
		{Key: "in", Value: in},
	}}}, nil
}

func translateWhere(n expr.Where) (any, error) {
	input, err := translateValue(n.Source)
	if err != nil {
		return nil, err
	}
	cond, err := translateValue(n.Predicate)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: input},
		{Key: "as", Value: n.Var},
		{Key: "cond", Value: cond},
	}}}, nil
}

func translateAccumulator(n expr.Accumulator) (any, error) {
	arg, err := translateValue(n.Arg)
	if err != nil {
		return nil, err
	}
	op, ok := accumulatorOp[n.Kind]
	if !ok {
		return nil, internalInvariant("unhandled accumulator kind %d", n.Kind)
	}
	return bson.D{{Key: op, Value: arg}}, nil
}

var accumulatorOp = map[expr.AccumulatorKind]string{
	expr.AccSum:     "$sum",
	expr.AccAvg:     "$avg",
	expr.AccMin:     "$min",
	expr.AccMax:     "$max",
	expr.AccFirst:   "$first",
	expr.AccLast:    "$last",
	expr.AccPush:    "$push",
	expr.AccAddToSet: "$addToSet",
}

func translateSetCombination(n expr.SetCombination) (any, error) {
	source, err := translateValue(n.Source)
	if err != nil {
		return nil, err
	}
	other, err := translateValue(n.Other)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case expr.SetUnion:
		return bson.D{{Key: "$setUnion", Value: bson.A{source, other}}}, nil
	case expr.SetIntersect:
		return bson.D{{Key: "$setIntersection", Value: bson.A{source, other}}}, nil
	case expr.SetExcept:
		return bson.D{{Key: "$setDifference", Value: bson.A{source, other}}}, nil
	default:
		return nil, internalInvariant("unhandled set operator %d", n.Op)
	}
}
