package generator

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// BuildLegacyExpression parses an extended-JSON object and constructs the
// live expr.Expression it denotes, the same way GenerateExpression
// renders it as Go source — this is the in-process counterpart used by
// the describe subcommand, which needs an actual tree to print rather
// than source text to compile.
func BuildLegacyExpression(jsonStr string) (expr.Expression, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(jsonStr), true, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return buildMatchBody(doc)
}

// BuildLegacyPipeline parses an extended-JSON array and constructs the
// live expr.Pipeline it denotes.
func BuildLegacyPipeline(jsonStr string) (expr.Pipeline, error) {
	var arr bson.A
	if err := bson.UnmarshalExtJSON([]byte(jsonStr), true, &arr); err != nil {
		return expr.Pipeline{}, fmt.Errorf("failed to parse JSON array: %w", err)
	}

	var stages []expr.Stage
	for i := 0; i < len(arr); i++ {
		doc, ok := arr[i].(bson.D)
		if !ok {
			return expr.Pipeline{}, fmt.Errorf("expected document as pipeline stage, got %T", arr[i])
		}

		// A bare $group{_id:"$$ROOT"} is the canonical Distinct lowering.
		// A trailing $replaceRoot{newRoot:"$_id"}, if present, just
		// flattens the grouped shape back out and is absorbed here too.
		if isRootGroup(doc) {
			stages = append(stages, expr.Stage{Kind: expr.StageDistinct})
			if i+1 < len(arr) {
				if next, ok := arr[i+1].(bson.D); ok && isRootReplace(next) {
					i++
				}
			}
			continue
		}

		st, err := buildLegacyStage(doc)
		if err != nil {
			return expr.Pipeline{}, err
		}
		stages = append(stages, st)
	}
	return expr.NewPipeline(stages...), nil
}

func buildLegacyStage(doc bson.D) (expr.Stage, error) {
	if len(doc) != 1 {
		return expr.Stage{}, fmt.Errorf("pipeline stage must have exactly one top-level operator, got %d", len(doc))
	}
	op := doc[0].Key
	val := doc[0].Value

	switch op {
	case "$match":
		d, ok := val.(bson.D)
		if !ok {
			return expr.Stage{}, fmt.Errorf("expected document for $match, got %T", val)
		}
		body, err := buildMatchBody(d)
		if err != nil {
			return expr.Stage{}, err
		}
		return expr.Stage{Kind: expr.StageWhere, Var: "x", Body: body}, nil

	case "$project", "$addFields", "$set":
		d, ok := val.(bson.D)
		if !ok {
			return expr.Stage{}, fmt.Errorf("expected document for %s, got %T", op, val)
		}
		members, err := buildProjectionMembers(d)
		if err != nil {
			return expr.Stage{}, err
		}
		return expr.Stage{Kind: expr.StageSelect, Body: expr.NewMemberInit(members...)}, nil

	case "$group":
		d, ok := val.(bson.D)
		if !ok {
			return expr.Stage{}, fmt.Errorf("expected document for $group, got %T", val)
		}
		idVal := getMapValue(d, "_id")
		key, err := buildOperand(idVal)
		if err != nil {
			return expr.Stage{}, err
		}
		members := []expr.Member{{Name: "Key", Value: expr.NewGroupingKey(key)}}
		for _, e := range d {
			if e.Key == "_id" {
				continue
			}
			v, err := buildOperand(e.Value)
			if err != nil {
				return expr.Stage{}, err
			}
			members = append(members, expr.Member{Name: e.Key, Value: v})
		}
		return expr.Stage{Kind: expr.StageGroupBy, Var: "x", Body: key, ResultSelector: expr.NewMemberInit(members...)}, nil

	case "$sort":
		d, ok := val.(bson.D)
		if !ok || len(d) == 0 {
			return expr.Stage{}, fmt.Errorf("expected non-empty document for $sort, got %T", val)
		}
		e := d[0]
		return expr.Stage{
			Kind: expr.StageOrderBy, SortKeyName: e.Key, SortKey: expr.NewField(e.Key),
			Ascending: getInt64(e.Value) >= 0,
		}, nil

	case "$skip":
		return expr.Stage{Kind: expr.StageSkip, Count: getInt64(val)}, nil
	case "$limit":
		return expr.Stage{Kind: expr.StageTake, Count: getInt64(val)}, nil

	case "$unwind":
		path, _ := val.(string)
		if d, ok := val.(bson.D); ok {
			path = getMapString(d, "path")
		}
		return expr.Stage{Kind: expr.StageSelectMany, Var: "x", InnerPath: strings.TrimPrefix(path, "$")}, nil
	}

	return expr.Stage{}, fmt.Errorf("unsupported legacy stage operator: %s", op)
}

func buildMatchBody(d bson.D) (expr.Expression, error) {
	if len(d) == 1 && d[0].Key == "$expr" {
		return buildOperand(d[0].Value)
	}

	var acc expr.Expression
	for _, e := range d {
		part, err := buildQueryField(e.Key, e.Value)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = part
			continue
		}
		acc = expr.NewBinary(expr.And, acc, part, expr.TypeBool)
	}
	if acc == nil {
		return nil, fmt.Errorf("empty $match document")
	}
	return acc, nil
}

func buildQueryField(field string, value interface{}) (expr.Expression, error) {
	if d, ok := value.(bson.D); ok && len(d) == 1 {
		if binOp, ok := queryOpBinary[d[0].Key]; ok {
			rhs, err := buildOperand(d[0].Value)
			if err != nil {
				return nil, err
			}
			return expr.NewBinary(binOp, expr.NewField(field), rhs, expr.TypeBool), nil
		}
		return nil, fmt.Errorf("unsupported legacy query operator: %s", d[0].Key)
	}
	rhs, err := buildOperand(value)
	if err != nil {
		return nil, err
	}
	return expr.NewBinary(expr.Eq, expr.NewField(field), rhs, expr.TypeBool), nil
}

var queryOpBinary = map[string]expr.BinaryOp{
	"$eq": expr.Eq, "$ne": expr.Ne, "$gt": expr.Gt, "$gte": expr.Ge, "$lt": expr.Lt, "$lte": expr.Le,
}

func buildProjectionMembers(d bson.D) ([]expr.Member, error) {
	var members []expr.Member
	for _, e := range d {
		if n, ok := e.Value.(int32); ok && n == 0 {
			continue
		}
		v, err := buildOperand(e.Value)
		if err != nil {
			return nil, err
		}
		members = append(members, expr.Member{Name: e.Key, Value: v})
	}
	return members, nil
}

var binaryOpKind = map[string]expr.BinaryOp{
	"$add": expr.Add, "$subtract": expr.Sub, "$multiply": expr.Mul, "$divide": expr.Div, "$mod": expr.Mod,
	"$and": expr.And, "$or": expr.Or, "$eq": expr.Eq, "$ne": expr.Ne, "$lt": expr.Lt, "$lte": expr.Le,
	"$gt": expr.Gt, "$gte": expr.Ge, "$ifNull": expr.Coalesce, "$concat": expr.Add,
}

var setOpKind = map[string]expr.SetOp{
	"$setUnion": expr.SetUnion, "$setIntersection": expr.SetIntersect, "$setDifference": expr.SetExcept,
}

var accKind = map[string]expr.AccumulatorKind{
	"$sum": expr.AccSum, "$avg": expr.AccAvg, "$min": expr.AccMin, "$max": expr.AccMax,
	"$first": expr.AccFirst, "$last": expr.AccLast, "$push": expr.AccPush, "$addToSet": expr.AccAddToSet,
}

// buildOperand is the live-value counterpart of translateOperand: it
// constructs the expr.Expression an operand position denotes instead of
// rendering the Go source that would construct it.
func buildOperand(val interface{}) (expr.Expression, error) {
	if s, ok := val.(string); ok {
		if strings.HasPrefix(s, "$$") {
			rest := strings.TrimPrefix(s, "$$")
			scope, path, found := strings.Cut(rest, ".")
			if !found {
				path = ""
			}
			return expr.NewScopedField(path, scope), nil
		}
		if strings.HasPrefix(s, "$") {
			return expr.NewField(strings.TrimPrefix(s, "$")), nil
		}
		return expr.NewConstant(s, expr.TypeString), nil
	}
	if d, ok := val.(bson.D); ok && len(d) == 1 && strings.HasPrefix(d[0].Key, "$") {
		return buildExpression(d)
	}
	return constantOf(val), nil
}

func constantOf(val interface{}) expr.Expression {
	switch v := val.(type) {
	case int32:
		return expr.NewConstant(v, expr.TypeNumber)
	case int64:
		return expr.NewConstant(v, expr.TypeNumber)
	case float64:
		return expr.NewConstant(v, expr.TypeNumber)
	case bool:
		return expr.NewConstant(v, expr.TypeBool)
	default:
		return expr.NewConstant(v, expr.TypeUnknown)
	}
}

func buildExpression(doc bson.D) (expr.Expression, error) {
	op := doc[0].Key
	arg := doc[0].Value

	switch op {
	case "$literal":
		return constantOf(arg), nil

	case "$not":
		operand, err := buildOperand(unwrapSingleton(arg))
		if err != nil {
			return nil, err
		}
		return expr.NewUnary(expr.Not, operand), nil

	case "$size":
		operand, err := buildOperand(arg)
		if err != nil {
			return nil, err
		}
		return expr.NewUnary(expr.ArrayLength, operand), nil

	case "$cond":
		return buildCond(arg)

	case "$toLower", "$toUpper":
		receiver, err := buildOperand(arg)
		if err != nil {
			return nil, err
		}
		name := "ToLower"
		if op == "$toUpper" {
			name = "ToUpper"
		}
		return expr.NewMethodCall(receiver, expr.Method{Name: name, DeclaringType: expr.TypeString}), nil

	case "$substr", "$substrCP":
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 3 {
			return nil, fmt.Errorf("%s expects a 3-element array, got %T", op, arg)
		}
		receiver, err := buildOperand(arr[0])
		if err != nil {
			return nil, err
		}
		start, err := buildOperand(arr[1])
		if err != nil {
			return nil, err
		}
		length, err := buildOperand(arr[2])
		if err != nil {
			return nil, err
		}
		return expr.NewMethodCall(receiver, expr.Method{Name: "Substring", DeclaringType: expr.TypeString, Arity: 2}, start, length), nil

	case "$setIsSubset", "$setEquals", "$cmp":
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return nil, fmt.Errorf("%s expects a 2-element array, got %T", op, arg)
		}
		receiver, err := buildOperand(arr[0])
		if err != nil {
			return nil, err
		}
		other, err := buildOperand(arr[1])
		if err != nil {
			return nil, err
		}
		name := map[string]string{"$setIsSubset": "IsSubsetOf", "$setEquals": "SetEquals", "$cmp": "CompareTo"}[op]
		return expr.NewMethodCall(receiver, expr.Method{Name: name, Arity: 1}, other), nil

	case "$setUnion", "$setIntersection", "$setDifference":
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return nil, fmt.Errorf("%s expects a 2-element array, got %T", op, arg)
		}
		source, err := buildOperand(arr[0])
		if err != nil {
			return nil, err
		}
		other, err := buildOperand(arr[1])
		if err != nil {
			return nil, err
		}
		return expr.NewSetCombination(setOpKind[op], source, other), nil

	case "$map", "$filter":
		d, ok := arg.(bson.D)
		if !ok {
			return nil, fmt.Errorf("expected a document with input/as/in|cond, got %T", arg)
		}
		input, err := buildOperand(getMapValue(d, "input"))
		if err != nil {
			return nil, err
		}
		as := getMapString(d, "as")
		bodyVal := getMapValue(d, "in")
		if bodyVal == nil {
			bodyVal = getMapValue(d, "cond")
		}
		body, err := buildOperand(bodyVal)
		if err != nil {
			return nil, err
		}
		if op == "$map" {
			return expr.NewSelect(input, as, body), nil
		}
		return expr.NewWhere(input, as, body), nil

	case "$sum", "$avg", "$min", "$max", "$first", "$last", "$push", "$addToSet":
		operand, err := buildOperand(arg)
		if err != nil {
			return nil, err
		}
		return expr.NewAccumulator(accKind[op], operand), nil

	case "$dayOfMonth", "$dayOfYear", "$hour", "$minute", "$second", "$millisecond", "$month", "$year", "$dayOfWeek":
		target, err := buildOperand(arg)
		if err != nil {
			return nil, err
		}
		return expr.NewMemberAccess(target, dateTimeMemberName[op], expr.TypeDateTime), nil

	case "$add", "$subtract", "$multiply", "$divide", "$mod", "$and", "$or",
		"$eq", "$ne", "$lt", "$lte", "$gt", "$gte", "$ifNull", "$concat":
		return buildBinaryOp(op, arg)
	}

	return nil, fmt.Errorf("unsupported legacy expression operator: %s", op)
}

func buildBinaryOp(op string, arg interface{}) (expr.Expression, error) {
	arr, ok := arg.(bson.A)
	if !ok {
		arr = bson.A{arg}
	}
	if len(arr) < 2 {
		return nil, fmt.Errorf("%s expects at least 2 operands, got %d", op, len(arr))
	}
	typ := expr.TypeNumber
	if op == "$concat" {
		typ = expr.TypeString
	}
	acc, err := buildOperand(arr[0])
	if err != nil {
		return nil, err
	}
	for _, item := range arr[1:] {
		rhs, err := buildOperand(item)
		if err != nil {
			return nil, err
		}
		acc = expr.NewBinary(binaryOpKind[op], acc, rhs, typ)
	}
	return acc, nil
}

func buildCond(arg interface{}) (expr.Expression, error) {
	var parts []interface{}
	if d, ok := arg.(bson.D); ok {
		parts = []interface{}{getMapValue(d, "if"), getMapValue(d, "then"), getMapValue(d, "else")}
	} else if arr, ok := arg.(bson.A); ok && len(arr) == 3 {
		parts = []interface{}{arr[0], arr[1], arr[2]}
	} else {
		return nil, fmt.Errorf("$cond expects a document or 3-element array, got %T", arg)
	}
	test, err := buildOperand(parts[0])
	if err != nil {
		return nil, err
	}
	ifTrue, err := buildOperand(parts[1])
	if err != nil {
		return nil, err
	}
	ifFalse, err := buildOperand(parts[2])
	if err != nil {
		return nil, err
	}
	return expr.NewConditional(test, ifTrue, ifFalse), nil
}
