package generator

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// translateExpression renders a single aggregation-expression document
// (the payload half of an operator key/value pair, e.g. the value of
// "$add") as Go source constructing the equivalent expr.Expression. For
// each operator its switch lists, it mirrors the forward mapping
// translate.go applies at runtime; any other operator takes the native
// fallback below. This is that mapping run in reverse, over a raw
// legacy pipeline instead of a typed tree, so a caller migrating stored
// pipelines can get the typed tree a front-end would have produced.
func translateExpression(val interface{}) (string, error) {
	d, ok := val.(bson.D)
	if !ok || len(d) != 1 {
		return formatOperandLiteral(val), nil
	}
	op := d[0].Key
	arg := d[0].Value

	switch op {
	case "$literal":
		return formatOperandLiteral(arg), nil

	case "$not":
		return fmt.Sprintf("expr.NewUnary(expr.Not, %s)", translateOperand(unwrapSingleton(arg))), nil
	case "$size":
		return fmt.Sprintf("expr.NewUnary(expr.ArrayLength, %s)", translateOperand(arg)), nil

	case "$cond":
		return translateCond(arg)

	case "$toLower":
		return fmt.Sprintf("expr.NewMethodCall(%s, expr.Method{Name: \"ToLower\", DeclaringType: expr.TypeString})", translateOperand(arg)), nil
	case "$toUpper":
		return fmt.Sprintf("expr.NewMethodCall(%s, expr.Method{Name: \"ToUpper\", DeclaringType: expr.TypeString})", translateOperand(arg)), nil

	case "$substr", "$substrCP":
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 3 {
			return "", fmt.Errorf("%s expects a 3-element array, got %T", op, arg)
		}
		return fmt.Sprintf(
			"expr.NewMethodCall(%s, expr.Method{Name: \"Substring\", DeclaringType: expr.TypeString, Arity: 2}, %s, %s)",
			translateOperand(arr[0]), translateOperand(arr[1]), translateOperand(arr[2]),
		), nil

	case "$setIsSubset":
		return translateBinaryMethod(arg, "IsSubsetOf")
	case "$setEquals":
		return translateBinaryMethod(arg, "SetEquals")
	case "$cmp":
		return translateBinaryMethod(arg, "CompareTo")

	case "$setUnion", "$setIntersection", "$setDifference":
		arr, ok := arg.(bson.A)
		if !ok || len(arr) != 2 {
			return "", fmt.Errorf("%s expects a 2-element array, got %T", op, arg)
		}
		return fmt.Sprintf("expr.NewSetCombination(expr.%s, %s, %s)", setOpConst[op], translateOperand(arr[0]), translateOperand(arr[1])), nil

	case "$map":
		return translateMapOrFilter(arg, "expr.NewSelect")
	case "$filter":
		return translateMapOrFilter(arg, "expr.NewWhere")

	case "$sum", "$avg", "$min", "$max", "$first", "$last", "$push", "$addToSet":
		return fmt.Sprintf("expr.NewAccumulator(expr.%s, %s)", accKindConst[op], translateOperand(arg)), nil

	case "$dayOfMonth", "$dayOfYear", "$hour", "$minute", "$second", "$millisecond", "$month", "$year", "$dayOfWeek":
		return fmt.Sprintf("expr.NewMemberAccess(%s, %q, expr.TypeDateTime)", translateOperand(arg), dateTimeMemberName[op]), nil

	case "$add", "$subtract", "$multiply", "$divide", "$mod", "$and", "$or",
		"$eq", "$ne", "$lt", "$lte", "$gt", "$gte", "$ifNull", "$concat":
		return translateBinaryOp(op, arg)
	}

	// Native fallback: operators outside the recognized subset are kept
	// as a raw bson.D literal rather than rejected outright, so a
	// migration can still surface the rest of a legacy pipeline for a
	// human to finish by hand.
	return fmt.Sprintf("bson.D{{%q, %s}}", op, formatValue(val)), nil
}

var setOpConst = map[string]string{
	"$setUnion":        "SetUnion",
	"$setIntersection": "SetIntersect",
	"$setDifference":   "SetExcept",
}

var accKindConst = map[string]string{
	"$sum":      "AccSum",
	"$avg":      "AccAvg",
	"$min":      "AccMin",
	"$max":      "AccMax",
	"$first":    "AccFirst",
	"$last":     "AccLast",
	"$push":     "AccPush",
	"$addToSet": "AccAddToSet",
}

var dateTimeMemberName = map[string]string{
	"$dayOfMonth":  "Day",
	"$dayOfYear":   "DayOfYear",
	"$hour":        "Hour",
	"$minute":      "Minute",
	"$second":      "Second",
	"$millisecond": "Millisecond",
	"$month":       "Month",
	"$year":        "Year",
	"$dayOfWeek":   "DayOfWeek",
}

var binaryOpConst = map[string]string{
	"$add":      "Add",
	"$subtract": "Sub",
	"$multiply": "Mul",
	"$divide":   "Div",
	"$mod":      "Mod",
	"$and":      "And",
	"$or":       "Or",
	"$eq":       "Eq",
	"$ne":       "Ne",
	"$lt":       "Lt",
	"$lte":      "Le",
	"$gt":       "Gt",
	"$gte":      "Ge",
	"$ifNull":   "Coalesce",
	"$concat":   "Add",
}

// translateBinaryOp folds a 2-or-more element operand array into nested
// two-operand expr.NewBinary calls, left to right — the inverse of the
// flattening translate.go performs when building the array form.
func translateBinaryOp(op string, arg interface{}) (string, error) {
	arr, ok := arg.(bson.A)
	if !ok {
		arr = bson.A{arg}
	}
	if len(arr) < 2 {
		return "", fmt.Errorf("%s expects at least 2 operands, got %d", op, len(arr))
	}
	typ := "expr.TypeNumber"
	if op == "$concat" {
		typ = "expr.TypeString"
	}
	acc := translateOperand(arr[0])
	for _, item := range arr[1:] {
		acc = fmt.Sprintf("expr.NewBinary(expr.%s, %s, %s, %s)", binaryOpConst[op], acc, translateOperand(item), typ)
	}
	return acc, nil
}

func translateBinaryMethod(arg interface{}, methodName string) (string, error) {
	arr, ok := arg.(bson.A)
	if !ok || len(arr) != 2 {
		return "", fmt.Errorf("%s expects a 2-element array, got %T", methodName, arg)
	}
	return fmt.Sprintf(
		"expr.NewMethodCall(%s, expr.Method{Name: %q, Arity: 1}, %s)",
		translateOperand(arr[0]), methodName, translateOperand(arr[1]),
	), nil
}

func translateCond(arg interface{}) (string, error) {
	if d, ok := arg.(bson.D); ok {
		return fmt.Sprintf(
			"expr.NewConditional(%s, %s, %s)",
			translateOperand(getMapValue(d, "if")),
			translateOperand(getMapValue(d, "then")),
			translateOperand(getMapValue(d, "else")),
		), nil
	}
	arr, ok := arg.(bson.A)
	if !ok || len(arr) != 3 {
		return "", fmt.Errorf("$cond expects a document or 3-element array, got %T", arg)
	}
	return fmt.Sprintf("expr.NewConditional(%s, %s, %s)", translateOperand(arr[0]), translateOperand(arr[1]), translateOperand(arr[2])), nil
}

func translateMapOrFilter(arg interface{}, ctor string) (string, error) {
	d, ok := arg.(bson.D)
	if !ok {
		return "", fmt.Errorf("expected a document with input/as/in|cond, got %T", arg)
	}
	input := getMapValue(d, "input")
	as := getMapString(d, "as")
	body := getMapValue(d, "in")
	if body == nil {
		body = getMapValue(d, "cond")
	}
	return fmt.Sprintf("%s(%s, %q, %s)", ctor, translateOperand(input), as, translateOperand(body)), nil
}

// unwrapSingleton returns arr[0] when val is a one-element bson.A
// (the "$not" operand is always wrapped that way), else val unchanged.
func unwrapSingleton(val interface{}) interface{} {
	if arr, ok := val.(bson.A); ok && len(arr) == 1 {
		return arr[0]
	}
	return val
}

// translateOperand renders any operand position: a nested operator
// document, a field reference string, or a scalar literal.
func translateOperand(val interface{}) string {
	if s, ok := val.(string); ok {
		if strings.HasPrefix(s, "$$") {
			rest := strings.TrimPrefix(s, "$$")
			scope, path, found := strings.Cut(rest, ".")
			if !found {
				path = ""
			}
			return fmt.Sprintf("expr.NewScopedField(%q, %q)", path, scope)
		}
		if strings.HasPrefix(s, "$") {
			return fmt.Sprintf("expr.NewField(%q)", strings.TrimPrefix(s, "$"))
		}
		return formatOperandLiteral(s)
	}
	if d, ok := val.(bson.D); ok && len(d) == 1 && strings.HasPrefix(d[0].Key, "$") {
		src, err := translateExpression(d)
		if err == nil {
			return src
		}
	}
	return formatOperandLiteral(val)
}

func formatOperandLiteral(val interface{}) string {
	typ := "expr.TypeUnknown"
	switch val.(type) {
	case string:
		typ = "expr.TypeString"
	case int32, int64, float64:
		typ = "expr.TypeNumber"
	case bool:
		typ = "expr.TypeBool"
	}
	return fmt.Sprintf("expr.NewConstant(%s, %s)", formatValue(val), typ)
}

func getMapValue(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func getMapString(d bson.D, key string) string {
	if s, ok := getMapValue(d, key).(string); ok {
		return s
	}
	return ""
}
