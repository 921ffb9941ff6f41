package linqpipe

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

func TestTranslateFieldAndConstant(t *testing.T) {
	got, err := Translate(expr.NewField("age"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "$age" {
		t.Errorf("got %v, want $age", got)
	}

	got, err = Translate(expr.NewConstant(42, expr.TypeNumber))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestTranslateConstantDollarEscape(t *testing.T) {
	got, err := Translate(expr.NewConstant("$notAField", expr.TypeString))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bson.D{{Key: "$literal", Value: "$notAField"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTranslateAddFlattening(t *testing.T) {
	// (a + b) + c should flatten to a single $add over 3 operands, not a
	// nested $add([$add([a,b]), c]).
	ab := expr.NewBinary(expr.Add, expr.NewField("a"), expr.NewField("b"), expr.TypeNumber)
	abc := expr.NewBinary(expr.Add, ab, expr.NewField("c"), expr.TypeNumber)

	got, err := Translate(abc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := got.(bson.D)
	if !ok || len(d) != 1 || d[0].Key != "$add" {
		t.Fatalf("got %#v, want a single $add document", got)
	}
	arr, ok := d[0].Value.(bson.A)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected 3 flattened operands, got %#v", d[0].Value)
	}
}

func TestTranslateAddOnStringsConcats(t *testing.T) {
	e := expr.NewBinary(expr.Add, expr.NewField("first"), expr.NewField("last"), expr.TypeString)
	got, err := Translate(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := got.(bson.D)
	if d[0].Key != "$concat" {
		t.Errorf("got operator %q, want $concat", d[0].Key)
	}
}

func TestTranslateConditional(t *testing.T) {
	e := expr.NewConditional(
		expr.NewBinary(expr.Ge, expr.NewField("age"), expr.NewConstant(18, expr.TypeNumber), expr.TypeNumber),
		expr.NewConstant("adult", expr.TypeString),
		expr.NewConstant("minor", expr.TypeString),
	)
	got, err := Translate(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := got.(bson.D)
	if d[0].Key != "$cond" {
		t.Errorf("got operator %q, want $cond", d[0].Key)
	}
}

func TestTranslateDayOfWeekAdjustment(t *testing.T) {
	e := expr.NewMemberAccess(expr.NewField("createdAt"), "DayOfWeek", expr.TypeDateTime)
	got, err := Translate(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := got.(bson.D)
	if !ok || d[0].Key != "$subtract" {
		t.Fatalf("got %#v, want a $subtract wrapping $dayOfWeek", got)
	}
}

func TestTranslateStringMethods(t *testing.T) {
	upper := expr.NewMethodCall(expr.NewField("name"), expr.Method{Name: "ToUpper", DeclaringType: expr.TypeString})
	got, err := Translate(upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := got.(bson.D)
	if d[0].Key != "$toUpper" {
		t.Errorf("got %q, want $toUpper", d[0].Key)
	}

	eqIgnoreCase := expr.NewMethodCall(
		expr.NewField("name"), expr.Method{Name: "Equals", DeclaringType: expr.TypeString, Arity: 2},
		expr.NewField("other"), expr.NewConstant("OrdinalIgnoreCase", expr.TypeString),
	)
	got, err = Translate(eqIgnoreCase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d = got.(bson.D)
	if d[0].Key != "$eq" {
		t.Fatalf("got %q, want $eq", d[0].Key)
	}
	arr := d[0].Value.(bson.A)
	cmp, ok := arr[0].(bson.D)
	if !ok || cmp[0].Key != "$strcasecmp" {
		t.Fatalf("got %#v, want a $strcasecmp wrapped in $eq against 0", arr[0])
	}
	if arr[1] != 0 {
		t.Errorf("got %#v, want 0 as the $strcasecmp comparison target", arr[1])
	}
}

func TestTranslateSubstring(t *testing.T) {
	call := expr.NewMethodCall(
		expr.NewField("name"), expr.Method{Name: "Substring", DeclaringType: expr.TypeString, Arity: 2},
		expr.NewConstant(0, expr.TypeNumber), expr.NewConstant(3, expr.TypeNumber),
	)
	got, err := Translate(call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := got.(bson.D)
	if d[0].Key != "$substr" {
		t.Errorf("got %q, want $substr", d[0].Key)
	}
}

func TestTranslateSetCombination(t *testing.T) {
	e := expr.NewSetCombination(expr.SetUnion, expr.NewField("a"), expr.NewField("b"))
	got, err := Translate(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := got.(bson.D)
	if d[0].Key != "$setUnion" {
		t.Errorf("got %q, want $setUnion", d[0].Key)
	}
}

func TestTranslateSelectFusesFieldPath(t *testing.T) {
	sel := expr.NewSelect(expr.NewField("address"), "v", expr.NewScopedField("city", "v"))
	got, err := Translate(sel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "$address.city" {
		t.Errorf("got %v, want fused field path $address.city", got)
	}
}

func TestTranslateSelectFallsBackToMap(t *testing.T) {
	sel := expr.NewSelect(expr.NewField("tags"), "v", expr.NewUnary(expr.ArrayLength, expr.NewScopedField("", "v")))
	got, err := Translate(sel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := got.(bson.D)
	if !ok || d[0].Key != "$map" {
		t.Fatalf("got %#v, want a $map document", got)
	}
}

func TestTranslateWhereLowersToFilter(t *testing.T) {
	where := expr.NewWhere(
		expr.NewField("items"), "v",
		expr.NewBinary(expr.Gt, expr.NewScopedField("price", "v"), expr.NewConstant(10, expr.TypeNumber), expr.TypeNumber),
	)
	got, err := Translate(where)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := got.(bson.D)
	if !ok || d[0].Key != "$filter" {
		t.Fatalf("got %#v, want a $filter document", got)
	}
}

func TestTranslateUnsupportedMemberAccess(t *testing.T) {
	e := expr.NewMemberAccess(expr.NewField("x"), "Nonsense", expr.TypeUnknown)
	_, err := Translate(e)
	if err == nil {
		t.Fatal("expected an error for an unrecognized member")
	}
	var target *UnsupportedExpressionError
	if !asUnsupported(err, &target) {
		t.Fatalf("expected *UnsupportedExpressionError, got %T: %v", err, err)
	}
}

func asUnsupported(err error, target **UnsupportedExpressionError) bool {
	e, ok := err.(*UnsupportedExpressionError)
	if !ok {
		return false
	}
	*target = e
	return true
}
