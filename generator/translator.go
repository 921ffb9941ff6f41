package generator

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// translatePipeline renders a raw aggregation pipeline (bson.A of stage
// documents) as Go source constructing the equivalent expr.Pipeline.
func translatePipeline(arr bson.A) (string, error) {
	if len(arr) == 0 {
		return "", fmt.Errorf("empty pipeline")
	}

	var stages []string
	for i, item := range arr {
		doc, ok := item.(bson.D)
		if !ok {
			return "", fmt.Errorf("expected document as pipeline stage, got %T", item)
		}

		// A bare $group{_id:"$$ROOT"} is the canonical Distinct lowering.
		// Some pipelines pair it with a following
		// $replaceRoot{newRoot:"$_id"} to flatten the grouped shape back
		// out; either form round-trips to a single StageDistinct, and the
		// trailing $replaceRoot (if present) is consumed below.
		if isRootGroup(doc) {
			stages = append(stages, "expr.Stage{Kind: expr.StageDistinct}")
			continue
		}
		if i > 0 {
			if prev, ok := arr[i-1].(bson.D); ok && isRootGroup(prev) && isRootReplace(doc) {
				continue // consumed by the previous iteration
			}
		}

		stageStr, err := translatePipelineStage(doc)
		if err != nil {
			return "", err
		}
		stages = append(stages, stageStr)
	}

	return fmt.Sprintf("expr.NewPipeline(\n\t%s,\n)", strings.Join(stages, ",\n\t")), nil
}

func isRootGroup(doc bson.D) bool {
	if len(doc) != 1 || doc[0].Key != "$group" {
		return false
	}
	d, ok := doc[0].Value.(bson.D)
	return ok && getMapValue(d, "_id") == "$$ROOT"
}

func isRootReplace(doc bson.D) bool {
	if len(doc) != 1 || doc[0].Key != "$replaceRoot" {
		return false
	}
	d, ok := doc[0].Value.(bson.D)
	return ok && getMapValue(d, "newRoot") == "$_id"
}

func translatePipelineStage(doc bson.D) (string, error) {
	if len(doc) != 1 {
		return "", fmt.Errorf("pipeline stage must have exactly one top-level operator, got %d", len(doc))
	}
	op := doc[0].Key
	val := doc[0].Value

	switch op {
	case "$match":
		d, ok := val.(bson.D)
		if !ok {
			return "", fmt.Errorf("expected document for $match, got %T", val)
		}
		body, err := translateMatchBody(d)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("expr.Stage{Kind: expr.StageWhere, Var: \"x\", Body: %s}", body), nil

	case "$project", "$addFields", "$set":
		d, ok := val.(bson.D)
		if !ok {
			return "", fmt.Errorf("expected document for %s, got %T", op, val)
		}
		members, err := translateProjectionMembers(d)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("expr.Stage{Kind: expr.StageSelect, Body: expr.NewMemberInit(\n\t\t%s,\n\t)}", strings.Join(members, ",\n\t\t")), nil

	case "$group":
		d, ok := val.(bson.D)
		if !ok {
			return "", fmt.Errorf("expected document for $group, got %T", val)
		}
		idVal := getMapValue(d, "_id")
		members := []string{fmt.Sprintf("expr.Member{Name: \"Key\", Value: expr.NewGroupingKey(%s)}", translateOperand(idVal))}
		for _, e := range d {
			if e.Key == "_id" {
				continue
			}
			members = append(members, fmt.Sprintf("expr.Member{Name: %q, Value: %s}", e.Key, translateOperand(e.Value)))
		}
		return fmt.Sprintf(
			"expr.Stage{Kind: expr.StageGroupBy, Var: \"x\", Body: %s, ResultSelector: expr.NewMemberInit(\n\t\t%s,\n\t)}",
			translateOperand(idVal), strings.Join(members, ",\n\t\t"),
		), nil

	case "$sort":
		d, ok := val.(bson.D)
		if !ok {
			return "", fmt.Errorf("expected document for $sort, got %T", val)
		}
		return translateSort(d)

	case "$skip":
		return fmt.Sprintf("expr.Stage{Kind: expr.StageSkip, Count: %d}", getInt64(val)), nil
	case "$limit":
		return fmt.Sprintf("expr.Stage{Kind: expr.StageTake, Count: %d}", getInt64(val)), nil

	case "$unwind":
		path, ok := val.(string)
		if !ok {
			if d, ok := val.(bson.D); ok {
				path = getMapString(d, "path")
			}
		}
		return fmt.Sprintf("expr.Stage{Kind: expr.StageSelectMany, Var: \"x\", InnerPath: %q}", strings.TrimPrefix(path, "$")), nil
	}

	return "", fmt.Errorf("unsupported legacy stage operator: %s", op)
}

// translateMatchBody handles both the "$expr" wrapped form (recovered
// directly via translateExpression) and a plain query-style filter
// document, which is lowered to an implicit conjunction of field
// comparisons (see translateQueryField) — mirroring how a StageWhere body
// is built from a LINQ Where predicate over simple comparisons.
func translateMatchBody(d bson.D) (string, error) {
	if len(d) == 1 && d[0].Key == "$expr" {
		return translateOperand(d[0].Value), nil
	}

	var parts []string
	for _, e := range d {
		part, err := translateQueryField(e.Key, e.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty $match document")
	}
	acc := parts[0]
	for _, p := range parts[1:] {
		acc = fmt.Sprintf("expr.NewBinary(expr.And, %s, %s, expr.TypeBool)", acc, p)
	}
	return acc, nil
}

// queryOpConst maps the query-filter comparison shorthand (as opposed to
// the aggregation-expression array form of the same operators) to its
// expr.BinaryOp constant.
var queryOpConst = map[string]string{
	"$eq": "Eq", "$ne": "Ne", "$gt": "Gt", "$gte": "Ge", "$lt": "Lt", "$lte": "Le",
}

// translateQueryField lowers one {field: value} pair of a plain
// query-style filter document. value is either a bare literal (implicit
// equality) or a single-key document naming one of the comparison
// operators in queryOpConst; anything else is outside the recognized
// subset, since filter operators like $in/$regex/$elemMatch have no
// equivalent in the expr model.
func translateQueryField(field string, value interface{}) (string, error) {
	if d, ok := value.(bson.D); ok && len(d) == 1 {
		if binOp, ok := queryOpConst[d[0].Key]; ok {
			return fmt.Sprintf(
				"expr.NewBinary(expr.%s, expr.NewField(%q), %s, expr.TypeBool)",
				binOp, field, translateOperand(d[0].Value),
			), nil
		}
		return "", fmt.Errorf("unsupported legacy query operator: %s", d[0].Key)
	}
	return fmt.Sprintf(
		"expr.NewBinary(expr.Eq, expr.NewField(%q), %s, expr.TypeBool)", field, translateOperand(value),
	), nil
}

func translateProjectionMembers(d bson.D) ([]string, error) {
	var members []string
	for _, e := range d {
		if n, ok := e.Value.(int32); ok && n == 0 {
			continue // exclusion marker, nothing to project
		}
		members = append(members, fmt.Sprintf("expr.Member{Name: %q, Value: %s}", e.Key, translateOperand(e.Value)))
	}
	return members, nil
}

func translateSort(d bson.D) (string, error) {
	var stages []string
	for i, e := range d {
		kind := "expr.StageThenBy"
		if i == 0 {
			kind = "expr.StageOrderBy"
		}
		asc := getInt64(e.Value) >= 0
		stages = append(stages, fmt.Sprintf(
			"expr.Stage{Kind: %s, SortKeyName: %q, SortKey: expr.NewField(%q), Ascending: %t}",
			kind, e.Key, e.Key, asc,
		))
	}
	return strings.Join(stages, ",\n\t"), nil
}

func getInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func formatValue(val interface{}) string {
	switch v := val.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case nil:
		return "nil"
	case bson.A:
		var inner []string
		for _, e := range v {
			inner = append(inner, formatValue(e))
		}
		return fmt.Sprintf("bson.A{%s}", strings.Join(inner, ", "))
	case bson.D:
		var inner []string
		for _, e := range v {
			inner = append(inner, fmt.Sprintf("{Key: %q, Value: %s}", e.Key, formatValue(e.Value)))
		}
		return fmt.Sprintf("bson.D{%s}", strings.Join(inner, ", "))
	default:
		return fmt.Sprintf("%#v", v)
	}
}
