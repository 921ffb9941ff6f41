package linqpipe

import (
	"errors"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

func TestBuildRejectsEmptyPipeline(t *testing.T) {
	_, err := Build(expr.Pipeline{}, TranslateOptions{})
	if !errors.Is(err, ErrEmptyPipeline) {
		t.Fatalf("got %v, want ErrEmptyPipeline", err)
	}
}

func TestBuildWhereSelectSkipTake(t *testing.T) {
	p := expr.NewPipeline(
		expr.Stage{
			Kind: expr.StageWhere, Var: "x",
			Body: expr.NewBinary(expr.Ge, expr.NewField("age"), expr.NewConstant(18, expr.TypeNumber), expr.TypeNumber),
		},
		expr.Stage{
			Kind: expr.StageSelect,
			Body: expr.NewMemberInit(expr.Member{Name: "name", Value: expr.NewField("name")}),
		},
		expr.Stage{Kind: expr.StageSkip, Count: 5},
		expr.Stage{Kind: expr.StageTake, Count: 10},
	)

	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 4 {
		t.Fatalf("got %d stages, want 4", len(stages))
	}
	wantOps := []string{"$match", "$project", "$skip", "$limit"}
	for i, want := range wantOps {
		if stages[i][0].Key != want {
			t.Errorf("stage %d: got %q, want %q", i, stages[i][0].Key, want)
		}
	}
}

func TestBuildGroupByWithAccumulators(t *testing.T) {
	p := expr.NewPipeline(expr.Stage{
		Kind: expr.StageGroupBy, Var: "x",
		Body: expr.NewField("country"),
		ResultSelector: expr.NewMemberInit(
			expr.Member{Name: "Key", Value: expr.NewGroupingKey(expr.NewField("country"))},
			expr.Member{Name: "total", Value: expr.NewAccumulator(expr.AccSum, expr.NewConstant(1, expr.TypeNumber))},
		),
	})

	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 1 || stages[0][0].Key != "$group" {
		t.Fatalf("got %#v, want a single $group stage", stages)
	}
}

func TestBuildOrderByThenByAccumulateIntoOneSort(t *testing.T) {
	p := expr.NewPipeline(
		expr.Stage{Kind: expr.StageOrderBy, SortKeyName: "age", SortKey: expr.NewField("age"), Ascending: true},
		expr.Stage{Kind: expr.StageThenBy, SortKeyName: "name", SortKey: expr.NewField("name"), Ascending: false},
	)
	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 1 || stages[0][0].Key != "$sort" {
		t.Fatalf("got %#v, want a single $sort stage", stages)
	}
}

func TestBuildAmbiguousOrdering(t *testing.T) {
	p := expr.NewPipeline(
		expr.Stage{Kind: expr.StageOrderBy, SortKeyName: "age", SortKey: expr.NewField("age"), Ascending: true},
		expr.Stage{Kind: expr.StageThenBy, SortKeyName: "age", SortKey: expr.NewField("age"), Ascending: false},
	)
	_, err := Build(p, TranslateOptions{})
	if !errors.Is(err, ErrAmbiguousOrdering) {
		t.Fatalf("got %v, want ErrAmbiguousOrdering", err)
	}
}

func TestBuildDistinctLowersToSingleGroupStage(t *testing.T) {
	p := expr.NewPipeline(expr.Stage{Kind: expr.StageDistinct})
	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 1 || stages[0][0].Key != "$group" {
		t.Fatalf("got %#v, want a single $group stage", stages)
	}
	group, ok := stages[0][0].Value.(bson.D)
	if !ok || len(group) != 1 || group[0].Key != "_id" || group[0].Value != "$$ROOT" {
		t.Fatalf("got %#v, want {_id: \"$$ROOT\"}", group)
	}
}

func TestBuildDistinctThenWhereMatchesAgainstID(t *testing.T) {
	p := expr.NewPipeline(
		expr.Stage{Kind: expr.StageDistinct},
		expr.Stage{
			Kind: expr.StageWhere, Var: "x",
			Body: expr.NewBinary(expr.Eq, expr.NewField("country"), expr.NewConstant("Awesome", expr.TypeString), expr.TypeBool),
		},
	)
	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 2 || stages[1][0].Key != "$match" {
		t.Fatalf("got %#v, want $group then $match", stages)
	}
	match, ok := stages[1][0].Value.(bson.D)
	if !ok || len(match) != 1 || match[0].Key != "_id.country" || match[0].Value != "Awesome" {
		t.Fatalf("got %#v, want {\"_id.country\": \"Awesome\"}", match)
	}
}

func TestBuildResultCount(t *testing.T) {
	p := expr.NewPipeline(expr.Stage{Kind: expr.StageSkip, Count: 0}).WithResult(expr.ResultOperator{Kind: expr.ResultCount})
	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	last := stages[len(stages)-1]
	if last[0].Key != "$count" {
		t.Errorf("got %q, want $count as the final stage", last[0].Key)
	}
}

func TestBuildSurfacesAllowDiskUse(t *testing.T) {
	p := expr.NewPipeline(expr.Stage{Kind: expr.StageSkip, Count: 0})
	result, err := Build(p, TranslateOptions{AllowDiskUse: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AllowDiskUse() {
		t.Error("expected AllowDiskUse() to reflect the requested option")
	}
}

func TestBuildEnforcesMaxStages(t *testing.T) {
	stages := make([]expr.Stage, 0, 5)
	for i := 0; i < 5; i++ {
		stages = append(stages, expr.Stage{Kind: expr.StageSkip, Count: int64(i)})
	}
	p := expr.NewPipeline(stages...)
	_, err := Build(p, TranslateOptions{MaxStages: 3})
	if err == nil {
		t.Fatal("expected an error when the pipeline exceeds MaxStages")
	}
}

func TestBuildWhereCompilesToNativeMatch(t *testing.T) {
	p := expr.NewPipeline(expr.Stage{
		Kind: expr.StageWhere, Var: "x",
		Body: expr.NewBinary(expr.Eq, expr.NewField("A"), expr.NewConstant("Awesome", expr.TypeString), expr.TypeBool),
	})
	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 1 || stages[0][0].Key != "$match" {
		t.Fatalf("got %#v, want a single $match stage", stages)
	}
	match, ok := stages[0][0].Value.(bson.D)
	if !ok || len(match) != 1 || match[0].Key != "A" || match[0].Value != "Awesome" {
		t.Fatalf("got %#v, want plain query-match {A: \"Awesome\"}, not an $expr wrapper", match)
	}
}

func TestBuildWhereFieldToFieldComparisonUsesExpr(t *testing.T) {
	p := expr.NewPipeline(expr.Stage{
		Kind: expr.StageWhere, Var: "x",
		Body: expr.NewBinary(expr.Gt, expr.NewField("spent"), expr.NewField("budget"), expr.TypeNumber),
	})
	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	match, ok := result.BsonD()[0][0].Value.(bson.D)
	if !ok || len(match) != 1 || match[0].Key != "$expr" {
		t.Fatalf("got %#v, want a single $expr clause for a field-to-field comparison", match)
	}
}

// TestBuildGroupByHoistsDownstreamAccumulator exercises a GroupBy with no
// inline result selector, followed by a Where and a Select that each
// reference the same group-first accumulator and the grouping key — the
// shape that requires hoisting the accumulator into the $group stage
// under a shared fresh slot name before the downstream clauses can be
// compiled at all.
func TestBuildGroupByHoistsDownstreamAccumulator(t *testing.T) {
	firstB := expr.NewAccumulator(expr.AccFirst, expr.NewField("B"))

	p := expr.NewPipeline(
		expr.Stage{Kind: expr.StageGroupBy, Var: "g", Body: expr.NewField("A")},
		expr.Stage{
			Kind: expr.StageWhere, Var: "g",
			Body: expr.NewBinary(expr.Eq, firstB, expr.NewConstant("Balloon", expr.TypeString), expr.TypeBool),
		},
		expr.Stage{
			Kind: expr.StageSelect,
			Body: expr.NewMemberInit(
				expr.Member{Name: "Key", Value: expr.NewGroupingKey(expr.NewField("A"))},
				expr.Member{Name: "FirstB", Value: firstB},
			),
		},
	)

	result, err := Build(p, TranslateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stages := result.BsonD()
	if len(stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(stages))
	}

	group, ok := stages[0][0].Value.(bson.D)
	if !ok || len(group) != 2 || group[0].Key != "_id" || group[0].Value != "$A" {
		t.Fatalf("got %#v, want {_id: \"$A\", __agg0: {$first: \"$B\"}}", group)
	}
	slot := group[1].Key
	wantAcc := bson.D{{Key: "$first", Value: "$B"}}
	if !reflect.DeepEqual(group[1].Value, wantAcc) {
		t.Fatalf("got %#v, want %#v", group[1].Value, wantAcc)
	}

	match, ok := stages[1][0].Value.(bson.D)
	if !ok || len(match) != 1 || match[0].Key != slot || match[0].Value != "Balloon" {
		t.Fatalf("got %#v, want {%q: \"Balloon\"}", match, slot)
	}

	project, ok := stages[2][0].Value.(bson.D)
	if !ok || len(project) != 3 {
		t.Fatalf("got %#v, want a 3-entry $project", project)
	}
	if project[0].Key != "Key" || project[0].Value != "$_id" {
		t.Errorf("got %#v, want Key: \"$_id\" first", project[0])
	}
	if project[1].Key != "FirstB" || project[1].Value != "$"+slot {
		t.Errorf("got %#v, want FirstB: %q", project[1], "$"+slot)
	}
	if project[2].Key != "_id" || project[2].Value != 0 {
		t.Errorf("got %#v, want _id: 0", project[2])
	}
}
