package expr

import "testing"

func TestNewBinary(t *testing.T) {
	left := NewField("age")
	right := NewConstant(18, TypeNumber)
	b := NewBinary(Ge, left, right, TypeNumber)

	if b.Op != Ge {
		t.Errorf("Op = %v, want Ge", b.Op)
	}
	if b.Left != Expression(left) {
		t.Errorf("Left = %v, want %v", b.Left, left)
	}
	if b.Right != Expression(right) {
		t.Errorf("Right = %v, want %v", b.Right, right)
	}
}

func TestFieldScoping(t *testing.T) {
	root := NewField("name")
	if root.Scope != "" {
		t.Errorf("NewField should be root-scoped, got Scope=%q", root.Scope)
	}

	scoped := NewScopedField("name", "v")
	if scoped.Scope != "v" {
		t.Errorf("Scope = %q, want %q", scoped.Scope, "v")
	}
	if scoped.Path != "name" {
		t.Errorf("Path = %q, want %q", scoped.Path, "name")
	}
}

func TestPipelineWithResult(t *testing.T) {
	p := NewPipeline(Stage{Kind: StageTake, Count: 5})
	if p.Result != nil {
		t.Fatalf("fresh pipeline should have a nil Result")
	}

	withCount := p.WithResult(ResultOperator{Kind: ResultCount})
	if withCount.Result == nil || withCount.Result.Kind != ResultCount {
		t.Fatalf("WithResult did not attach the result operator")
	}
	if p.Result != nil {
		t.Fatalf("WithResult must not mutate the receiver")
	}
}

func TestGroupingKeyRoundTrip(t *testing.T) {
	gk := NewGroupingKey(NewField("country"))
	mi := NewMemberInit(Member{Name: "Key", Value: gk})
	if len(mi.Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(mi.Members))
	}
	if _, ok := mi.Members[0].Value.(GroupingKey); !ok {
		t.Fatalf("expected member value to be a GroupingKey")
	}
}
