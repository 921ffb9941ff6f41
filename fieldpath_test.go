package linqpipe

import (
	"testing"

	"github.com/marrow-systems/linqpipe/expr"
)

func TestRewriteFieldRoot(t *testing.T) {
	got := rewriteField(expr.NewField("address.city"))
	want := "$address.city"
	if got != want {
		t.Errorf("rewriteField() = %q, want %q", got, want)
	}
}

func TestRewriteFieldScoped(t *testing.T) {
	got := rewriteField(expr.NewScopedField("name", "v"))
	want := "$$v.name"
	if got != want {
		t.Errorf("rewriteField() = %q, want %q", got, want)
	}
}

func TestFuseSelectField(t *testing.T) {
	sel := expr.NewSelect(expr.NewField("address"), "v", expr.NewScopedField("city", "v"))
	fused, ok := fuseSelectField(sel)
	if !ok {
		t.Fatalf("expected fusion to apply")
	}
	if fused.Path != "address.city" {
		t.Errorf("fused.Path = %q, want %q", fused.Path, "address.city")
	}
	if fused.Scope != "" {
		t.Errorf("fused.Scope = %q, want root scope", fused.Scope)
	}
}

func TestFuseSelectFieldDoesNotApplyToComputedSelector(t *testing.T) {
	sel := expr.NewSelect(expr.NewField("tags"), "v", expr.NewUnary(expr.ArrayLength, expr.NewScopedField("", "v")))
	if _, ok := fuseSelectField(sel); ok {
		t.Fatalf("fusion should not apply when the selector is not a bare field")
	}
}

func TestFuseSelectFieldDoesNotApplyToOuterScopedSelector(t *testing.T) {
	// The selector references a field scoped to an enclosing variable, not
	// this Select's own "v" — fusing it would silently drop that outer
	// reference and substitute a sub-field of Source instead.
	sel := expr.NewSelect(expr.NewField("items"), "v", expr.NewScopedField("currency", "outer"))
	if _, ok := fuseSelectField(sel); ok {
		t.Fatalf("fusion should not apply to a selector scoped to a different variable")
	}
}
