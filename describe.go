package linqpipe

import (
	"fmt"
	"strings"

	"github.com/marrow-systems/linqpipe/expr"
)

// Describe renders an expression tree as a short pseudo-source string,
// e.g. "(A + B)" or "Name.ToUpper()". It is used only for
// diagnostics — UnsupportedExpressionError messages and the CLI's
// describe subcommand — and is never parsed back.
//
// The dispatch mirrors generator/translate_expr.go's switch, which
// renders BSON operator documents as Go source by switching on operator
// name; here the switch is over expr.Expression's concrete types
// instead, since this renders the typed tree rather than its BSON
// translation.
func Describe(e expr.Expression) string {
	if e == nil {
		return "<nil>"
	}
	switch n := e.(type) {
	case expr.Binary:
		return fmt.Sprintf("(%s %s %s)", Describe(n.Left), binaryOpToken(n.Op), Describe(n.Right))
	case expr.Unary:
		return describeUnary(n)
	case expr.Conditional:
		return fmt.Sprintf("(%s ? %s : %s)", Describe(n.Test), Describe(n.IfTrue), Describe(n.IfFalse))
	case expr.Constant:
		return describeConstant(n)
	case expr.MemberAccess:
		return fmt.Sprintf("%s.%s", Describe(n.Target), n.MemberName)
	case expr.MethodCall:
		return describeMethodCall(n)
	case expr.MemberInit:
		return describeMemberInit(n)
	case expr.Field:
		return n.Path
	case expr.FieldAsDocument:
		return fmt.Sprintf("{%s: %s}", n.Name, Describe(n.Inner))
	case expr.Select:
		return fmt.Sprintf("%s.Select(%s => %s)", Describe(n.Source), n.Var, Describe(n.Selector))
	case expr.Where:
		return fmt.Sprintf("%s.Where(%s => %s)", Describe(n.Source), n.Var, Describe(n.Predicate))
	case expr.Accumulator:
		return fmt.Sprintf("%s(%s)", accumulatorToken(n.Kind), Describe(n.Arg))
	case expr.GroupingKey:
		return fmt.Sprintf("Key(%s)", Describe(n.Key))
	case expr.SetCombination:
		return fmt.Sprintf("%s.%s(%s)", Describe(n.Source), setOpToken(n.Op), Describe(n.Other))
	case expr.Pipeline:
		return describePipeline(n)
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

// describeAny accepts anything — a full Pipeline/Stage during pipeline
// building, or a bare Expression during value translation — and always
// produces a printable string, never panicking on an unrecognized shape.
func describeAny(e any) string {
	if expression, ok := e.(expr.Expression); ok {
		return Describe(expression)
	}
	return fmt.Sprintf("%v", e)
}

func describeUnary(n expr.Unary) string {
	switch n.Op {
	case expr.Not:
		return fmt.Sprintf("!%s", Describe(n.Operand))
	case expr.Negate:
		return fmt.Sprintf("-%s", Describe(n.Operand))
	case expr.ArrayLength:
		return fmt.Sprintf("%s.Length", Describe(n.Operand))
	case expr.Convert:
		return fmt.Sprintf("Convert(%s)", Describe(n.Operand))
	default:
		return fmt.Sprintf("Unary(%s)", Describe(n.Operand))
	}
}

func describeConstant(n expr.Constant) string {
	if s, ok := n.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", n.Value)
}

func describeMethodCall(n expr.MethodCall) string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = Describe(a)
	}
	if n.Receiver == nil {
		return fmt.Sprintf("%s(%s)", n.Method.Name, strings.Join(args, ", "))
	}
	return fmt.Sprintf("%s.%s(%s)", Describe(n.Receiver), n.Method.Name, strings.Join(args, ", "))
}

func describeMemberInit(n expr.MemberInit) string {
	parts := make([]string, len(n.Members))
	for i, m := range n.Members {
		parts[i] = fmt.Sprintf("%s = %s", m.Name, Describe(m.Value))
	}
	return fmt.Sprintf("new { %s }", strings.Join(parts, ", "))
}

func describePipeline(p expr.Pipeline) string {
	var b strings.Builder
	b.WriteString("source")
	for _, st := range p.Stages {
		b.WriteString(".")
		b.WriteString(describeStage(st))
	}
	if p.Result != nil {
		b.WriteString(".")
		b.WriteString(describeResultOperator(*p.Result))
	}
	return b.String()
}

func describeStage(st expr.Stage) string {
	switch st.Kind {
	case expr.StageWhere:
		return fmt.Sprintf("Where(%s => %s)", st.Var, Describe(st.Body))
	case expr.StageSelect:
		return fmt.Sprintf("Select(%s => %s)", st.Var, Describe(st.Body))
	case expr.StageGroupBy:
		return fmt.Sprintf("GroupBy(%s => %s)", st.Var, Describe(st.Body))
	case expr.StageOrderBy:
		return fmt.Sprintf("OrderBy(%s)", Describe(st.SortKey))
	case expr.StageThenBy:
		return fmt.Sprintf("ThenBy(%s)", Describe(st.SortKey))
	case expr.StageSkip:
		return fmt.Sprintf("Skip(%d)", st.Count)
	case expr.StageTake:
		return fmt.Sprintf("Take(%d)", st.Count)
	case expr.StageOfType:
		return fmt.Sprintf("OfType<%s>()", st.TypeName)
	case expr.StageSelectMany:
		return fmt.Sprintf("SelectMany(%s => %s)", st.Var, st.InnerPath)
	case expr.StageDistinct:
		return "Distinct()"
	default:
		return "<stage>"
	}
}

func describeResultOperator(r expr.ResultOperator) string {
	switch r.Kind {
	case expr.ResultAny:
		return "Any()"
	case expr.ResultAnyPredicate:
		return fmt.Sprintf("Any(%s)", Describe(r.Predicate))
	case expr.ResultAll:
		return fmt.Sprintf("All(%s)", Describe(r.Predicate))
	case expr.ResultCount:
		return "Count()"
	case expr.ResultContains:
		return fmt.Sprintf("Contains(%s)", Describe(r.Value))
	case expr.ResultFirst:
		return "First()"
	case expr.ResultSingle:
		return "Single()"
	default:
		return "<result-operator>"
	}
}

func binaryOpToken(op expr.BinaryOp) string {
	switch op {
	case expr.Add:
		return "+"
	case expr.Sub:
		return "-"
	case expr.Mul:
		return "*"
	case expr.Div:
		return "/"
	case expr.Mod:
		return "%"
	case expr.And:
		return "&&"
	case expr.Or:
		return "||"
	case expr.Eq:
		return "=="
	case expr.Ne:
		return "!="
	case expr.Lt:
		return "<"
	case expr.Le:
		return "<="
	case expr.Gt:
		return ">"
	case expr.Ge:
		return ">="
	case expr.Coalesce:
		return "??"
	default:
		return "?"
	}
}

func accumulatorToken(kind expr.AccumulatorKind) string {
	switch kind {
	case expr.AccSum:
		return "Sum"
	case expr.AccAvg:
		return "Average"
	case expr.AccMin:
		return "Min"
	case expr.AccMax:
		return "Max"
	case expr.AccFirst:
		return "First"
	case expr.AccLast:
		return "Last"
	case expr.AccPush:
		return "ToArray"
	case expr.AccAddToSet:
		return "Distinct"
	default:
		return "Accumulator"
	}
}

func setOpToken(op expr.SetOp) string {
	switch op {
	case expr.SetUnion:
		return "Union"
	case expr.SetIntersect:
		return "Intersect"
	case expr.SetExcept:
		return "Except"
	default:
		return "SetOp"
	}
}
