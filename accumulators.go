package linqpipe

import (
	"fmt"
	"reflect"

	"github.com/marrow-systems/linqpipe/expr"
)

// aggSlot binds a group-level accumulator expression encountered
// downstream of a GroupBy to the fresh field name it was hoisted into
// the $group stage under.
type aggSlot struct {
	acc  expr.Accumulator
	name string
}

// hoistAccumulators rewrites a Pipeline so that no Accumulator or
// GroupingKey node survives in a stage downstream of the GroupBy it
// belongs to. A $group stage can't be re-executed by a later $match or
// $project, so any accumulator a caller references after grouping (e.g.
// g.First().B in a Where or Select that follows GroupBy) has to be
// computed once, inside the $group stage itself, under a fresh slot name
// (__agg0, __agg1, ...), with every downstream reference rewritten to
// point at that slot. Structurally identical accumulator expressions
// share one slot. g.Key references are rewritten to the group's own
// "_id" field the same way.
//
// This runs once per Build call, before the builder walks the stage
// list, so every later stage sees field references only.
func hoistAccumulators(p expr.Pipeline) expr.Pipeline {
	stages := append([]expr.Stage(nil), p.Stages...)

	for i := range stages {
		if stages[i].Kind != expr.StageGroupBy {
			continue
		}

		end := len(stages)
		for j := i + 1; j < len(stages); j++ {
			if stages[j].Kind == expr.StageGroupBy {
				end = j
				break
			}
		}

		h := &accumulatorHoister{}
		for j := i + 1; j < end; j++ {
			if stages[j].Body != nil {
				stages[j].Body = h.rewrite(stages[j].Body)
			}
			if stages[j].ResultSelector != nil {
				stages[j].ResultSelector = h.rewrite(stages[j].ResultSelector)
			}
			if stages[j].SortKey != nil {
				stages[j].SortKey = h.rewrite(stages[j].SortKey)
			}
		}

		if len(h.slots) > 0 {
			stages[i] = addAggregatorSlots(stages[i], h.slots)
		}
	}

	return expr.Pipeline{Stages: stages, Result: p.Result}
}

// accumulatorHoister walks an expression tree replacing every Accumulator
// with a root-scoped Field reference to its (possibly newly allocated)
// slot name, and every GroupingKey with a root-scoped reference to "_id".
type accumulatorHoister struct {
	slots []aggSlot
}

func (h *accumulatorHoister) rewrite(e expr.Expression) expr.Expression {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case expr.Accumulator:
		for _, s := range h.slots {
			if reflect.DeepEqual(s.acc, n) {
				return expr.NewField(s.name)
			}
		}
		name := fmt.Sprintf("__agg%d", len(h.slots))
		h.slots = append(h.slots, aggSlot{acc: n, name: name})
		return expr.NewField(name)
	case expr.GroupingKey:
		return expr.NewField("_id")
	case expr.Field:
		return n
	case expr.Constant:
		return n
	case expr.Binary:
		return expr.NewBinary(n.Op, h.rewrite(n.Left), h.rewrite(n.Right), n.Typ)
	case expr.Unary:
		return expr.NewUnary(n.Op, h.rewrite(n.Operand))
	case expr.Conditional:
		return expr.NewConditional(h.rewrite(n.Test), h.rewrite(n.IfTrue), h.rewrite(n.IfFalse))
	case expr.MemberAccess:
		return expr.NewMemberAccess(h.rewrite(n.Target), n.MemberName, n.DeclaringType)
	case expr.MethodCall:
		var recv expr.Expression
		if n.Receiver != nil {
			recv = h.rewrite(n.Receiver)
		}
		args := make([]expr.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = h.rewrite(a)
		}
		return expr.MethodCall{Receiver: recv, Method: n.Method, Args: args}
	case expr.MemberInit:
		members := make([]expr.Member, len(n.Members))
		for i, m := range n.Members {
			members[i] = expr.Member{Name: m.Name, Value: h.rewrite(m.Value)}
		}
		return expr.MemberInit{Members: members}
	case expr.FieldAsDocument:
		return expr.NewFieldAsDocument(n.Name, h.rewrite(n.Inner))
	case expr.Select:
		return expr.Select{Source: h.rewrite(n.Source), Var: n.Var, Selector: h.rewrite(n.Selector)}
	case expr.Where:
		return expr.Where{Source: h.rewrite(n.Source), Var: n.Var, Predicate: h.rewrite(n.Predicate)}
	case expr.SetCombination:
		return expr.NewSetCombination(n.Op, h.rewrite(n.Source), h.rewrite(n.Other))
	default:
		return e
	}
}

// addAggregatorSlots folds the hoisted slots into st's group document:
// each becomes a member alongside the existing result selector (or a
// freshly built one wrapping st.Body as the grouping key, if st had no
// explicit ResultSelector of its own).
func addAggregatorSlots(st expr.Stage, slots []aggSlot) expr.Stage {
	var members []expr.Member
	if mi, ok := st.ResultSelector.(expr.MemberInit); ok {
		members = append(members, mi.Members...)
	} else {
		members = append(members, expr.Member{Name: "_id", Value: expr.NewGroupingKey(st.Body)})
	}
	for _, s := range slots {
		members = append(members, expr.Member{Name: s.name, Value: s.acc})
	}
	st.ResultSelector = expr.NewMemberInit(members...)
	return st
}
