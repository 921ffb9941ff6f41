package linqpipe

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/marrow-systems/linqpipe/expr"
)

// Result is the output of Build: an ordered list of aggregation pipeline
// stages ready to hand to mongo.Collection.Aggregate, plus the
// serialization helpers every builder in this package exposes.
type Result struct {
	stages       []bson.D
	allowDiskUse bool
}

// AllowDiskUse reports whether the caller's TranslateOptions requested
// disk use for stages that may spill memory (e.g. a $group or $sort over
// a large input) — callers pass it through to
// mongooptions.Aggregate().SetAllowDiskUse before calling Aggregate.
func (r Result) AllowDiskUse() bool {
	return r.allowDiskUse
}

// BsonD returns the pipeline as a []bson.D (mongo.Pipeline).
func (r Result) BsonD() []bson.D {
	return r.stages
}

// JSON returns the pipeline as a pretty-printed JSON array string.
func (r Result) JSON() string {
	return pipelineToJSON(r.stages)
}

// CompactJSON returns the pipeline as a compact JSON array string.
func (r Result) CompactJSON() string {
	return pipelineToCompactJSON(r.stages)
}

// builder accumulates stages while walking a Pipeline's Stages list. It
// also tracks the field names seen in the sort group currently being
// accumulated, so a repeated sort key is caught before two separate
// OrderBy/ThenBy runs could otherwise be confused for one.
type builder struct {
	opts   TranslateOptions
	stages []bson.D

	sortPending bson.D
	sortSeen    map[string]bool

	// distinctRootActive is true between a whole-root Distinct() stage
	// and the next Select, GroupBy, SelectMany or projected Distinct
	// stage, or the end of the pipeline. While true, root-scoped field references
	// in stage bodies are rewritten under "_id" to match the document
	// shape {_id: <original root>} that the $group stage produced.
	distinctRootActive bool

	// fldCounter allocates fresh __fldN placeholder names for a Select
	// whose selector is a bare computation rather than a projection or a
	// single field. Scoped to one Build call, per the fresh-name
	// allocation rule accumulatorHoister uses for its __aggN slots.
	fldCounter int
}

func (b *builder) add(name string, value any) {
	b.stages = append(b.stages, bson.D{{Key: name, Value: value}})
}

// flushSort emits the accumulated OrderBy/ThenBy run as a single $sort
// stage. A no-op when no sort is pending.
func (b *builder) flushSort() {
	if len(b.sortPending) == 0 {
		return
	}
	b.add("$sort", b.sortPending)
	b.sortPending = nil
	b.sortSeen = nil
}

// Build lowers a Pipeline to an ordered stage list. opts is normalized
// against its defaults before any guard is checked; pass a zero
// TranslateOptions to use the defaults outright.
func Build(p expr.Pipeline, opts TranslateOptions) (Result, error) {
	if len(p.Stages) == 0 {
		return Result{}, ErrEmptyPipeline
	}
	norm, err := opts.normalize()
	if err != nil {
		return Result{}, err
	}

	p = hoistAccumulators(p)

	b := &builder{opts: norm}
	for _, st := range p.Stages {
		if st.Kind != expr.StageOrderBy && st.Kind != expr.StageThenBy {
			b.flushSort()
		}
		if err := b.addStage(st); err != nil {
			return Result{}, err
		}
	}
	b.flushSort()

	if p.Result != nil {
		if err := b.addResultOperator(*p.Result); err != nil {
			return Result{}, err
		}
	}

	if len(b.stages) > norm.MaxStages {
		return Result{}, internalInvariant("pipeline has %d stages, exceeding MaxStages (%d)", len(b.stages), norm.MaxStages)
	}

	return Result{stages: b.stages, allowDiskUse: norm.AllowDiskUse}, nil
}

func (b *builder) addStage(st expr.Stage) error {
	switch st.Kind {
	case expr.StageWhere:
		return b.addWhere(st)
	case expr.StageSelect:
		if err := b.addSelect(st); err != nil {
			return err
		}
		b.distinctRootActive = false
		return nil
	case expr.StageGroupBy:
		if err := b.addGroupBy(st); err != nil {
			return err
		}
		b.distinctRootActive = false
		return nil
	case expr.StageOrderBy, expr.StageThenBy:
		return b.addSortKey(st)
	case expr.StageSkip:
		b.add("$skip", st.Count)
		return nil
	case expr.StageTake:
		b.add("$limit", st.Count)
		return nil
	case expr.StageOfType:
		disc := st.Discriminator
		if b.distinctRootActive {
			disc = "_id." + disc
		}
		b.add("$match", bson.D{{Key: disc, Value: st.TypeName}})
		return nil
	case expr.StageSelectMany:
		path := st.InnerPath
		if b.distinctRootActive {
			path = "_id." + path
		}
		b.add("$unwind", "$"+path)
		b.distinctRootActive = false
		return nil
	case expr.StageDistinct:
		return b.addDistinct(st)
	default:
		return internalInvariant("unhandled stage kind %d", st.Kind)
	}
}

// addDistinct lowers Distinct() to a single $group stage. Over the whole
// root (st.Body nil) the group key is the full input document, $$ROOT;
// over a projected expression it is that expression's translation. No
// $replaceRoot follows: downstream stages see the grouped document shape
// {_id: ...} directly, with their own root-scoped field references
// rewritten under "_id" for as long as distinctRootActive holds.
func (b *builder) addDistinct(st expr.Stage) error {
	if st.Body == nil {
		b.add("$group", bson.D{{Key: "_id", Value: "$$ROOT"}})
		b.distinctRootActive = true
		return nil
	}
	key, err := translateValue(st.Body)
	if err != nil {
		return withStage(err, "Distinct")
	}
	b.add("$group", bson.D{{Key: "_id", Value: key}})
	b.distinctRootActive = false
	return nil
}

func (b *builder) addWhere(st expr.Stage) error {
	body := st.Body
	if b.distinctRootActive {
		body = rewriteRootFieldsToID(body)
	}
	match, err := compileMatchBody(body)
	if err != nil {
		return withStage(err, "Where")
	}
	b.add("$match", match)
	return nil
}

// addSelect branches on the selector's expression kind, not the shape of
// its translated BSON value — a computation and a MemberInit can both
// translate to a bson.D, and conflating them by Go type alone emits the
// wrong stage body for one of the two.
func (b *builder) addSelect(st expr.Stage) error {
	body := st.Body
	if b.distinctRootActive {
		body = rewriteRootFieldsToID(body)
	}

	switch sel := body.(type) {
	case expr.MemberInit:
		doc, hasID, err := projectMemberInit(sel)
		if err != nil {
			return withStage(err, "Select")
		}
		if !hasID {
			doc = append(doc, bson.E{Key: "_id", Value: 0})
		}
		b.add("$project", doc)
		return nil

	case expr.Field:
		b.add("$project", bson.D{{Key: sel.Path, Value: 1}, {Key: "_id", Value: 0}})
		return nil

	default:
		val, err := translateValue(sel)
		if err != nil {
			return withStage(err, "Select")
		}
		name := fmt.Sprintf("__fld%d", b.fldCounter)
		b.fldCounter++
		b.add("$project", bson.D{{Key: name, Value: val}, {Key: "_id", Value: 0}})
		return nil
	}
}

func (b *builder) addGroupBy(st expr.Stage) error {
	body := st.Body
	resultSelector := st.ResultSelector
	if b.distinctRootActive {
		body = rewriteRootFieldsToID(body)
		resultSelector = rewriteRootFieldsToID(resultSelector)
	}

	if resultSelector != nil {
		mi, ok := resultSelector.(expr.MemberInit)
		if !ok {
			return internalInvariant("GroupBy ResultSelector must be a MemberInit, got %T", resultSelector)
		}
		doc, _, err := projectMemberInit(mi)
		if err != nil {
			return withStage(err, "GroupBy")
		}
		b.add("$group", doc)
		return nil
	}

	key, err := translateValue(body)
	if err != nil {
		return withStage(err, "GroupBy")
	}
	b.add("$group", bson.D{{Key: "_id", Value: key}})
	return nil
}

// addSortKey folds one OrderBy/ThenBy key into the sort document currently
// being accumulated, detecting a field named twice within the same run
// and rejecting it as an ambiguous ordering.
func (b *builder) addSortKey(st expr.Stage) error {
	if len(b.sortPending) >= b.opts.MaxSortFields {
		return internalInvariant("sort specification exceeds MaxSortFields (%d)", b.opts.MaxSortFields)
	}
	if b.sortSeen == nil {
		b.sortSeen = make(map[string]bool)
	}
	if b.sortSeen[st.SortKeyName] {
		return ambiguousOrdering(st.SortKeyName)
	}
	b.sortSeen[st.SortKeyName] = true

	name := st.SortKeyName
	if b.distinctRootActive {
		name = "_id." + name
	}
	dir := 1
	if !st.Ascending {
		dir = -1
	}
	b.sortPending = append(b.sortPending, bson.E{Key: name, Value: dir})
	return nil
}

// addResultOperator lowers a Pipeline's terminal operator into the
// trailing stages that make the driver-facing result shape
// unambiguous: Count collapses to a single counted document, Any/First
// bound the result to at most one document, All and Contains reduce to a
// match the caller checks for absence/presence of a result.
func (b *builder) addResultOperator(r expr.ResultOperator) error {
	switch r.Kind {
	case expr.ResultCount:
		b.add("$count", "count")
		return nil

	case expr.ResultAny:
		// Recorded design decision: a predicate-less pipeline-level Any()
		// lowers to {$limit: 1} and the driver reads whether a document
		// came back, rather than a $size/$gt aggregation over the whole
		// input. See DESIGN.md's "Open question decisions" for the
		// rationale.
		b.add("$limit", int64(1))
		return nil

	case expr.ResultAnyPredicate:
		cond, err := compileMatchBody(r.Predicate)
		if err != nil {
			return withStage(err, "Any")
		}
		b.add("$match", cond)
		b.add("$limit", int64(1))
		return nil

	case expr.ResultAll:
		cond, err := translateValue(r.Predicate)
		if err != nil {
			return withStage(err, "All")
		}
		// A matching document here is a counterexample: the caller
		// treats an empty result as "All" having held.
		b.add("$match", bson.D{{Key: "$expr", Value: bson.D{{Key: "$not", Value: bson.A{cond}}}}})
		b.add("$limit", int64(1))
		return nil

	case expr.ResultContains:
		cond, err := compileMatchBody(r.Value)
		if err != nil {
			return withStage(err, "Contains")
		}
		b.add("$match", cond)
		b.add("$limit", int64(1))
		return nil

	case expr.ResultFirst:
		b.add("$limit", int64(1))
		return nil

	case expr.ResultSingle:
		// Limit to one past "exactly one" so the caller can distinguish
		// a unique result from an over-matched one without a second
		// round trip.
		b.add("$limit", int64(2))
		return nil

	default:
		return internalInvariant("unhandled result operator kind %d", r.Kind)
	}
}

// withStage attaches a containing-stage name to an *UnsupportedExpressionError
// that doesn't already carry one, so the error reports where in the
// pipeline translation went wrong even though translateValue itself has
// no notion of pipeline stages.
func withStage(err error, stage string) error {
	if ue, ok := err.(*UnsupportedExpressionError); ok && ue.Stage == "" {
		return &UnsupportedExpressionError{Subtree: ue.Subtree, Stage: stage}
	}
	return err
}
