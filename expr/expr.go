// Package expr defines the typed expression tree a LINQ-style query
// front-end builds and a pipeline translator consumes.
//
// Every node kind in this package is a distinct Go type implementing the
// Expression interface with an unexported marker method, so the set of
// node kinds is closed: only this package can add one. Go does not check
// a type switch for exhaustiveness, so a switch over Expression that omits
// a kind falls through to its default case. Nodes are
// immutable once constructed and safe to share across trees.
package expr

// Expression is implemented by every node kind a translator recognizes.
// The marker method is unexported so the set of implementations is closed
// to this package.
type Expression interface {
	isExpression()
}

// BinaryOp enumerates the binary operators a Binary node may carry.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	Coalesce
)

// Binary is a two-operand expression. Typ records the static type of the
// expression's result, needed to distinguish Add on strings (-> $concat)
// from Add on numbers (-> $add).
type Binary struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
	Typ   Type
}

func (Binary) isExpression() {}

// NewBinary constructs a Binary node.
func NewBinary(op BinaryOp, left, right Expression, typ Type) Binary {
	return Binary{Op: op, Left: left, Right: right, Typ: typ}
}

// UnaryOp enumerates the unary operators a Unary node may carry.
type UnaryOp int

const (
	Not UnaryOp = iota
	Convert
	ArrayLength
	Negate
)

// Unary is a single-operand expression.
type Unary struct {
	Op      UnaryOp
	Operand Expression
}

func (Unary) isExpression() {}

// NewUnary constructs a Unary node.
func NewUnary(op UnaryOp, operand Expression) Unary {
	return Unary{Op: op, Operand: operand}
}

// Conditional is a ternary if/then/else expression.
type Conditional struct {
	Test    Expression
	IfTrue  Expression
	IfFalse Expression
}

func (Conditional) isExpression() {}

// NewConditional constructs a Conditional node.
func NewConditional(test, ifTrue, ifFalse Expression) Conditional {
	return Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Type is a lightweight static-type tag, just rich enough for the
// dispatch decisions translate.go needs to make (string-vs-numeric Add,
// DateTime member access, collection Count).
type Type int

const (
	TypeUnknown Type = iota
	TypeString
	TypeNumber
	TypeBool
	TypeDateTime
	TypeCollection
	TypeArray
	TypeObject
)

// Constant is a literal value plus its source type.
type Constant struct {
	Value any
	Typ   Type
}

func (Constant) isExpression() {}

// NewConstant constructs a Constant node.
func NewConstant(value any, typ Type) Constant {
	return Constant{Value: value, Typ: typ}
}

// MemberAccess reads a named member off a target expression (e.g. a
// DateTime property, or Collection.Count).
type MemberAccess struct {
	Target        Expression
	MemberName    string
	DeclaringType Type
}

func (MemberAccess) isExpression() {}

// NewMemberAccess constructs a MemberAccess node.
func NewMemberAccess(target Expression, memberName string, declaringType Type) MemberAccess {
	return MemberAccess{Target: target, MemberName: memberName, DeclaringType: declaringType}
}

// Method identifies a callable by name, declaring type, and arity —
// enough to pick the right row of the dispatch table in translate_string.go
// without needing full method-resolution machinery.
type Method struct {
	Name          string
	DeclaringType Type
	Arity         int
}

// MethodCall is a call to a recognized method, with an optional receiver
// (nil for a static call) and its arguments in source order.
type MethodCall struct {
	Receiver Expression // nil for a static call
	Method   Method
	Args     []Expression
}

func (MethodCall) isExpression() {}

// NewMethodCall constructs a MethodCall node.
func NewMethodCall(receiver Expression, method Method, args ...Expression) MethodCall {
	return MethodCall{Receiver: receiver, Method: method, Args: args}
}

// Member binds one named member of a New/MemberInit expression to a
// subexpression. Order in MemberInit.Members is the source's declaration
// order and is preserved into the emitted document.
type Member struct {
	Name  string
	Value Expression
}

// MemberInit constructs (or initializes) an object by binding named
// members to subexpressions — the shape a projection's result selector or
// a group-by key usually takes.
type MemberInit struct {
	Members []Member
}

func (MemberInit) isExpression() {}

// NewMemberInit constructs a MemberInit node. At most one member's Value
// may be a GroupingKey; the projection mapper promotes that member to
// _id.
func NewMemberInit(members ...Member) MemberInit {
	return MemberInit{Members: members}
}

// Field is a field path already resolved by the query front-end, in
// dotted form (e.g. "address.city"). The translator treats the path as
// opaque and emits it as "$" + Path, rewritten relative to Scope when the
// field sits inside a Select/Where selector or predicate.
//
// Scope names the bound variable this path was resolved against: "" for
// the pipeline's root document, or the Var of the Select/Where whose
// source this field is a member of. A field resolved against an
// enclosing (non-innermost) scope is a free outer-field reference — this
// is what lets the field-path rewriter in fieldpath.go tell "$$v.path"
// apart from "$$outer.path" apart from a bare root "$path" without
// re-deriving scope ownership by tree position.
type Field struct {
	Path  string
	Scope string
}

func (Field) isExpression() {}

// NewField constructs a root-scoped Field node.
func NewField(path string) Field {
	return Field{Path: path}
}

// NewScopedField constructs a Field node resolved against the named
// bound variable.
func NewScopedField(path, scope string) Field {
	return Field{Path: path, Scope: scope}
}

// FieldAsDocument forces Inner to be emitted wrapped as {Name: Inner}
// rather than inlined.
type FieldAsDocument struct {
	Name  string
	Inner Expression
}

func (FieldAsDocument) isExpression() {}

// NewFieldAsDocument constructs a FieldAsDocument node.
func NewFieldAsDocument(name string, inner Expression) FieldAsDocument {
	return FieldAsDocument{Name: name, Inner: inner}
}

// Select is a scope-introducing projection: for each element of Source,
// bind Var and evaluate Selector. At the array level it lowers to $map
// (or field-path fusion); at the pipeline level it lowers to $project.
type Select struct {
	Source   Expression
	Var      string
	Selector Expression
}

func (Select) isExpression() {}

// NewSelect constructs a Select node. var_ must be unique within its
// lexical scope — the front-end guarantees this.
func NewSelect(source Expression, var_ string, selector Expression) Select {
	return Select{Source: source, Var: var_, Selector: selector}
}

// Where is a scope-introducing filter: for each element of Source, bind
// Var and evaluate Predicate. At the array level it lowers to $filter; at
// the pipeline level it lowers to $match.
type Where struct {
	Source    Expression
	Var       string
	Predicate Expression
}

func (Where) isExpression() {}

// NewWhere constructs a Where node.
func NewWhere(source Expression, var_ string, predicate Expression) Where {
	return Where{Source: source, Var: var_, Predicate: predicate}
}

// AccumulatorKind enumerates the group/window accumulator kinds.
type AccumulatorKind int

const (
	AccSum AccumulatorKind = iota
	AccAvg
	AccMin
	AccMax
	AccFirst
	AccLast
	AccPush
	AccAddToSet
)

// Accumulator wraps an argument expression with an accumulator kind, for
// use inside a GroupBy's result selector.
type Accumulator struct {
	Kind AccumulatorKind
	Arg  Expression
}

func (Accumulator) isExpression() {}

// NewAccumulator constructs an Accumulator node.
func NewAccumulator(kind AccumulatorKind, arg Expression) Accumulator {
	return Accumulator{Kind: kind, Arg: arg}
}

// GroupingKey wraps the key expression of a group stage. It may appear at
// most once per MemberInit/New; when present, that member becomes _id.
type GroupingKey struct {
	Key Expression
}

func (GroupingKey) isExpression() {}

// NewGroupingKey constructs a GroupingKey node.
func NewGroupingKey(key Expression) GroupingKey {
	return GroupingKey{Key: key}
}

// SetOp enumerates the three set-combination node kinds.
type SetOp int

const (
	SetUnion SetOp = iota
	SetIntersect
	SetExcept
)

// SetCombination is a binary set operation (Union/Intersect/Except) over
// two array-valued expressions.
type SetCombination struct {
	Op     SetOp
	Source Expression
	Other  Expression
}

func (SetCombination) isExpression() {}

// NewSetCombination constructs a SetCombination node.
func NewSetCombination(op SetOp, source, other Expression) SetCombination {
	return SetCombination{Op: op, Source: source, Other: other}
}

// StageKind enumerates the pipeline-level stage shapes a Pipeline may
// carry. Which of a Stage's fields are read depends on Kind, as the
// comments on Stage's fields say.
type StageKind int

const (
	StageWhere StageKind = iota
	StageSelect
	StageGroupBy
	StageOrderBy
	StageThenBy
	StageSkip
	StageTake
	StageOfType
	StageSelectMany
	StageDistinct
)

// Stage is one element of a Pipeline's Stages list.
type Stage struct {
	Kind StageKind

	// Where / Select / SelectMany / GroupBy share these.
	Source Expression // nil if implicitly the prior stage's output
	Var    string
	Body   Expression // predicate, selector, or grouping key expression

	// GroupBy's optional result selector (New/MemberInit over the group).
	ResultSelector Expression

	// OrderBy/ThenBy.
	SortKey        Expression
	SortKeyName    string // resolved field name, for ambiguity detection
	Ascending      bool

	// Skip/Take.
	Count int64

	// OfType.
	Discriminator string
	TypeName      string

	// SelectMany's inner path (already resolved by the front end).
	InnerPath string
}

// ResultOperatorKind enumerates the terminal operators a Pipeline may end
// with.
type ResultOperatorKind int

const (
	ResultAny ResultOperatorKind = iota
	ResultAnyPredicate
	ResultAll
	ResultCount
	ResultContains
	ResultFirst
	ResultSingle
)

// ResultOperator is the terminal element of a Pipeline, if any.
type ResultOperator struct {
	Kind      ResultOperatorKind
	Predicate Expression // for AnyPredicate/All
	Value     Expression // for Contains
}

// Pipeline is an ordered list of stages plus an optional terminal result
// operator. Stages is never empty; the first stage's input is the source
// collection.
type Pipeline struct {
	Stages   []Stage
	Result   *ResultOperator
}

func (Pipeline) isExpression() {}

// NewPipeline constructs a Pipeline node from an ordered stage list.
func NewPipeline(stages ...Stage) Pipeline {
	return Pipeline{Stages: stages}
}

// WithResult returns a copy of p with its terminal result operator set.
func (p Pipeline) WithResult(r ResultOperator) Pipeline {
	p.Result = &r
	return p
}
