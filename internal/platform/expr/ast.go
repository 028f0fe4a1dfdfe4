// Package expr implements the small typed expression language used by
// template calculated fields and validation rules. An expression is parsed
// once at template load into an AST of literals, field references, builtin
// calls, comparisons, arithmetic, and boolean combinators, then evaluated
// against a field lookup. Unknown operators and unknown builtins are parse
// errors, not evaluation errors.
package expr

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the runtime type of a Value.
type ValueKind int

const (
	// KindNumber is a float64 value.
	KindNumber ValueKind = iota
	// KindString is a string value.
	KindString
	// KindBool is a boolean value.
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

// Value is a typed field value. Exactly one of Num, Str, Bool is
// meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
	Bool bool
}

// Num returns a number Value.
func Num(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Str returns a string Value.
func Str(s string) Value { return Value{Kind: KindString, Str: s} }

// BoolVal returns a boolean Value.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// AsNumber returns the numeric value or an error for non-numbers.
func (v Value) AsNumber() (float64, error) {
	if v.Kind != KindNumber {
		return 0, fmt.Errorf("expected number, got %s", v.Kind)
	}
	return v.Num, nil
}

// AsBool returns the boolean value or an error for non-booleans.
func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, fmt.Errorf("expected bool, got %s", v.Kind)
	}
	return v.Bool, nil
}

// Equal reports whether two values are equal. Values of different kinds
// are never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	}
	return false
}

// String renders the value for messages and narrative interpolation.
// Integral numbers render without a decimal point.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// Env supplies field values and patient facts during evaluation.
type Env interface {
	// Field returns the resolved value of a field path, if present.
	Field(path string) (Value, bool)
	// HasCondition reports whether the patient has the named condition.
	HasCondition(name string) bool
	// HasMedication reports whether the patient takes the named medication.
	HasMedication(name string) bool
}

// Op is an operator in a unary or binary expression.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpNot
)

var opNames = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpNeg: "-",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "and", OpOr: "or", OpNot: "not",
}

func (o Op) String() string { return opNames[o] }

// Expr is a parsed expression node. The concrete types form a closed set:
// Literal, FieldRef, Call, Unary, Binary.
type Expr interface {
	Eval(env Env) (Value, error)
	exprNode()
}

// Literal is a constant number, string, or boolean.
type Literal struct {
	Val Value
}

// FieldRef references a resolved document or profile field by path.
type FieldRef struct {
	Path string
}

// Call invokes a builtin predicate such as has_condition('diabetes').
type Call struct {
	Fn   string
	Args []Expr
}

// Unary applies a prefix operator (negation, not).
type Unary struct {
	Op Op
	X  Expr
}

// Binary applies an infix operator.
type Binary struct {
	Op Op
	L  Expr
	R  Expr
}

func (*Literal) exprNode()  {}
func (*FieldRef) exprNode() {}
func (*Call) exprNode()     {}
func (*Unary) exprNode()    {}
func (*Binary) exprNode()   {}

// Eval returns the literal value.
func (e *Literal) Eval(Env) (Value, error) { return e.Val, nil }

// Eval looks the field up in the environment.
func (e *FieldRef) Eval(env Env) (Value, error) {
	v, ok := env.Field(e.Path)
	if !ok {
		return Value{}, fmt.Errorf("field %q not resolved", e.Path)
	}
	return v, nil
}

// Eval dispatches a builtin call. The parser only admits known builtins,
// so an unknown name here indicates a hand-built AST.
func (e *Call) Eval(env Env) (Value, error) {
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Eval(env)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}

	switch e.Fn {
	case "has_condition":
		if len(args) != 1 || args[0].Kind != KindString {
			return Value{}, fmt.Errorf("has_condition expects one string argument")
		}
		return BoolVal(env.HasCondition(args[0].Str)), nil
	case "has_medication":
		if len(args) != 1 || args[0].Kind != KindString {
			return Value{}, fmt.Errorf("has_medication expects one string argument")
		}
		return BoolVal(env.HasMedication(args[0].Str)), nil
	}
	return Value{}, fmt.Errorf("unknown builtin %q", e.Fn)
}

// Eval applies the unary operator.
func (e *Unary) Eval(env Env) (Value, error) {
	v, err := e.X.Eval(env)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case OpNeg:
		n, err := v.AsNumber()
		if err != nil {
			return Value{}, err
		}
		return Num(-n), nil
	case OpNot:
		b, err := v.AsBool()
		if err != nil {
			return Value{}, err
		}
		return BoolVal(!b), nil
	}
	return Value{}, fmt.Errorf("invalid unary operator %s", e.Op)
}

// Eval applies the binary operator. Arithmetic and ordering require
// numbers; equality works across any matching kinds; and/or require
// booleans and short-circuit.
func (e *Binary) Eval(env Env) (Value, error) {
	// Short-circuit boolean combinators before evaluating the right side.
	if e.Op == OpAnd || e.Op == OpOr {
		lv, err := e.L.Eval(env)
		if err != nil {
			return Value{}, err
		}
		lb, err := lv.AsBool()
		if err != nil {
			return Value{}, err
		}
		if e.Op == OpAnd && !lb {
			return BoolVal(false), nil
		}
		if e.Op == OpOr && lb {
			return BoolVal(true), nil
		}
		rv, err := e.R.Eval(env)
		if err != nil {
			return Value{}, err
		}
		rb, err := rv.AsBool()
		if err != nil {
			return Value{}, err
		}
		return BoolVal(rb), nil
	}

	lv, err := e.L.Eval(env)
	if err != nil {
		return Value{}, err
	}
	rv, err := e.R.Eval(env)
	if err != nil {
		return Value{}, err
	}

	switch e.Op {
	case OpEq:
		return BoolVal(lv.Equal(rv)), nil
	case OpNe:
		return BoolVal(!lv.Equal(rv)), nil
	}

	ln, err := lv.AsNumber()
	if err != nil {
		return Value{}, err
	}
	rn, err := rv.AsNumber()
	if err != nil {
		return Value{}, err
	}

	switch e.Op {
	case OpAdd:
		return Num(ln + rn), nil
	case OpSub:
		return Num(ln - rn), nil
	case OpMul:
		return Num(ln * rn), nil
	case OpDiv:
		if rn == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return Num(ln / rn), nil
	case OpLt:
		return BoolVal(ln < rn), nil
	case OpLe:
		return BoolVal(ln <= rn), nil
	case OpGt:
		return BoolVal(ln > rn), nil
	case OpGe:
		return BoolVal(ln >= rn), nil
	}
	return Value{}, fmt.Errorf("invalid binary operator %s", e.Op)
}

// CollectFields returns every field path referenced anywhere in the
// expression, in first-appearance order. Used for load-time reference and
// cycle checks.
func CollectFields(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(n Expr) {
		switch t := n.(type) {
		case *FieldRef:
			if !seen[t.Path] {
				seen[t.Path] = true
				out = append(out, t.Path)
			}
		case *Call:
			for _, a := range t.Args {
				walk(a)
			}
		case *Unary:
			walk(t.X)
		case *Binary:
			walk(t.L)
			walk(t.R)
		}
	}
	walk(e)
	return out
}
