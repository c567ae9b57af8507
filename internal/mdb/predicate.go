package mdb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// relPlaceholder stands in for the per-segment relation name in generated
// SQL; the materializer substitutes the real name before execution.
const relPlaceholder = "[!__relation__!]"

// CompareOp is a column comparison operator.
type CompareOp string

const (
	OpEq         CompareOp = "="
	OpNe         CompareOp = "!="
	OpLt         CompareOp = "<"
	OpLe         CompareOp = "<="
	OpGt         CompareOp = ">"
	OpGe         CompareOp = ">="
	OpBetween    CompareOp = "BETWEEN"
	OpNotBetween CompareOp = "NOT BETWEEN"
	OpIn         CompareOp = "IN"
	OpNotIn      CompareOp = "NOT IN"
)

// invert returns the negation of op. Negation is pushed to leaves, so every
// comparison operator must have an inverse here.
func (op CompareOp) invert() (CompareOp, error) {
	switch op {
	case OpEq:
		return OpNe, nil
	case OpNe:
		return OpEq, nil
	case OpLt:
		return OpGe, nil
	case OpGe:
		return OpLt, nil
	case OpGt:
		return OpLe, nil
	case OpLe:
		return OpGt, nil
	case OpBetween:
		return OpNotBetween, nil
	case OpNotBetween:
		return OpBetween, nil
	case OpIn:
		return OpNotIn, nil
	case OpNotIn:
		return OpIn, nil
	default:
		return "", fmt.Errorf("programming error: comparison op %q has no inverse", op)
	}
}

// BoolColumn is a row predicate: a tree of column comparisons combined with
// AND/OR. Predicates are built from Column handles and compose with And,
// Or, and Not. Each leaf remembers the version number of the table it was
// built from; applying a predicate to a different table version fails.
type BoolColumn interface {
	Not() BoolColumn
	And(other BoolColumn) BoolColumn
	Or(other BoolColumn) BoolColumn

	// whereSQL renders the predicate against the given table version,
	// with relPlaceholder standing in for the relation name.
	whereSQL(versionNumber int64) (string, error)
}

// Column is a handle on a single column of a table, used to build
// predicates: t.Col("price").Lt(100). A Column used directly as a predicate
// is coerced to column = 'TRUE'.
type Column struct {
	versionNumber int64
	name          string
}

// Name returns the column name.
func (c Column) Name() string { return c.name }

func (c Column) compare(op CompareOp, args ...any) BoolColumn {
	return &columnOp{versionNumber: c.versionNumber, column: c.name, op: op, args: args}
}

func (c Column) Eq(v any) BoolColumn  { return c.compare(OpEq, v) }
func (c Column) Ne(v any) BoolColumn  { return c.compare(OpNe, v) }
func (c Column) Lt(v any) BoolColumn  { return c.compare(OpLt, v) }
func (c Column) Le(v any) BoolColumn  { return c.compare(OpLe, v) }
func (c Column) Gt(v any) BoolColumn  { return c.compare(OpGt, v) }
func (c Column) Ge(v any) BoolColumn  { return c.compare(OpGe, v) }
func (c Column) Between(lo, hi any) BoolColumn {
	return c.compare(OpBetween, lo, hi)
}
func (c Column) In(values ...any) BoolColumn { return c.compare(OpIn, values...) }

// asBool coerces a bare column into a predicate.
func (c Column) asBool() BoolColumn { return c.Eq("TRUE") }

func (c Column) Not() BoolColumn                 { return c.asBool().Not() }
func (c Column) And(other BoolColumn) BoolColumn { return c.asBool().And(other) }
func (c Column) Or(other BoolColumn) BoolColumn  { return c.asBool().Or(other) }
func (c Column) whereSQL(versionNumber int64) (string, error) {
	return c.asBool().whereSQL(versionNumber)
}

// columnOp is a leaf predicate: column `op` literal(s).
type columnOp struct {
	versionNumber int64
	column        string
	op            CompareOp
	args          []any
}

func (p *columnOp) Not() BoolColumn {
	inv, err := p.op.invert()
	if err != nil {
		// invert covers every constructible op; reaching this is a bug.
		panic(err)
	}
	return &columnOp{versionNumber: p.versionNumber, column: p.column, op: inv, args: p.args}
}

func (p *columnOp) And(other BoolColumn) BoolColumn {
	return &binaryOp{left: p, right: other, op: "AND"}
}

func (p *columnOp) Or(other BoolColumn) BoolColumn {
	return &binaryOp{left: p, right: other, op: "OR"}
}

func (p *columnOp) whereSQL(versionNumber int64) (string, error) {
	if p.versionNumber != versionNumber {
		return "", fmt.Errorf(
			"predicate built from table version %d cannot filter table version %d: %w",
			p.versionNumber, versionNumber, ErrValidation)
	}

	col := fmt.Sprintf("%s.%q", relPlaceholder, p.column)
	switch p.op {
	case OpBetween, OpNotBetween:
		if len(p.args) != 2 {
			return "", fmt.Errorf("%s requires exactly two arguments, got %d: %w", p.op, len(p.args), ErrValidation)
		}
		lo, err := renderLiteral(p.args[0])
		if err != nil {
			return "", err
		}
		hi, err := renderLiteral(p.args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s AND %s)", col, p.op, lo, hi), nil
	case OpIn, OpNotIn:
		rendered := make([]string, len(p.args))
		for i, a := range p.args {
			s, err := renderLiteral(a)
			if err != nil {
				return "", err
			}
			rendered[i] = s
		}
		return fmt.Sprintf("(%s %s (%s))", col, p.op, strings.Join(rendered, ", ")), nil
	default:
		if len(p.args) != 1 {
			return "", fmt.Errorf("%s requires exactly one argument, got %d: %w", p.op, len(p.args), ErrValidation)
		}
		lit, err := renderLiteral(p.args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", col, p.op, lit), nil
	}
}

// binaryOp combines two predicates with AND or OR.
type binaryOp struct {
	left, right BoolColumn
	op          string // "AND" or "OR"
}

func (p *binaryOp) Not() BoolColumn {
	inv := "OR"
	if p.op == "OR" {
		inv = "AND"
	}
	return &binaryOp{left: p.left.Not(), right: p.right.Not(), op: inv}
}

func (p *binaryOp) And(other BoolColumn) BoolColumn {
	return &binaryOp{left: p, right: other, op: "AND"}
}

func (p *binaryOp) Or(other BoolColumn) BoolColumn {
	return &binaryOp{left: p, right: other, op: "OR"}
}

func (p *binaryOp) whereSQL(versionNumber int64) (string, error) {
	left, err := p.left.whereSQL(versionNumber)
	if err != nil {
		return "", err
	}
	right, err := p.right.whereSQL(versionNumber)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", left, p.op, right), nil
}

// renderLiteral renders a comparison literal: strings and timestamps are
// single-quoted, numerics are printed bare.
func renderLiteral(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case time.Time:
		return "'" + x.Format("2006-01-02 15:04:05") + "'", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("literal type %T is not supported in predicates: %w", v, ErrUnsupported)
	}
}
