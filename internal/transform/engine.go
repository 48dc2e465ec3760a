// Package transform evaluates transformation rules against joined CSV rows.
// The evaluator is stateless: every call receives the rule and the three
// source rows and returns the derived cell value.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nilay/reportgen/internal/model"
)

// Row is one parsed CSV record. A nil Row means the source file was absent
// or had no matching record for the join identifier.
type Row []string

var placeholderRe = regexp.MustCompile(`<>>>(\d+)<<<>`)

// Evaluate derives one output cell from the rule and the joined rows.
// The returned ok is false when the result is null (absent source, or a
// math expression referencing a null cell); the report writer renders null
// as an empty column. Errors indicate a malformed rule or an out-of-range
// column on a present row, and fail the whole job.
func Evaluate(rule model.TransformationRule, main, ref1, ref2 Row) (string, bool, error) {
	switch rule.Operation {
	case model.OpDefault:
		return evalDefault(rule, main, ref1, ref2)
	case model.OpConcatWithSpace:
		return evalConcat(rule, main, ref1, ref2, " ")
	case model.OpConcatWithComma:
		return evalConcat(rule, main, ref1, ref2, ", ")
	case model.OpMathExpression:
		return evalMath(rule, main, ref1, ref2)
	default:
		return "", false, fmt.Errorf("unknown operation %q for field %d", rule.Operation, rule.Field)
	}
}

// evalDefault copies one source cell verbatim. The expression names exactly
// one placeholder index, written either bare ("0") or in token form
// ("<>>>0<<<>").
func evalDefault(rule model.TransformationRule, main, ref1, ref2 Row) (string, bool, error) {
	idx, err := singlePlaceholder(rule.Expression)
	if err != nil {
		return "", false, fmt.Errorf("field %d: %w", rule.Field, err)
	}
	return resolve(rule, idx, main, ref1, ref2)
}

// evalConcat joins the resolved placeholder values with sep, dropping nulls
// entirely rather than rendering them as empty tokens.
func evalConcat(rule model.TransformationRule, main, ref1, ref2 Row, sep string) (string, bool, error) {
	var parts []string
	for _, tok := range strings.Split(rule.Expression, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return "", false, fmt.Errorf("field %d: bad placeholder %q: %w", rule.Field, tok, err)
		}
		val, ok, err := resolve(rule, idx, main, ref1, ref2)
		if err != nil {
			return "", false, err
		}
		if ok {
			parts = append(parts, val)
		}
	}
	return strings.Join(parts, sep), true, nil
}

// evalMath substitutes every <>>>N<<<> token with its resolved cell and
// evaluates the resulting arithmetic expression. If any referenced cell is
// null the field is null; no partial arithmetic is attempted.
func evalMath(rule model.TransformationRule, main, ref1, ref2 Row) (string, bool, error) {
	values := make(map[int]string)
	for _, m := range placeholderRe.FindAllStringSubmatch(rule.Expression, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false, fmt.Errorf("field %d: bad placeholder %q: %w", rule.Field, m[0], err)
		}
		if _, seen := values[idx]; seen {
			continue
		}
		val, ok, err := resolve(rule, idx, main, ref1, ref2)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, nil
		}
		values[idx] = val
	}

	// Single pass over the original string: each token is replaced from its
	// own match span, so differing value lengths cannot desynchronize later
	// matches.
	var substErr error
	substituted := placeholderRe.ReplaceAllStringFunc(rule.Expression, func(tok string) string {
		idx, _ := strconv.Atoi(placeholderRe.FindStringSubmatch(tok)[1])
		v, ok := values[idx]
		if !ok {
			substErr = fmt.Errorf("field %d: unresolved placeholder %s", rule.Field, tok)
		}
		return v
	})
	if substErr != nil {
		return "", false, substErr
	}

	result, err := EvalArithmetic(substituted)
	if err != nil {
		return "", false, fmt.Errorf("field %d: evaluate %q: %w", rule.Field, substituted, err)
	}
	return strconv.FormatFloat(result, 'f', -1, 64), true, nil
}

// resolve reads the cell a placeholder refers to. An absent source row is a
// null, not an error; a column past the end of a present row is an error.
func resolve(rule model.TransformationRule, idx int, main, ref1, ref2 Row) (string, bool, error) {
	if idx < 0 || idx >= len(rule.SourceMap) {
		return "", false, fmt.Errorf("field %d: placeholder %d not in source map", rule.Field, idx)
	}
	ref := rule.SourceMap[idx]

	var row Row
	switch ref.Role {
	case model.RoleMain:
		row = main
	case model.RoleRef1:
		row = ref1
	case model.RoleRef2:
		row = ref2
	default:
		return "", false, fmt.Errorf("field %d: unknown source role %q", rule.Field, ref.Role)
	}

	if row == nil {
		return "", false, nil
	}
	if ref.Column < 0 || ref.Column >= len(row) {
		return "", false, fmt.Errorf("field %d: column %d out of range for role %s", rule.Field, ref.Column, ref.Role)
	}
	return row[ref.Column], true, nil
}

func singlePlaceholder(expression string) (int, error) {
	if m := placeholderRe.FindStringSubmatch(expression); m != nil {
		return strconv.Atoi(m[1])
	}
	idx, err := strconv.Atoi(strings.TrimSpace(expression))
	if err != nil {
		return 0, fmt.Errorf("bad default expression %q: %w", expression, err)
	}
	return idx, nil
}
