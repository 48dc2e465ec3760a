package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nilay/reportgen/internal/model"
)

type RuleService struct {
	db DB
}

func NewRuleService(db DB) *RuleService {
	return &RuleService{db: db}
}

// RulesForFields resolves the transformation rules for the requested output
// fields, preserving the requested order. A field without a rule is simply
// absent from the result; the report writer leaves that column empty.
func (s *RuleService) RulesForFields(ctx context.Context, fields []int) (map[int]model.TransformationRule, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, field, column_name, operation, expression, source_map
		 FROM transform_rules ORDER BY field`)
	if err != nil {
		return nil, fmt.Errorf("load transform rules: %w", err)
	}
	defer rows.Close()

	all := make(map[int]model.TransformationRule)
	for rows.Next() {
		var (
			r         model.TransformationRule
			sourceMap []byte
		)
		if err := rows.Scan(&r.ID, &r.Field, &r.ColumnName, &r.Operation, &r.Expression, &sourceMap); err != nil {
			return nil, fmt.Errorf("scan transform rule: %w", err)
		}
		if err := json.Unmarshal(sourceMap, &r.SourceMap); err != nil {
			return nil, fmt.Errorf("decode source map for field %d: %w", r.Field, err)
		}
		all[r.Field] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transform rules: %w", err)
	}

	rules := make(map[int]model.TransformationRule, len(fields))
	for _, f := range fields {
		if r, ok := all[f]; ok {
			rules[f] = r
		}
	}
	return rules, nil
}
