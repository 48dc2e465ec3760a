package model

// OperationType is the closed set of transformations a rule can apply.
type OperationType string

const (
	OpDefault         OperationType = "DEFAULT"
	OpConcatWithSpace OperationType = "CONCAT_WITH_SPACE"
	OpConcatWithComma OperationType = "CONCAT_WITH_COMMA"
	OpMathExpression  OperationType = "MATH_EXPRESSION"
)

// SourceRole selects which of the three joined rows a placeholder reads from.
type SourceRole string

const (
	RoleMain SourceRole = "MAIN"
	RoleRef1 SourceRole = "REF1"
	RoleRef2 SourceRole = "REF2"
)

// SourceRef binds one placeholder index to a column of one source row.
type SourceRef struct {
	Role   SourceRole `json:"role"`
	Column int        `json:"col"`
}

// TransformationRule describes how one output column is derived. The source
// map is ordered by placeholder index: SourceMap[i] resolves placeholder i in
// the expression. Rules are seeded by migration and read-only afterwards.
type TransformationRule struct {
	ID         int64         `json:"id"`
	Field      int           `json:"field"`
	ColumnName string        `json:"column_name"`
	Operation  OperationType `json:"operation"`
	Expression string        `json:"expression"`
	SourceMap  []SourceRef   `json:"source_map"`
}
