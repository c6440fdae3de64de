// internal/pipeline/compiler/compiler.go
package compiler

import (
	"fmt"
	"strings"

	stderrors "nycdb-insight/internal/common/errors"
	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
	"nycdb-insight/pkg/registry"
)

// Predicate is one rendered WHERE clause fragment with its bound values.
// Identifiers are validated before the fragment is built; values only ever
// travel through Params as $n placeholders.
type Predicate struct {
	Table    string
	Column   string
	Operator models.Operator
	Expr     string
	Values   []interface{}
}

// CompiledQuery is a fully-bound SQL statement ready for execution.
type CompiledQuery struct {
	Intent     models.Intent
	Shape      queryShape
	Predicates []Predicate
	Params     []interface{}
	Limit      int
}

// Compiler turns a StructuredQuery into parameterized SQL. Every table and
// column name is checked against the dataset registry; there is no path from
// user-supplied text into the statement except through bind parameters.
type Compiler struct {
	registry *registry.DatasetRegistry
	logger   logger.Logger
}

func New(reg *registry.DatasetRegistry, log logger.Logger) *Compiler {
	return &Compiler{
		registry: reg,
		logger:   log.WithFields(map[string]interface{}{"stage": "compiler"}),
	}
}

// Compile builds the statement for a query. It never fails on a
// recognized-but-empty query; it fails only when an explicit filter names an
// identifier the registry does not allow.
func (c *Compiler) Compile(q models.StructuredQuery) (*CompiledQuery, error) {
	shape := shapeFor(q.Intent, q)

	cq := &CompiledQuery{
		Intent: q.Intent,
		Shape:  shape,
		Limit:  q.Limit,
	}
	if cq.Limit <= 0 {
		cq.Limit = models.DefaultQueryLimit
	}

	if err := c.addEntityPredicates(cq, q); err != nil {
		return nil, err
	}
	if err := c.addFilterPredicates(cq, q.Filters); err != nil {
		return nil, err
	}

	c.logger.Debug("query compiled", map[string]interface{}{
		"intent":     string(cq.Intent),
		"table":      shape.BaseTable,
		"predicates": len(cq.Predicates),
		"params":     len(cq.Params),
	})

	return cq, nil
}

// addEntityPredicates derives predicates from recognized entities. Entities
// tagged unrecognized are skipped rather than matched verbatim, so a typo in
// a borough name widens the result instead of silently emptying it.
func (c *Compiler) addEntityPredicates(cq *CompiledQuery, q models.StructuredQuery) error {
	shape := cq.Shape

	if loc, ok := q.Entities.First(models.EntityLocation); ok && loc.Recognized {
		if err := c.bind(cq, shape.FilterTable, "borough", models.OpEquals, loc.Normalized); err != nil {
			return err
		}
	}

	if bt, ok := q.Entities.First(models.EntityBuildingType); ok && bt.Recognized {
		prefix, ok := buildingClassCodes[bt.Normalized]
		if !ok {
			prefix = bt.Normalized
		}
		if err := c.bind(cq, shape.FilterTable, "building_class", models.OpLike, prefix+"%"); err != nil {
			return err
		}
	}

	if tp, ok := q.Entities.First(models.EntityTimePeriod); ok && tp.Recognized && tp.TimeRange != nil {
		if shape.DateTable != "" {
			ds, err := c.registry.Dataset(shape.DateTable)
			if err == nil && ds.DateColumn != "" {
				if err := c.bind(cq, shape.DateTable, ds.DateColumn, models.OpBetween,
					tp.TimeRange.Start, tp.TimeRange.End); err != nil {
					return err
				}
			}
		}
	}

	if vt, ok := q.Entities.First(models.EntityViolationType); ok && vt.Recognized {
		if c.registry.AllowsColumn(shape.BaseTable, "violation_type") {
			if err := c.bind(cq, shape.BaseTable, "violation_type", models.OpLike,
				"%"+vt.Normalized+"%"); err != nil {
				return err
			}
		}
	}

	return nil
}

// addFilterPredicates binds explicit filters in order. Every filter in the
// query produces exactly one predicate, so nothing the interpreter extracted
// is silently dropped.
func (c *Compiler) addFilterPredicates(cq *CompiledQuery, filters []models.Filter) error {
	for _, f := range filters {
		table := f.Table
		if table == "" {
			table = cq.Shape.FilterTable
		}
		switch f.Operator {
		case models.OpBetween:
			if len(f.Values) != 2 {
				return stderrors.NewValidationError("filters",
					fmt.Sprintf("BETWEEN on %s.%s needs exactly 2 values, got %d", table, f.Column, len(f.Values)))
			}
			if err := c.bind(cq, table, f.Column, f.Operator, f.Values...); err != nil {
				return err
			}
		case models.OpEquals, models.OpLike:
			if len(f.Values) != 1 {
				return stderrors.NewValidationError("filters",
					fmt.Sprintf("%s on %s.%s needs exactly 1 value, got %d", f.Operator, table, f.Column, len(f.Values)))
			}
			if err := c.bind(cq, table, f.Column, f.Operator, f.Values...); err != nil {
				return err
			}
		default:
			return stderrors.NewValidationError("filters",
				fmt.Sprintf("unsupported operator %q", f.Operator))
		}
	}
	return nil
}

// bind validates identifiers, assigns placeholder numbers, and appends the
// predicate and its values.
func (c *Compiler) bind(cq *CompiledQuery, table, column string, op models.Operator, values ...interface{}) error {
	if !c.registry.AllowsTable(table) {
		return stderrors.NewIdentifierNotAllowedError(table)
	}
	if !c.registry.AllowsColumn(table, column) {
		return stderrors.NewIdentifierNotAllowedError(table + "." + column)
	}

	base := len(cq.Params)
	var expr string
	switch op {
	case models.OpBetween:
		expr = fmt.Sprintf("%s.%s BETWEEN $%d AND $%d", table, column, base+1, base+2)
	case models.OpLike:
		expr = fmt.Sprintf("%s.%s ILIKE $%d", table, column, base+1)
	default:
		expr = fmt.Sprintf("%s.%s = $%d", table, column, base+1)
	}

	cq.Predicates = append(cq.Predicates, Predicate{
		Table:    table,
		Column:   column,
		Operator: op,
		Expr:     expr,
		Values:   values,
	})
	cq.Params = append(cq.Params, values...)
	return nil
}

// SQL renders the statement. The WHERE clause always has at least one term so
// appended predicates compose without special cases.
func (cq *CompiledQuery) SQL() string {
	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cq.Shape.Select, ", "))
	b.WriteString(" FROM ")
	b.WriteString(cq.Shape.BaseTable)

	for _, j := range cq.Shape.Joins {
		fmt.Fprintf(&b, " LEFT JOIN %s ON %s.%s = %s.%s",
			j.RightTable, j.LeftTable, j.Column, j.RightTable, j.Column)
	}

	b.WriteString(" WHERE ")
	if len(cq.Predicates) == 0 {
		b.WriteString("1=1")
	} else {
		exprs := make([]string, len(cq.Predicates))
		for i, p := range cq.Predicates {
			exprs[i] = p.Expr
		}
		b.WriteString(strings.Join(exprs, " AND "))
	}

	if len(cq.Shape.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(cq.Shape.GroupBy, ", "))
	}
	if cq.Shape.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(cq.Shape.OrderBy)
	}
	fmt.Fprintf(&b, " LIMIT %d", cq.Limit)

	return b.String()
}
