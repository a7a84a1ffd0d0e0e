package option

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption decorates a query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ        Operator = "="
	NEQ       Operator = "<>"
	GT        Operator = ">"
	GTE       Operator = ">="
	LT        Operator = "<"
	LTE       Operator = "<="
	IsNull    Operator = "IS NULL"
	IsNotNull Operator = "IS NOT NULL"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (c Condition) expr() clause.Expression {
	col := clause.Column{Name: c.Field}
	switch c.Operator {
	case IsNull, IsNotNull:
		return clause.Expr{SQL: "? " + string(c.Operator), Vars: []any{col}}
	default:
		return clause.Expr{SQL: "? " + string(c.Operator) + " ?", Vars: []any{col, c.Value}}
	}
}

// ApplyOperator ANDs every condition onto the query.
func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			db = db.Where(c.expr())
		}
		return db
	}
}

// WithFields matches every column in fields by equality. Unlike a model
// query, zero values are kept as conditions.
func WithFields(fields map[string]any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fields)
	}
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithSortBy orders by the given column. Columns outside Allow are ignored
// when an allow list is set.
func WithSortBy(sorts ...QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, s := range sorts {
			if s.SortBy == "" {
				continue
			}
			if len(s.Allow) > 0 && !s.Allow[s.SortBy] {
				continue
			}
			db = db.Order(clause.OrderByColumn{
				Column: clause.Column{Name: s.SortBy},
				Desc:   strings.EqualFold(s.OrderBy, "desc"),
			})
		}
		return db
	}
}

// WithOrderExpr orders by a raw expression, for orderings a column cannot express.
func WithOrderExpr(sql string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(sql)
	}
}

func ApplyPagination(offset, limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if offset > 0 {
			db = db.Offset(offset)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db
	}
}

// LockingUpdate is a scope taking row locks on every row the query reads.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

// WithSkipLocked locks the selected rows and skips rows other transactions
// already hold.
func WithSkipLocked() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{
			Strength: clause.LockingStrengthUpdate,
			Options:  clause.LockingOptionsSkipLocked,
		})
	}
}
