package event

import (
	"fmt"
	"strings"
	"time"

	"engage-ledger/pkg/errutil"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Condition is a WHERE fragment with `?` placeholders.
type Condition struct {
	Clause string
	Params []any
}

// columns maps filter identifiers to engage_event columns.
var columns = map[string]string{
	"project_id":     "project_id",
	"campaign_id":    "campaign_id",
	"chain_id":       "chain_id",
	"signer_address": "signer_address",
	"user_id":        "user_id",
	"created_at":     "created_at",
}

func declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("project_id", filtering.TypeString),
		filtering.DeclareIdent("campaign_id", filtering.TypeString),
		filtering.DeclareIdent("chain_id", filtering.TypeInt),
		filtering.DeclareIdent("signer_address", filtering.TypeString),
		filtering.DeclareIdent("user_id", filtering.TypeString),
		filtering.DeclareIdent("created_at", filtering.TypeTimestamp),
	)
}

// ParseFilter turns an AIP-160 expression such as
// `campaign_id = "..." AND created_at > timestamp("2026-01-01T00:00:00Z")`
// into a SQL condition. An empty filter yields an empty condition.
func ParseFilter(filter string) (Condition, error) {
	if strings.TrimSpace(filter) == "" {
		return Condition{}, nil
	}

	decls, err := declarations()
	if err != nil {
		return Condition{}, errutil.Internal("failed to declare filter fields", err)
	}

	parsed, err := filtering.ParseFilterString(filter, decls)
	if err != nil {
		return Condition{}, errutil.BadRequest("invalid filter", err,
			errutil.WithDetails(errutil.Detail{Field: "filter", Message: err.Error()}))
	}

	cond, err := translate(parsed.CheckedExpr.GetExpr())
	if err != nil {
		return Condition{}, errutil.BadRequest("invalid filter", err,
			errutil.WithDetails(errutil.Detail{Field: "filter", Message: err.Error()}))
	}
	return cond, nil
}

func translate(e *expr.Expr) (Condition, error) {
	if e == nil {
		return Condition{}, nil
	}

	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return Condition{}, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}

	switch call.CallExpr.Function {
	case filtering.FunctionAnd:
		return join(call.CallExpr.Args, "AND")
	case filtering.FunctionOr:
		return join(call.CallExpr.Args, "OR")
	case filtering.FunctionEquals:
		return compare(call.CallExpr.Args, "=")
	case filtering.FunctionNotEquals:
		return compare(call.CallExpr.Args, "!=")
	case filtering.FunctionLessThan:
		return compare(call.CallExpr.Args, "<")
	case filtering.FunctionLessEquals:
		return compare(call.CallExpr.Args, "<=")
	case filtering.FunctionGreaterThan:
		return compare(call.CallExpr.Args, ">")
	case filtering.FunctionGreaterEquals:
		return compare(call.CallExpr.Args, ">=")
	default:
		return Condition{}, fmt.Errorf("unsupported function: %s", call.CallExpr.Function)
	}
}

func join(args []*expr.Expr, op string) (Condition, error) {
	if len(args) < 2 {
		return Condition{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	clauses := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		c, err := translate(arg)
		if err != nil {
			return Condition{}, err
		}
		clauses = append(clauses, c.Clause)
		params = append(params, c.Params...)
	}

	return Condition{
		Clause: "(" + strings.Join(clauses, " "+op+" ") + ")",
		Params: params,
	}, nil
}

func compare(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	ident, ok := args[0].ExprKind.(*expr.Expr_IdentExpr)
	if !ok {
		return Condition{}, fmt.Errorf("expected identifier, got %T", args[0].ExprKind)
	}
	column, ok := columns[ident.IdentExpr.Name]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field: %s", ident.IdentExpr.Name)
	}

	value, err := literal(args[1])
	if err != nil {
		return Condition{}, err
	}

	return Condition{
		Clause: fmt.Sprintf("%s %s ?", column, op),
		Params: []any{value},
	}, nil
}

func literal(e *expr.Expr) (any, error) {
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		switch c := kind.ConstExpr.ConstantKind.(type) {
		case *expr.Constant_StringValue:
			return c.StringValue, nil
		case *expr.Constant_Int64Value:
			return c.Int64Value, nil
		case *expr.Constant_Uint64Value:
			return int64(c.Uint64Value), nil
		default:
			return nil, fmt.Errorf("unsupported constant type: %T", c)
		}
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function != filtering.FunctionTimestamp || len(kind.CallExpr.Args) != 1 {
			return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
		}
		arg, ok := kind.CallExpr.Args[0].ExprKind.(*expr.Expr_ConstExpr)
		if !ok {
			return nil, fmt.Errorf("timestamp argument must be a constant string")
		}
		t, err := time.Parse(time.RFC3339Nano, arg.ConstExpr.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", arg.ConstExpr.GetStringValue())
		}
		return t.UTC(), nil
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}
