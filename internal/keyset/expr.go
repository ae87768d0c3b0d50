// Package keyset implements keyset pagination: successive batches are
// selected with "ordering key strictly greater than the last one seen",
// which stays correct under concurrent inserts where numeric offsets do not.
package keyset

import (
	"strings"
)

// Expr is a boolean SQL expression tree.
type Expr interface {
	// SQL renders the expression, appending positional arguments.
	SQL(quote func(string) string, args []any) (string, []any)
}

// Cmp compares a column with a bound value.
type Cmp struct {
	Column string
	Op     string
	Value  any
}

// SQL implements Expr.
func (c Cmp) SQL(quote func(string) string, args []any) (string, []any) {
	return quote(c.Column) + " " + c.Op + " ?", append(args, c.Value)
}

// And is the conjunction of its terms.
type And []Expr

// SQL implements Expr.
func (a And) SQL(quote func(string) string, args []any) (string, []any) {
	return join(a, " AND ", quote, args)
}

// Or is the disjunction of its terms.
type Or []Expr

// SQL implements Expr.
func (o Or) SQL(quote func(string) string, args []any) (string, []any) {
	return join(o, " OR ", quote, args)
}

func join(terms []Expr, sep string, quote func(string) string, args []any) (string, []any) {
	parts := make([]string, len(terms))
	for i, t := range terms {
		var s string
		s, args = t.SQL(quote, args)
		if _, leaf := t.(Cmp); !leaf {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), args
}

// After builds the strictly-greater condition over an ordered key:
//
//	k1 > v1 OR (k1 = v1 AND (k2 > v2 OR (k2 = v2 AND ...)))
//
// It folds from the last key column towards the first, so the tree is
// built without recursion. columns and values must have equal length.
func After(columns []string, values []any) Expr {
	n := len(columns)
	if n == 0 {
		return nil
	}
	var expr Expr = Cmp{Column: columns[n-1], Op: ">", Value: values[n-1]}
	for i := n - 2; i >= 0; i-- {
		expr = Or{
			Cmp{Column: columns[i], Op: ">", Value: values[i]},
			And{Cmp{Column: columns[i], Op: "=", Value: values[i]}, expr},
		}
	}
	return expr
}

// QuoteIdent quotes an SQL identifier with double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
