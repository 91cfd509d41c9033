package store

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/winery-catalog/internal/model"
)

// dialect captures the SQL differences between the SQLite and Postgres
// backends that wine filtering depends on.
type dialect struct {
	placeholder func(n int) string
	// priceCmp renders "price <op> <placeholder>" with numeric comparison.
	priceCmp func(op, ph string) string
	priceArg func(d decimal.Decimal) any
	// noLimit is the LIMIT clause used when only an offset is set.
	noLimit string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	priceCmp: func(op, ph string) string {
		return fmt.Sprintf("CAST(price AS REAL) %s %s", op, ph)
	},
	priceArg: func(d decimal.Decimal) any { return d.InexactFloat64() },
	noLimit:  "LIMIT -1",
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	priceCmp: func(op, ph string) string {
		return fmt.Sprintf("price %s %s::text::numeric", op, ph)
	},
	priceArg: func(d decimal.Decimal) any { return d.String() },
	noLimit:  "LIMIT ALL",
}

// whereClause accumulates filter conditions and their arguments.
type whereClause struct {
	d     dialect
	conds []string
	args  []any
}

func (w *whereClause) next() string {
	return w.d.placeholder(len(w.args) + 1)
}

func (w *whereClause) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, w.d.placeholder(len(w.args))))
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// wineWhere builds the WHERE clause for f.
func wineWhere(d dialect, f model.WineFilter) *whereClause {
	w := &whereClause{d: d}
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}
	if f.AvailableOnly {
		w.add("is_available = %s", true)
	}
	if f.WineryID > 0 {
		w.add("winery_id = %s", f.WineryID)
	}
	if v := strings.TrimSpace(f.Variety); v != "" {
		w.add("LOWER(variety) LIKE %s ESCAPE '\\'", containsPattern(v))
	}
	if v := strings.TrimSpace(f.Vintage); v != "" {
		w.add("vintage = %s", v)
	}
	if v := strings.TrimSpace(f.Search); v != "" {
		w.add("LOWER(name) LIKE %s ESCAPE '\\'", containsPattern(v))
	}
	if f.MinPrice.Valid {
		ph := w.next()
		w.args = append(w.args, d.priceArg(f.MinPrice.Decimal))
		w.conds = append(w.conds, d.priceCmp(">=", ph))
	}
	if f.MaxPrice.Valid {
		ph := w.next()
		w.args = append(w.args, d.priceArg(f.MaxPrice.Decimal))
		w.conds = append(w.conds, d.priceCmp("<=", ph))
	}
	return w
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern is a case-folded LIKE pattern matching s literally
// anywhere in a value.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// winePage renders ORDER BY, LIMIT and OFFSET for f, appending to args.
func winePage(d dialect, f model.WineFilter, args []any) (string, []any) {
	var b strings.Builder
	if f.NewestFirst {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY name ASC, id ASC")
	}
	switch {
	case f.Limit > 0:
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT %s", d.placeholder(len(args)))
	case f.Offset > 0:
		b.WriteString(" " + d.noLimit)
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET %s", d.placeholder(len(args)))
	}
	return b.String(), args
}

// priceValue converts a nullable price into a driver argument.
func priceValue(p decimal.NullDecimal) any {
	if !p.Valid {
		return nil
	}
	return p.Decimal.String()
}

// parsePrice converts a stored price string back into a decimal.
func parsePrice(s *string) decimal.NullDecimal {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
