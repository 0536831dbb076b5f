// Package query assembles the two statement shapes the delete engine needs:
// an id-collecting join select and a set delete filtered by ids or by a nested
// select. Statements are written with named parameters (":id") and rendered
// to PostgreSQL positional placeholders when executed.
package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Session executes rendered statements. *postgres.Session satisfies it for
// both *sql.DB and *sql.Tx.
type Session interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error)
}

type kind int

const (
	kindSelect kind = iota + 1
	kindDelete
)

type join struct {
	table string
	alias string
	on    string
}

// Builder accumulates one statement. The zero value is not usable; start
// with Select or Delete.
type Builder struct {
	kind    kind
	columns []string
	table   string
	alias   string
	joins   []join
	where   []string
	subs    []*Builder
	params  map[string]any
	err     error
}

func Select(columns ...string) *Builder {
	b := &Builder{kind: kindSelect, params: map[string]any{}}
	if len(columns) == 0 {
		b.fail(errors.New("select requires at least one column"))
	}
	b.columns = append(b.columns, columns...)
	return b
}

func Delete(table string) *Builder {
	b := &Builder{kind: kindDelete, params: map[string]any{}}
	if strings.TrimSpace(table) == "" {
		b.fail(errors.New("delete requires a table"))
	}
	b.table = strings.TrimSpace(table)
	return b
}

func (b *Builder) From(table, alias string) *Builder {
	if b.kind != kindSelect {
		return b.fail(errors.New("from is only valid on a select"))
	}
	if b.table != "" {
		return b.fail(fmt.Errorf("from already set to %s", b.table))
	}
	if strings.TrimSpace(table) == "" || strings.TrimSpace(alias) == "" {
		return b.fail(errors.New("from requires a table and an alias"))
	}
	b.table = strings.TrimSpace(table)
	b.alias = strings.TrimSpace(alias)
	return b
}

// Join adds an inner join. on is a boolean expression over already
// introduced aliases, for example "ROOT1.image_id = ROOT0.id".
func (b *Builder) Join(table, alias, on string) *Builder {
	if b.kind != kindSelect || b.table == "" {
		return b.fail(errors.New("join requires a select with a from clause"))
	}
	if strings.TrimSpace(table) == "" || strings.TrimSpace(alias) == "" || strings.TrimSpace(on) == "" {
		return b.fail(errors.New("join requires a table, an alias and a condition"))
	}
	b.joins = append(b.joins, join{table: strings.TrimSpace(table), alias: strings.TrimSpace(alias), on: strings.TrimSpace(on)})
	return b
}

// And appends a predicate to the where clause.
func (b *Builder) And(predicate string) *Builder {
	if strings.TrimSpace(predicate) == "" {
		return b.fail(errors.New("empty predicate"))
	}
	b.where = append(b.where, strings.TrimSpace(predicate))
	return b
}

// AndIn appends "column IN (<sub>)". The nested select shares this
// statement's parameter namespace.
func (b *Builder) AndIn(column string, sub *Builder) *Builder {
	if sub == nil || sub.kind != kindSelect {
		return b.fail(errors.New("subselect must be a select"))
	}
	if sub == b {
		return b.fail(errors.New("statement cannot nest itself"))
	}
	b.subs = append(b.subs, sub)
	b.where = append(b.where, fmt.Sprintf("%s IN (%s%d\x00)", strings.TrimSpace(column), subMarker, len(b.subs)-1))
	return b
}

// Param binds a named parameter. A slice of int64 binds as one array
// argument, so "id = ANY(:ids)" works with Param("ids", ids) regardless of
// the list length.
func (b *Builder) Param(name string, value any) *Builder {
	name = strings.TrimPrefix(strings.TrimSpace(name), ":")
	if !isIdent(name) {
		return b.fail(fmt.Errorf("invalid parameter name %q", name))
	}
	if ids, ok := value.([]int64); ok && len(ids) == 0 {
		return b.fail(fmt.Errorf("parameter %s: empty id list", name))
	}
	b.params[name] = value
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// SQL renders the statement and its ordered arguments.
func (b *Builder) SQL() (string, []any, error) {
	raw, err := b.raw()
	if err != nil {
		return "", nil, err
	}
	params := map[string]any{}
	if err := b.collect(params); err != nil {
		return "", nil, err
	}
	return bind(raw, params)
}

func (b *Builder) String() string {
	s, _, err := b.SQL()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return s
}

// Exec runs a delete and returns the affected row count.
func (b *Builder) Exec(ctx context.Context, s Session) (int64, error) {
	if b.kind != kindDelete {
		return 0, errors.New("exec requires a delete statement")
	}
	if s == nil {
		return 0, errors.New("session is required")
	}
	stmt, args, err := b.SQL()
	if err != nil {
		return 0, err
	}
	return s.Exec(ctx, stmt, args...)
}

// IDs runs a single-column select and returns the ids.
func (b *Builder) IDs(ctx context.Context, s Session) ([]int64, error) {
	if b.kind != kindSelect {
		return nil, errors.New("ids requires a select statement")
	}
	if len(b.columns) != 1 {
		return nil, fmt.Errorf("ids requires exactly one column, got %d", len(b.columns))
	}
	if s == nil {
		return nil, errors.New("session is required")
	}
	stmt, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	return s.QueryIDs(ctx, stmt, args...)
}

const subMarker = "\x00sub"

func (b *Builder) raw() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	var sb strings.Builder
	switch b.kind {
	case kindSelect:
		if b.table == "" {
			return "", errors.New("select requires a from clause")
		}
		sb.WriteString("SELECT ")
		sb.WriteString(strings.Join(b.columns, ", "))
		sb.WriteString(" FROM ")
		sb.WriteString(b.table)
		sb.WriteString(" AS ")
		sb.WriteString(b.alias)
		for _, j := range b.joins {
			sb.WriteString(" JOIN ")
			sb.WriteString(j.table)
			sb.WriteString(" AS ")
			sb.WriteString(j.alias)
			sb.WriteString(" ON ")
			sb.WriteString(j.on)
		}
	case kindDelete:
		if len(b.where) == 0 {
			return "", errors.New("refusing to render an unfiltered delete")
		}
		sb.WriteString("DELETE FROM ")
		sb.WriteString(b.table)
	default:
		return "", errors.New("statement kind not set")
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	out := sb.String()
	for i, sub := range b.subs {
		subRaw, err := sub.raw()
		if err != nil {
			return "", fmt.Errorf("subselect: %w", err)
		}
		out = strings.Replace(out, fmt.Sprintf("%s%d\x00", subMarker, i), subRaw, 1)
	}
	return out, nil
}

func (b *Builder) collect(into map[string]any) error {
	for name, value := range b.params {
		if prev, ok := into[name]; ok && !sameValue(prev, value) {
			return fmt.Errorf("parameter %s bound twice with different values", name)
		}
		into[name] = value
	}
	for _, sub := range b.subs {
		if err := sub.collect(into); err != nil {
			return err
		}
	}
	return nil
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// bind rewrites :name tokens into $n placeholders. A name used twice keeps
// the same placeholder. "::" casts are left alone.
func bind(raw string, params map[string]any) (string, []any, error) {
	var sb strings.Builder
	var args []any
	assigned := map[string]string{}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != ':' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(raw) && raw[i+1] == ':' {
			sb.WriteString("::")
			i++
			continue
		}
		j := i + 1
		for j < len(raw) && isIdentByte(raw[j], j == i+1) {
			j++
		}
		name := raw[i+1 : j]
		if name == "" {
			sb.WriteByte(c)
			continue
		}
		if ph, ok := assigned[name]; ok {
			sb.WriteString(ph)
			i = j - 1
			continue
		}
		value, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("missing parameter :%s", name)
		}
		args = append(args, value)
		ph := fmt.Sprintf("$%d", len(args))
		assigned[name] = ph
		sb.WriteString(ph)
		i = j - 1
	}
	return sb.String(), args, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
