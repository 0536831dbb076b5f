package query

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type recordingSession struct {
	stmts   []string
	args    [][]any
	count   int64
	ids     []int64
	execErr error
}

func (s *recordingSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.stmts = append(s.stmts, query)
	s.args = append(s.args, args)
	return s.count, s.execErr
}

func (s *recordingSession) QueryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	s.stmts = append(s.stmts, query)
	s.args = append(s.args, args)
	return s.ids, nil
}

func TestSelectJoinChain(t *testing.T) {
	q := Select("ROOT2.id").
		From("image", "ROOT0").
		Join("pixels", "ROOT1", "ROOT1.image_id = ROOT0.id").
		Join("channel", "ROOT2", "ROOT2.pixels_id = ROOT1.id").
		And("ROOT0.id = :id").
		Param("id", int64(42))

	stmt, args, err := q.SQL()
	if err != nil {
		t.Fatalf("SQL() err=%v", err)
	}
	want := "SELECT ROOT2.id FROM image AS ROOT0 JOIN pixels AS ROOT1 ON ROOT1.image_id = ROOT0.id JOIN channel AS ROOT2 ON ROOT2.pixels_id = ROOT1.id WHERE ROOT0.id = $1"
	if stmt != want {
		t.Fatalf("SQL()=%q\nwant %q", stmt, want)
	}
	if !reflect.DeepEqual(args, []any{int64(42)}) {
		t.Fatalf("args=%v, want [42]", args)
	}
}

func TestDeleteWithSubselectSharesParameters(t *testing.T) {
	sub := Select("ROOT1.id").
		From("image", "ROOT0").
		Join("pixels", "ROOT1", "ROOT1.image_id = ROOT0.id").
		And("ROOT0.id = :id")
	q := Delete("pixels").AndIn("id", sub).Param("id", int64(7))

	stmt, args, err := q.SQL()
	if err != nil {
		t.Fatalf("SQL() err=%v", err)
	}
	want := "DELETE FROM pixels WHERE id IN (SELECT ROOT1.id FROM image AS ROOT0 JOIN pixels AS ROOT1 ON ROOT1.image_id = ROOT0.id WHERE ROOT0.id = $1)"
	if stmt != want {
		t.Fatalf("SQL()=%q\nwant %q", stmt, want)
	}
	if len(args) != 1 || args[0] != int64(7) {
		t.Fatalf("args=%v, want [7]", args)
	}
}

func TestParamListBindsArray(t *testing.T) {
	q := Delete("annotation").And("id = ANY(:ids)").And("owner_id <> :owner").
		Param("ids", []int64{3, 5, 8}).Param("owner", int64(9))
	stmt, args, err := q.SQL()
	if err != nil {
		t.Fatalf("SQL() err=%v", err)
	}
	if stmt != "DELETE FROM annotation WHERE id = ANY($1) AND owner_id <> $2" {
		t.Fatalf("SQL()=%q", stmt)
	}
	if !reflect.DeepEqual(args, []any{[]int64{3, 5, 8}, int64(9)}) {
		t.Fatalf("args=%v", args)
	}
}

func TestRepeatedParameterReusesPlaceholder(t *testing.T) {
	q := Select("ROOT0.id").From("image", "ROOT0").
		And("ROOT0.id = :id").
		And("ROOT0.owner_id <> :id").
		And("ROOT0.name::text <> ''").
		Param("id", int64(1))
	stmt, args, err := q.SQL()
	if err != nil {
		t.Fatalf("SQL() err=%v", err)
	}
	if !strings.Contains(stmt, "ROOT0.id = $1 AND ROOT0.owner_id <> $1") {
		t.Fatalf("SQL()=%q, want $1 reused", stmt)
	}
	if !strings.Contains(stmt, "ROOT0.name::text") {
		t.Fatalf("SQL()=%q, want cast preserved", stmt)
	}
	if len(args) != 1 {
		t.Fatalf("args=%v, want one argument", args)
	}
}

func TestMissingParameter(t *testing.T) {
	_, _, err := Select("ROOT0.id").From("image", "ROOT0").And("ROOT0.id = :id").SQL()
	if err == nil || !strings.Contains(err.Error(), ":id") {
		t.Fatalf("SQL() err=%v, want missing parameter :id", err)
	}
}

func TestConflictingParameterValues(t *testing.T) {
	sub := Select("ROOT0.id").From("image", "ROOT0").And("ROOT0.id = :id").Param("id", int64(1))
	q := Delete("image").AndIn("id", sub).Param("id", int64(2))
	if _, _, err := q.SQL(); err == nil {
		t.Fatalf("SQL() expected conflicting parameter error")
	}
}

func TestUnfilteredDeleteRejected(t *testing.T) {
	if _, _, err := Delete("image").SQL(); err == nil {
		t.Fatalf("SQL() expected error for delete without where clause")
	}
}

func TestEmptyIDListRejected(t *testing.T) {
	if _, _, err := Delete("image").And("id = ANY(:ids)").Param("ids", []int64{}).SQL(); err == nil {
		t.Fatalf("SQL() expected error for empty id list")
	}
}

func TestExecAndIDs(t *testing.T) {
	sess := &recordingSession{count: 4, ids: []int64{10, 11}}
	n, err := Delete("pixels").And("id = ANY(:ids)").Param("ids", []int64{10, 11}).Exec(context.Background(), sess)
	if err != nil {
		t.Fatalf("Exec() err=%v", err)
	}
	if n != 4 {
		t.Fatalf("Exec()=%d, want 4", n)
	}
	ids, err := Select("ROOT0.id").From("pixels", "ROOT0").And("ROOT0.id > :min").Param("min", int64(0)).IDs(context.Background(), sess)
	if err != nil {
		t.Fatalf("IDs() err=%v", err)
	}
	if !reflect.DeepEqual(ids, []int64{10, 11}) {
		t.Fatalf("IDs()=%v", ids)
	}
	if len(sess.stmts) != 2 {
		t.Fatalf("statements=%d, want 2", len(sess.stmts))
	}
}

func TestExecPropagatesSessionError(t *testing.T) {
	boom := errors.New("boom")
	sess := &recordingSession{execErr: boom}
	_, err := Delete("pixels").And("id = :id").Param("id", int64(1)).Exec(context.Background(), sess)
	if !errors.Is(err, boom) {
		t.Fatalf("Exec() err=%v, want boom", err)
	}
}

func TestShapeMisuse(t *testing.T) {
	if _, err := Select("ROOT0.id").From("image", "ROOT0").Exec(context.Background(), &recordingSession{}); err == nil {
		t.Fatalf("Exec() on select expected error")
	}
	if _, err := Delete("image").And("id = 1").IDs(context.Background(), &recordingSession{}); err == nil {
		t.Fatalf("IDs() on delete expected error")
	}
	if _, _, err := Delete("image").From("image", "ROOT0").SQL(); err == nil {
		t.Fatalf("From() on delete expected error")
	}
}
