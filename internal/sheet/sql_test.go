// internal/sheet/sql_test.go
//
// Unit-tests for the MySQL-backed sheet using sqlmock.
//
// Run: go test ./internal/sheet -v

package sheet

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQL(sqlx.NewDb(db, "mysql"), "qna"), mock
}

func TestSQL_ReadAll(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT pos, cells FROM sheet_row WHERE sheet = ? ORDER BY pos`)).
		WithArgs("qna").
		WillReturnRows(sqlmock.NewRows([]string{"pos", "cells"}).
			AddRow(1, `["sequence_number","question"]`).
			AddRow(2, `["1","Q1"]`).
			AddRow(4, `["3","Q3"]`))

	got, err := s.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := [][]string{{"sequence_number", "question"}, {"1", "Q1"}, nil, {"3", "Q3"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %#v, want %#v", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_AppendRow(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(pos), 0) FROM sheet_row WHERE sheet = ? FOR UPDATE`)).
		WithArgs("qna").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sheet_row (sheet, pos, cells) VALUES (?, ?, ?)`)).
		WithArgs("qna", 4, `["4","Q4"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.AppendRow(context.Background(), []string{"4", "Q4"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_UpdateCell(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cells FROM sheet_row WHERE sheet = ? AND pos = ? FOR UPDATE`)).
		WithArgs("qna", 2).
		WillReturnRows(sqlmock.NewRows([]string{"cells"}).AddRow(`["1","Q1","A1"]`))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sheet_row SET cells = ? WHERE sheet = ? AND pos = ?`)).
		WithArgs(`["1","Q1","A1-edited"]`, "qna", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpdateCell(context.Background(), 2, 3, "A1-edited"); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_UpdateCell_MissingRow(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cells FROM sheet_row`)).
		WithArgs("qna", 9).
		WillReturnRows(sqlmock.NewRows([]string{"cells"}))
	mock.ExpectRollback()

	err := s.UpdateCell(context.Background(), 9, 1, "x")
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_DeleteRow_ShiftsLaterRows(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sheet_row WHERE sheet = ? AND pos = ?`)).
		WithArgs("qna", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sheet_row SET pos = pos - 1 WHERE sheet = ? AND pos > ? ORDER BY pos`)).
		WithArgs("qna", 3).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := s.DeleteRow(context.Background(), 3); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_DeleteRow_Missing(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sheet_row`)).
		WithArgs("qna", 42).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.DeleteRow(context.Background(), 42); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSQL_FindCell(t *testing.T) {
	s, mock := newMockSQL(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT pos FROM sheet_row WHERE sheet = ? AND JSON_UNQUOTE(JSON_EXTRACT(cells, ?)) = ? ORDER BY pos`,
	)).
		WithArgs("qna", "$[0]", "7").
		WillReturnRows(sqlmock.NewRows([]string{"pos"}).AddRow(5).AddRow(8))

	got, err := s.FindCell(context.Background(), 1, "7")
	if err != nil {
		t.Fatalf("FindCell: %v", err)
	}
	if !reflect.DeepEqual(got, []int{5, 8}) {
		t.Fatalf("rows = %v, want [5 8]", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
