package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresWithDB(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgres_Get(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs("tokens", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"id":"t1"}`)))

	got, err := repo.Get(context.Background(), "tokens", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"id":"t1"}` {
		t.Errorf("Get = %s", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_Get_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM documents`)).
		WithArgs("sales", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "sales", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestPostgres_Set(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)`)).
		WithArgs("balances", "t1_addr", []byte(`{"amount":5}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Set(context.Background(), "balances", "t1_addr", map[string]any{"amount": 5})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_Update_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET body = body || $3::jsonb`)).
		WithArgs("sales", "s1", []byte(`{"status":"confirmed"}`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "sales", "s1", map[string]any{"status": "confirmed"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update = %v, want ErrNotFound", err)
	}
}

func TestPostgres_Update(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET body = body || $3::jsonb`)).
		WithArgs("sales", "s1", []byte(`{"status":"pending_check"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "sales", "s1", map[string]any{"status": "pending_check"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestPostgres_Query(t *testing.T) {
	repo, mock := newMockRepo(t)

	want := `SELECT body FROM documents WHERE collection = $1 AND body->>$2 = $3 ORDER BY body->$4 DESC LIMIT $5`
	mock.ExpectQuery(regexp.QuoteMeta(want)).
		WithArgs("history", "buyer", "EQabc", "when", 100).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"id":"h2"}`)).
			AddRow([]byte(`{"id":"h1"}`)))

	got, err := repo.Query(context.Background(), "history", Query{
		Where:   []Filter{Eq("buyer", "EQabc")},
		OrderBy: "when",
		Desc:    true,
		Limit:   100,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || string(got[0]) != `{"id":"h2"}` {
		t.Errorf("Query = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		q        Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "collection only",
			q:        Query{},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1",
			wantArgs: []any{"tokens"},
		},
		{
			name:     "numeric and bool filters",
			q:        Query{Where: []Filter{Eq("amount", 2.5), Eq("active", true)}},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1 AND body->>$2 = $3 AND body->>$4 = $5",
			wantArgs: []any{"tokens", "amount", "2.5", "active", "true"},
		},
		{
			name:     "null filter",
			q:        Query{Where: []Filter{Eq("txHash", nil)}},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1 AND body->$2 IS NULL",
			wantArgs: []any{"tokens", "txHash"},
		},
		{
			name:     "ascending order",
			q:        Query{OrderBy: "createdAt"},
			wantSQL:  "SELECT body FROM documents WHERE collection = $1 ORDER BY body->$2",
			wantArgs: []any{"tokens", "createdAt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := buildSelect("tokens", tt.q)
			if gotSQL != tt.wantSQL {
				t.Errorf("sql = %q, want %q", gotSQL, tt.wantSQL)
			}
			if len(gotArgs) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", gotArgs, tt.wantArgs)
			}
			for i := range gotArgs {
				if gotArgs[i] != tt.wantArgs[i] {
					t.Errorf("arg[%d] = %v, want %v", i, gotArgs[i], tt.wantArgs[i])
				}
			}
		})
	}
}
