package operation

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/schema"
)

func userRoleSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		&schema.Table{
			Name:       "Role",
			Columns:    []schema.Column{{Name: "ID", Identity: true}, {Name: "Name"}, {Name: "Description"}},
			PrimaryKey: []string{"ID"},
		},
		&schema.Table{
			Name:       "User",
			Columns:    []schema.Column{{Name: "ID", Identity: true}, {Name: "FirstName"}, {Name: "LastName"}, {Name: "Age"}, {Name: "SupervisorID"}},
			PrimaryKey: []string{"ID"},
		},
		&schema.Table{
			Name:       "UserRole",
			Columns:    []schema.Column{{Name: "UserID"}, {Name: "RoleID"}},
			PrimaryKey: []string{"UserID", "RoleID"},
			ForeignKeys: []schema.ForeignKey{
				{Columns: []string{"UserID"}, ReferencedTable: "User", ReferencedColumns: []string{"ID"}},
				{Columns: []string{"RoleID"}, ReferencedTable: "Role", ReferencedColumns: []string{"ID"}},
			},
		},
	)
	require.NoError(t, err)
	return s
}

func userRoleData(t *testing.T, s *schema.Schema) *schema.DataSet {
	t.Helper()
	ds := schema.NewDataSet(s)
	require.NoError(t, ds.Append("UserRole", schema.Row{"UserID": int64(1), "RoleID": int64(1)}))
	require.NoError(t, ds.Append("Role", schema.Row{"ID": int64(1), "Name": "admin", "Description": "Administrators"}))
	require.NoError(t, ds.Append("User", schema.Row{"ID": int64(1), "FirstName": "Ada", "LastName": "Lovelace", "Age": int64(36)}))
	return ds
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func setup(t *testing.T) (*schema.DataSet, *command.Builder) {
	s := userRoleSchema(t)
	b := command.NewBuilder(nil)
	b.SetSchema(s)
	return userRoleData(t, s), b
}

func TestExecuteCleanInsert(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	mock.ExpectExec("DELETE FROM UserRole").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM User").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM Role").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO Role(Name, Description) VALUES(?, ?)").
		WithArgs("admin", "Administrators").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO User(FirstName, LastName, Age, SupervisorID) VALUES(?, ?, ?, ?)").
		WithArgs("Ada", "Lovelace", int64(36), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO UserRole(UserID, RoleID) VALUES(?, ?)").
		WithArgs(int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := Execute(ctx, NewGeneric(nil), CleanInsert, ds, b, db)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCleanInsertIdentity(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	for _, table := range []string{"UserRole", "User", "Role"} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO Role(ID, Name, Description) VALUES(?, ?, ?)").
		WithArgs(int64(1), "admin", "Administrators").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO User(ID, FirstName, LastName, Age, SupervisorID) VALUES(?, ?, ?, ?, ?)").
		WithArgs(int64(1), "Ada", "Lovelace", int64(36), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO UserRole(UserID, RoleID) VALUES(?, ?)").
		WithArgs(int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Execute(ctx, NewGeneric(nil), CleanInsertIdentity, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDeleteChildFirst(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	mock.ExpectExec("DELETE FROM UserRole WHERE UserID=? AND RoleID=?").
		WithArgs(int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM User WHERE ID=?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM Role WHERE ID=?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Execute(ctx, NewGeneric(nil), Delete, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdate(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	mock.ExpectExec("UPDATE Role SET Name=?, Description=? WHERE ID=?").
		WithArgs("admin", "Administrators", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE User SET FirstName=?, LastName=?, Age=?, SupervisorID=? WHERE ID=?").
		WithArgs("Ada", "Lovelace", int64(36), nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE UserRole SET UserID=?, RoleID=? WHERE UserID=? AND RoleID=?").
		WithArgs(int64(1), int64(1), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Execute(ctx, NewGeneric(nil), Update, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRefresh(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	// Role exists and is updated.
	mock.ExpectExec("UPDATE Role SET Name=?, Description=? WHERE ID=?").
		WithArgs("admin", "Administrators", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// User is missing and falls back to an identity insert.
	mock.ExpectExec("UPDATE User SET FirstName=?, LastName=?, Age=?, SupervisorID=? WHERE ID=?").
		WithArgs("Ada", "Lovelace", int64(36), nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO User(ID, FirstName, LastName, Age, SupervisorID) VALUES(?, ?, ?, ?, ?)").
		WithArgs(int64(1), "Ada", "Lovelace", int64(36), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec("UPDATE UserRole SET UserID=?, RoleID=? WHERE UserID=? AND RoleID=?").
		WithArgs(int64(1), int64(1), int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO UserRole(UserID, RoleID) VALUES(?, ?)").
		WithArgs(int64(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Execute(ctx, NewGeneric(nil), Refresh, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNone(t *testing.T) {
	db, mock := newMock(t)
	ds, b := setup(t)

	require.NoError(t, Execute(context.Background(), NewGeneric(nil), None, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteFailureStopsAndWraps(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	driverErr := errors.New("duplicate key")
	mock.ExpectExec("INSERT INTO Role(Name, Description) VALUES(?, ?)").
		WithArgs("admin", "Administrators").
		WillReturnError(driverErr)

	err := Execute(ctx, NewGeneric(nil), Insert, ds, b, db)
	require.Error(t, err)
	assert.True(t, errors.Is(err, driverErr))

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, Insert, opErr.Op)
	assert.Equal(t, "Role", opErr.Table)
	assert.Equal(t, "INSERT INTO Role(Name, Description) VALUES(?, ?)", opErr.Statement)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyedOperationOnKeylessTable(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)

	s, err := schema.New(
		&schema.Table{Name: "Log", Columns: []schema.Column{{Name: "Message"}}},
		&schema.Table{Name: "Audit", Columns: []schema.Column{{Name: "Entry"}}},
	)
	require.NoError(t, err)
	b := command.NewBuilder(nil)
	b.SetSchema(s)

	ds := schema.NewDataSet(s)
	require.NoError(t, ds.Append("Log", schema.Row{"Message": "started"}))

	for _, kind := range []Kind{Delete, Update, Refresh} {
		err := Execute(ctx, NewGeneric(nil), kind, ds, b, db)
		assert.True(t, schema.IsSchemaError(err), kind.String())
	}

	// Audit has no rows, so only Log needs a key.
	mock.ExpectExec("INSERT INTO Log(Message) VALUES(?)").
		WithArgs("started").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, Execute(ctx, NewGeneric(nil), Insert, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCycle(t *testing.T) {
	db, _ := newMock(t)
	s, err := schema.New(
		&schema.Table{
			Name: "A", Columns: []schema.Column{{Name: "ID"}, {Name: "BID"}}, PrimaryKey: []string{"ID"},
			ForeignKeys: []schema.ForeignKey{{Columns: []string{"BID"}, ReferencedTable: "B", ReferencedColumns: []string{"ID"}}},
		},
		&schema.Table{
			Name: "B", Columns: []schema.Column{{Name: "ID"}, {Name: "AID"}}, PrimaryKey: []string{"ID"},
			ForeignKeys: []schema.ForeignKey{{Columns: []string{"AID"}, ReferencedTable: "A", ReferencedColumns: []string{"ID"}}},
		},
	)
	require.NoError(t, err)
	b := command.NewBuilder(nil)
	b.SetSchema(s)

	err = Execute(context.Background(), NewGeneric(nil), DeleteAll, schema.NewDataSet(s), b, db)
	assert.True(t, schema.IsCyclicDependency(err))
}

func TestPostgresResetsSequences(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	ds, b := setup(t)

	mock.ExpectExec("INSERT INTO Role(ID, Name, Description) VALUES(?, ?, ?)").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO User(ID, FirstName, LastName, Age, SupervisorID) VALUES(?, ?, ?, ?, ?)").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO UserRole(UserID, RoleID) VALUES(?, ?)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(SequenceResetSQL("Role", "ID")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(SequenceResetSQL("User", "ID")).WillReturnResult(sqlmock.NewResult(0, 1))

	op := New("postgres", nil)
	require.IsType(t, &Postgres{}, op)
	require.NoError(t, Execute(ctx, op, InsertIdentity, ds, b, db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceResetSQL(t *testing.T) {
	assert.Equal(t,
		`SELECT setval(pg_get_serial_sequence('"User"', 'ID'), COALESCE(MAX("ID"), 1)) FROM "User"`,
		SequenceResetSQL("User", "ID"),
	)
	assert.Equal(t,
		`SELECT setval(pg_get_serial_sequence('"O''Brien"', 'ID'), COALESCE(MAX("ID"), 1)) FROM "O'Brien"`,
		SequenceResetSQL("O'Brien", "ID"),
	)
}

func TestNewPicksGenericForOtherDialects(t *testing.T) {
	assert.IsType(t, &Generic{}, New("mysql", nil))
	assert.IsType(t, &Generic{}, New("sqlite", nil))
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"none":                  None,
		"insert":                Insert,
		"INSERT_IDENTITY":       InsertIdentity,
		"insertidentity":        InsertIdentity,
		"delete-all":            DeleteAll,
		"Refresh":               Refresh,
		"clean_insert":          CleanInsert,
		"clean-insert-identity": CleanInsertIdentity,
	}
	for name, want := range tests {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseKind("truncate")
	assert.Error(t, err)
	assert.Len(t, Names(), 9)
}
