package fixture

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-fixture/internal/database"
	"github.com/koba/db-fixture/internal/diff"
	"github.com/koba/db-fixture/internal/operation"
	"github.com/koba/db-fixture/internal/schema"
)

const userRoleDDL = `
	CREATE TABLE "Role" (ID INTEGER PRIMARY KEY, Name TEXT NOT NULL, Description TEXT);
	CREATE TABLE "User" (
		ID INTEGER PRIMARY KEY,
		FirstName TEXT NOT NULL,
		LastName TEXT NOT NULL,
		Age INTEGER,
		SupervisorID INTEGER REFERENCES "User"(ID)
	);
	CREATE TABLE "UserRole" (
		UserID INTEGER NOT NULL REFERENCES "User"(ID),
		RoleID INTEGER NOT NULL REFERENCES "Role"(ID),
		PRIMARY KEY (UserID, RoleID)
	);
`

const userRoleSchemaYAML = `
tables:
  - name: UserRole
    columns:
      - {name: UserID, type: integer}
      - {name: RoleID, type: integer}
    primary_key: [UserID, RoleID]
    foreign_keys:
      - {columns: [UserID], references: User, referenced_columns: [ID]}
      - {columns: [RoleID], references: Role, referenced_columns: [ID]}
  - name: User
    columns:
      - {name: ID, type: integer, identity: true}
      - {name: FirstName, type: text}
      - {name: LastName, type: text}
      - {name: Age, type: integer, nullable: true}
      - {name: SupervisorID, type: integer, nullable: true}
    primary_key: [ID]
    foreign_keys:
      - {columns: [SupervisorID], references: User, referenced_columns: [ID]}
  - name: Role
    columns:
      - {name: ID, type: integer, identity: true}
      - {name: Name, type: text}
      - {name: Description, type: text, nullable: true}
    primary_key: [ID]
`

const userRoleDataYAML = `
UserRole:
  - {UserID: 1, RoleID: 1}
  - {UserID: 2, RoleID: 2}
User:
  - {ID: 1, FirstName: Ada, LastName: Lovelace, Age: 36}
  - {ID: 2, FirstName: Grace, LastName: Hopper, Age: 85, SupervisorID: 1}
Role:
  - {ID: 1, Name: admin, Description: Administrators}
  - {ID: 2, Name: guest}
`

func newSQLiteFixture(t *testing.T) *Fixture {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := database.Open(database.Config{Type: "sqlite", URL: "file:" + path + "?_pragma=foreign_keys(1)"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, userRoleDDL)
	require.NoError(t, err)

	f := New(db, WithQuote(`"`, `"`))
	require.NoError(t, f.ReadSchema(schema.BytesSource([]byte(userRoleSchemaYAML))))
	require.NoError(t, f.ReadData(schema.BytesSource([]byte(userRoleDataYAML))))
	return f
}

func countRows(t *testing.T, f *Fixture, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM "`+table+`"`))
	return n
}

func TestSQLiteCleanInsertIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)

	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsertIdentity))
	// Running it twice must not duplicate anything.
	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsertIdentity))

	fetched, err := f.FetchFromDatabase(ctx)
	require.NoError(t, err)

	expected, err := f.CopyData()
	require.NoError(t, err)
	result, err := diff.Compare(expected, fetched)
	require.NoError(t, err)
	assert.True(t, result.Empty())

	users := fetched.Rows("User")
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0]["ID"])
	assert.Equal(t, "Ada", users[0]["FirstName"])
	assert.Nil(t, users[0]["SupervisorID"])
}

func TestSQLiteCleanInsertAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)

	require.NoError(t, f.ReadData(schema.BytesSource([]byte("Role:\n  - {ID: 40, Name: admin}\n  - {ID: 41, Name: guest}\n"))))
	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsert))

	result, err := f.Verify(ctx, diff.IgnoreIdentity())
	require.NoError(t, err)
	assert.True(t, result.Empty())

	result, err = f.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, result.Empty(), "identity values were assigned by the database")
}

func TestSQLiteRefresh(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)
	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsertIdentity))

	s := f.Schema()
	update := schema.NewDataSet(s)
	require.NoError(t, update.Append("Role",
		schema.Row{"ID": 2, "Name": "visitor", "Description": "Read only"},
		schema.Row{"ID": 3, "Name": "auditor"},
	))
	require.NoError(t, f.LoadDataSet(update))
	require.NoError(t, f.PerformOperation(ctx, operation.Refresh))

	roles, err := f.FetchFromDatabase(ctx, "Role")
	require.NoError(t, err)
	assert.Equal(t, []schema.Row{
		{"ID": int64(1), "Name": "admin", "Description": "Administrators"},
		{"ID": int64(2), "Name": "visitor", "Description": "Read only"},
		{"ID": int64(3), "Name": "auditor", "Description": nil},
	}, roles.Rows("Role"))
	assert.Empty(t, roles.Rows("User"), "only the requested table is fetched")

	// Refreshing again with unchanged values still finds the rows.
	require.NoError(t, f.PerformOperation(ctx, operation.Refresh))
	assert.Equal(t, 3, countRows(t, f, "Role"))
}

func TestSQLiteFailedOperationLeavesNoChanges(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)
	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsertIdentity))

	// UserRole references a user that the data does not contain, so the
	// insert pass fails after the delete pass has emptied every table.
	broken := "Role:\n  - {ID: 1, Name: admin}\nUserRole:\n  - {UserID: 99, RoleID: 1}\n"
	require.NoError(t, f.ReadData(schema.BytesSource([]byte(broken))))

	err := f.PerformOperation(ctx, operation.CleanInsertIdentity)
	require.Error(t, err)
	var opErr *operation.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "UserRole", opErr.Table)
	assertReleased(t, f)

	assert.Equal(t, 2, countRows(t, f, "Role"))
	assert.Equal(t, 2, countRows(t, f, "User"))
	assert.Equal(t, 2, countRows(t, f, "UserRole"))
}

func TestSQLiteDeleteAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)
	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsertIdentity))

	require.NoError(t, f.ReadData(schema.BytesSource([]byte("UserRole:\n  - {UserID: 2, RoleID: 2}\nRole:\n  - {ID: 2}\n"))))
	require.NoError(t, f.PerformOperation(ctx, operation.Delete))
	assert.Equal(t, 1, countRows(t, f, "Role"))
	assert.Equal(t, 1, countRows(t, f, "UserRole"))
	assert.Equal(t, 2, countRows(t, f, "User"))

	require.NoError(t, f.PerformOperation(ctx, operation.DeleteAll))
	for _, table := range []string{"Role", "User", "UserRole"} {
		assert.Equal(t, 0, countRows(t, f, table), table)
	}
}

func TestSQLiteUpdate(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t)
	require.NoError(t, f.PerformOperation(ctx, operation.CleanInsertIdentity))

	require.NoError(t, f.ReadData(schema.BytesSource([]byte("User:\n  - {ID: 2, FirstName: Grace, LastName: Hopper, Age: 86, SupervisorID: 1}\n"))))
	require.NoError(t, f.PerformOperation(ctx, operation.Update))

	var age int
	require.NoError(t, f.db.GetContext(ctx, &age, `SELECT Age FROM "User" WHERE ID = 2`))
	assert.Equal(t, 86, age)
}
