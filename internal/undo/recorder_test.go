package undo

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertTrigger_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "insert_trigger", []byte(insertTrigger("tbl1")))
}

func TestUpdateTrigger_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "update_trigger", []byte(updateTrigger("tbl1", []string{"a", "b", "c"})))
}

func TestDeleteTrigger_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "delete_trigger", []byte(deleteTrigger("tbl1", []string{"a", "b", "c"})))
}

func TestTriggerNamePattern(t *testing.T) {
	matching := []string{"_tbl1_it", "_tbl1_ut", "_tbl1_dt", "_a_b_it"}
	for _, name := range matching {
		assert.True(t, triggerNamePattern.MatchString(name), "should match %q", name)
	}

	other := []string{"tbl1_it", "_tbl1_xt", "_tbl1_it_extra", "audit_trigger"}
	for _, name := range other {
		assert.False(t, triggerNamePattern.MatchString(name), "should not match %q", name)
	}
}

func TestInstallTriggers_CapturesColumns(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Exec(ctx, "CREATE TABLE tbl1(a TEXT, b INTEGER)"))

	tracked, err := installTriggers(ctx, st, []string{"tbl1"})
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "tbl1", tracked[0].Name)
	assert.Equal(t, []string{"a", "b"}, tracked[0].Columns)

	names, err := st.QueryStrings(ctx, "SELECT name FROM sqlite_temp_schema WHERE type='trigger' ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"_tbl1_dt", "_tbl1_it", "_tbl1_ut"}, names)
}

func TestInstallTriggers_UnknownTable(t *testing.T) {
	st := createTestStore(t)

	_, err := installTriggers(context.Background(), st, []string{"missing"})
	require.Error(t, err)
}

func TestInstallTriggers_ResetsLog(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Exec(ctx, "CREATE TABLE tbl1(a)"))

	_, err := installTriggers(ctx, st, []string{"tbl1"})
	require.NoError(t, err)
	require.NoError(t, st.Exec(ctx, "INSERT INTO tbl1 VALUES(1)"))

	n, err := st.QueryInt(ctx, "SELECT count(*) FROM undolog")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Reinstalling drops triggers and the stale log before recreating.
	require.NoError(t, dropTriggers(ctx, st))
	_, err = installTriggers(ctx, st, []string{"tbl1"})
	require.NoError(t, err)

	n, err = st.QueryInt(ctx, "SELECT count(*) FROM undolog")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDropTriggers_Idempotent(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	// Nothing installed: still fine.
	require.NoError(t, dropTriggers(ctx, st))

	require.NoError(t, st.Exec(ctx, "CREATE TABLE tbl1(a)"))
	_, err := installTriggers(ctx, st, []string{"tbl1"})
	require.NoError(t, err)

	require.NoError(t, dropTriggers(ctx, st))
	require.NoError(t, dropTriggers(ctx, st))

	names, err := st.QueryStrings(ctx, "SELECT name FROM sqlite_temp_schema WHERE type='trigger'")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDropTriggers_LeavesForeignTriggersAlone(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Exec(ctx, "CREATE TABLE tbl1(a)"))
	require.NoError(t, st.Exec(ctx, "CREATE TABLE audit(msg)"))
	require.NoError(t, st.ExecScript(ctx, `CREATE TEMP TRIGGER app_audit AFTER INSERT ON tbl1 BEGIN
  INSERT INTO audit VALUES('hit');
END;`))

	_, err := installTriggers(ctx, st, []string{"tbl1"})
	require.NoError(t, err)
	require.NoError(t, dropTriggers(ctx, st))

	names, err := st.QueryStrings(ctx, "SELECT name FROM sqlite_temp_schema WHERE type='trigger'")
	require.NoError(t, err)
	assert.Equal(t, []string{"app_audit"}, names)
}

func TestGeneratedTriggers_LogInverseStatements(t *testing.T) {
	st := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Exec(ctx, "CREATE TABLE tbl1(a)"))
	_, err := installTriggers(ctx, st, []string{"tbl1"})
	require.NoError(t, err)

	require.NoError(t, st.Exec(ctx, "INSERT INTO tbl1 VALUES(23)"))
	require.NoError(t, st.Exec(ctx, "UPDATE tbl1 SET a=42 WHERE a=23"))
	require.NoError(t, st.Exec(ctx, "DELETE FROM tbl1 WHERE a=42"))

	stmts, err := st.QueryStrings(ctx, "SELECT sql FROM undolog ORDER BY seq")
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Equal(t, "DELETE FROM tbl1 WHERE rowid=1", stmts[0])
	assert.Equal(t, "UPDATE tbl1 SET a=23 WHERE rowid=1", stmts[1])
	assert.Equal(t, "INSERT INTO tbl1(rowid,a) VALUES(1,42)", stmts[2])
}
