package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestMapDBError(t *testing.T) {
	require.Nil(t, MapDBError(nil))
	require.ErrorIs(t, MapDBError(errors.New("UNIQUE constraint failed: wallet_materials.public_key")), ErrDuplicate)
	require.ErrorIs(t, MapDBError(errors.New(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`)), ErrDuplicate)
	require.ErrorIs(t, MapDBError(errors.New("Error 1062 (23000): Duplicate entry")), ErrDuplicate)

	other := errors.New("connection reset")
	require.Equal(t, other, MapDBError(other))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n")
	require.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, stmts)
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := openSQL("oracle", "dsn", DefaultPoolOptions)
	require.Error(t, err)
}

func TestAppError(t *testing.T) {
	require.Nil(t, AppError(nil, "deposit"))
	require.True(t, apperr.Is(AppError(ErrNotFound, "deposit"), apperr.KindNotFound))
	require.True(t, apperr.Is(AppError(ErrDuplicate, "wallet"), apperr.KindConflict))
	require.True(t, apperr.Is(AppError(ErrStateConflict, "deposit"), apperr.KindConflict))

	err := AppError(errors.New("disk full"), "deposit")
	require.True(t, apperr.Is(err, apperr.KindInternal))
	require.Equal(t, "internal error", apperr.PublicMessage(err))
}

type ctxKey struct{}

func TestDetachedSurvivesCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	cancel()

	ctx, done := Detached(parent)
	defer done()

	require.NoError(t, ctx.Err())
	require.Equal(t, "v", ctx.Value(ctxKey{}))
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(BookkeepingTimeout), deadline, time.Second)
}
