package pgxutil

import (
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToPgxTxOptions(t *testing.T) {
	assert.Equal(t, pgx.TxOptions{}, ToPgxTxOptions(nil))
	assert.Equal(t, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadOnly},
		ToPgxTxOptions(&sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true}))
	assert.Equal(t, pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		ToPgxTxOptions(&sql.TxOptions{Isolation: sql.LevelReadCommitted}))
	assert.Equal(t, pgx.TxOptions{}, ToPgxTxOptions(&sql.TxOptions{}))
}
