package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSettings(t *testing.T) {
	db, err := OpenSQLite("file:settings?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)

	v, err := GetSetting(db, "active_chatbot_id")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, SetSetting(db, "active_chatbot_id", "3"))
	require.NoError(t, SetSetting(db, "active_chatbot_id", "4"))

	v, err = GetSetting(db, "active_chatbot_id")
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

func TestSyncSequencesNeedsPostgres(t *testing.T) {
	db, err := OpenSQLite("file:sequences?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, SyncSequences(db, zap.NewNop()))
}
