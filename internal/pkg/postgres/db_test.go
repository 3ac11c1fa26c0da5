package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDB_NoPool_Fails(t *testing.T) {
	db, err := NewDB(nil)

	assert.NotNil(t, err)
	assert.Nil(t, db)
}

func TestNewSender_NoClient_Fails(t *testing.T) {
	s, err := NewSender(nil)

	assert.NotNil(t, err)
	assert.Nil(t, s)
}

func TestSchema(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS jobs")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS transcriptions")
	assert.Contains(t, schema, "gue_jobs")
	assert.Contains(t, schema, "WHERE status IN ('PENDING', 'RUNNING')")
}
