package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/rosterly/rosterly-be/internal/api/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCursorRoundTrip(t *testing.T) {
	cursor := &storage.JobCursor{
		CreatedAt: time.Date(2025, time.June, 2, 8, 30, 0, 123456789, time.UTC),
		JobID:     "7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a4b5c",
	}

	encoded, err := EncodeJobCursor(cursor)
	require.NoError(t, err)

	decoded, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, cursor.JobID, decoded.JobID)
}

func TestDecodeJobCursor_Empty(t *testing.T) {
	decoded, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeJobCursor_Invalid(t *testing.T) {
	t.Run("not base64", func(t *testing.T) {
		_, err := DecodeJobCursor("%%%")
		assert.Error(t, err)
	})

	t.Run("wrong shape", func(t *testing.T) {
		bad := base64.StdEncoding.EncodeToString([]byte("no-separator"))
		_, err := DecodeJobCursor(bad)
		assert.Error(t, err)
	})
}
