package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadFile(t *testing.T) {
	path := writeCSV(t, `date,value_date,name,purpose,amount,currency,category
2024-01-15,2024-01-16,EDEKA FILIALE 42,Lastschrift Einkauf,-31.40,EUR,groceries
15.02.2024,,SHELL STATION,Kartenzahlung,-62.10,,
`)

	result, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, 0, result.Skipped)

	labeled := result.Transactions[0]
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), labeled.Date)
	require.NotNil(t, labeled.ValueDate)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), *labeled.ValueDate)
	assert.Equal(t, "groceries", labeled.Category)
	assert.True(t, labeled.IsReviewed, "labeled rows bootstrap training history")
	assert.InDelta(t, -31.40, labeled.Amount, 1e-9)

	unlabeled := result.Transactions[1]
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), unlabeled.Date)
	assert.Nil(t, unlabeled.ValueDate)
	assert.False(t, unlabeled.IsReviewed)
	assert.Equal(t, "EUR", unlabeled.Currency, "currency defaults when the export omits it")
}

func TestReadFileSkipsMalformedRows(t *testing.T) {
	path := writeCSV(t, `date,name,purpose,amount,currency,category
2024-01-15,EDEKA,Einkauf,-10.00,EUR,
,NO DATE,Einkauf,-5.00,EUR,
2024-01-16,,no name,-5.00,EUR,
`)

	result, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 1)
	assert.Equal(t, 2, result.Skipped)
}

func TestReadFileRejectsBadDate(t *testing.T) {
	path := writeCSV(t, `date,name,purpose,amount,currency,category
yesterday,EDEKA,Einkauf,-10.00,EUR,
`)

	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestReadFileMissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}
