package excel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/flashbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSaver struct {
	cards map[string]string
	fail  string
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{cards: map[string]string{}}
}

func (f *fakeSaver) Upsert(_ context.Context, card *models.Card) (models.SaveResult, error) {
	if card.Back == f.fail {
		return models.SaveUnchanged, errors.New("boom")
	}
	name, exists := f.cards[card.Back]
	f.cards[card.Back] = card.Front
	switch {
	case !exists:
		return models.SaveCreated, nil
	case name != card.Front:
		return models.SaveUpdated, nil
	}
	return models.SaveUnchanged, nil
}

func TestImportExcel(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]string{
		{"Code", "Name"},
		{"4011", "Banana"},
		{"4131", "Apple"},
		{"", ""},
		{"4053", ""},
	}
	for i, row := range rows {
		for j, v := range row {
			axis, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", axis, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	saver := newFakeSaver()
	result, err := Import(context.Background(), buf, "catalog.xlsx", DefaultImportConfig(), saver)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, map[string]string{"4011": "Banana", "4131": "Apple"}, saver.cards)
}

func TestImportCSV(t *testing.T) {
	saver := newFakeSaver()
	saver.cards["4011"] = "Old banana"
	saver.cards["4225"] = "Avocado"
	saver.fail = "9999"

	input := "code,name\n4011, Banana\n4131,Apple\n9999,Broken\n4225,Avocado\n"
	result, err := Import(context.Background(), strings.NewReader(input), "cards.CSV", DefaultImportConfig(), saver)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalProcessed)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "Banana", saver.cards["4011"])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Row 4")
}

func TestImportLines(t *testing.T) {
	saver := newFakeSaver()
	input := "4011 - Banana\n\n# comment\n4131 Red apple\nnonsense\n"

	result, err := Import(context.Background(), strings.NewReader(input), "list.txt", DefaultImportConfig(), saver)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "Red apple", saver.cards["4131"])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Line 5")
}

func TestImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.txt")
	require.NoError(t, os.WriteFile(path, []byte("4011 - Banana\n"), 0o644))

	saver := newFakeSaver()
	result, err := ImportFile(context.Background(), path, DefaultImportConfig(), saver)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	_, err = ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), DefaultImportConfig(), saver)
	assert.Error(t, err)
}

func TestImportInvalidColumn(t *testing.T) {
	cfg := DefaultImportConfig()
	cfg.CodeColumn = "1"
	_, err := Import(context.Background(), strings.NewReader(""), "a.csv", cfg, newFakeSaver())
	assert.Error(t, err)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line, code, name string
		wantErr          bool
	}{
		{"4011 - Banana", "4011", "Banana", false},
		{"  4011 -  Green banana ", "4011", "Green banana", false},
		{"4131 Apple", "4131", "Apple", false},
		{"4011 Ice - cream", "4011", "Ice - cream", false},
		{"4011 -Banana", "4011", "Banana", false},
		{"4011 -", "", "", true},
		{"4131", "", "", true},
		{"   ", "", "", true},
	}
	for _, tt := range tests {
		code, name, err := ParseLine(tt.line)
		if tt.wantErr {
			assert.Error(t, err, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.code, code)
		assert.Equal(t, tt.name, name)
	}
}

func TestImportResultSummary(t *testing.T) {
	r := &ImportResult{TotalProcessed: 2, Created: 1, Skipped: 1, Errors: []string{"Row 3: bad"}}
	s := r.Summary()
	assert.Contains(t, s, "Created: 1")
	assert.Contains(t, s, "Row 3: bad")
}
