package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/winery-catalog/internal/model"
	"github.com/sells-group/winery-catalog/internal/store"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "wineries.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Barton Estate", "barton-estate"},
		{"Château Tanunda", "chateau-tanunda"},
		{"Barton's  Wines & Co.", "barton-s-wines-co"},
		{"  -- Sassafras Wines --  ", "sassafras-wines"},
		{"35th Parallel", "35th-parallel"},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestReadRows_XLSX(t *testing.T) {
	t.Parallel()
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Winery Name", "Online Store - Top level"},
			{" Barton Estate ", "https://barton.com.au/shop"},
		},
	})

	rows, err := ReadRows(path, SheetOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Barton Estate", "https://barton.com.au/shop"}, rows[1])

	_, err = ReadRows(path, SheetOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = ReadRows(path, SheetOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadRows_CSV(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "wineries.csv")
	require.NoError(t, os.WriteFile(path, []byte("Winery Name,Online Store - Top level\n\"Sassafras, Wines\",https://sassafras.com.au/shop\n"), 0o644))

	rows, err := ReadRows(path, SheetOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Sassafras, Wines", rows[1][0])
}

func TestReadRows_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := ReadRows(filepath.Join(t.TempDir(), "nope.xlsx"), SheetOptions{})
	assert.Error(t, err)
}

func TestImportWineries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWinery(ctx, &model.Winery{Name: "Sassafras", Slug: "sassafras", IsActive: true}))

	rows := [][]string{
		{"Region", "WINERY NAME", "online store - top level", "Online store - Product page example"},
		{"Barossa", "Barton Estate", "https://barton.com.au/shop", "https://barton.com.au/p/shiraz"},
		{"Canberra", "Sassafras", "https://sassafras.com.au/shop", ""},
		{"", "", "", ""},
		{"Hunter", "Château Tanunda", "https://tanunda.com.au/wines", ""},
		{"Hunter", "Chateau  Tanunda", "https://other.example.com", ""},
		{"Yarra", "", "https://orphan.example.com", ""},
	}

	rep, err := ImportWineries(ctx, st, rows)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, 2, rep.Imported)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 1, rep.Failed, "slug collision fails only that row")
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "row 6")

	w, err := st.GetWineryBySlug(ctx, "chateau-tanunda")
	require.NoError(t, err)
	assert.Equal(t, "Château Tanunda", w.Name)
	assert.Equal(t, "https://tanunda.com.au/wines", w.ShopURL)
	assert.True(t, w.IsActive)

	// A second import of the same sheet imports nothing.
	rep, err = ImportWineries(ctx, st, rows)
	require.NoError(t, err)
	assert.Zero(t, rep.Imported)
}

func TestImportWineries_BadHeader(t *testing.T) {
	t.Parallel()
	_, err := ImportWineries(context.Background(), nil, [][]string{{"Name", "URL"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header must contain")

	_, err = ImportWineries(context.Background(), nil, nil)
	assert.Error(t, err)
}
