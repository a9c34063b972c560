// Package catalog loads the merchant's product catalog from CSV or XLSX
// exports. Every loaded item is validated; one bad row fails the whole load
// so a truncated export never silently shrinks the catalog.
package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/model"
)

// Load reads a catalog file, dispatching on the extension (.csv or .xlsx).
func Load(path string) ([]model.CatalogItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadCSV reads catalog items from a CSV export with an id, name,
// current_price, unit_cost, currency header (category and brand optional).
func LoadCSV(path string) ([]model.CatalogItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open csv")
	}
	defer f.Close() //nolint:errcheck

	items, err := decodeCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", path)
	}
	return finish(path, items)
}

func decodeCSV(r io.Reader) ([]model.CatalogItem, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	var items []model.CatalogItem
	for {
		var item model.CatalogItem
		if err := dec.Decode(&item); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "decode row")
		}
		items = append(items, item)
	}
	return items, nil
}

// LoadXLSX reads catalog items from the first sheet of an XLSX workbook.
// The first row must be a header using the same column names as the CSV
// format.
func LoadXLSX(path string) ([]model.CatalogItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("catalog: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.Errorf("catalog: %s has no data rows", path)
	}

	cols := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		name := strings.TrimSpace(strings.ToLower(cell.String()))
		if name != "" {
			cols[name] = i
		}
	}
	for _, required := range []string{"id", "name", "current_price", "unit_cost", "currency"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("catalog: %s missing %q column", path, required)
		}
	}

	var items []model.CatalogItem
	for i, row := range sheet.Rows[1:] {
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row.Cells) {
				return ""
			}
			return strings.TrimSpace(row.Cells[idx].String())
		}

		if cell("id") == "" && cell("name") == "" {
			continue // trailing blank rows are common in hand-edited sheets
		}

		price, err := strconv.ParseFloat(cell("current_price"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: %s row %d: current_price", path, i+2)
		}
		cost, err := strconv.ParseFloat(cell("unit_cost"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: %s row %d: unit_cost", path, i+2)
		}

		items = append(items, model.CatalogItem{
			ID:           cell("id"),
			Name:         cell("name"),
			CurrentPrice: price,
			UnitCost:     cost,
			Currency:     cell("currency"),
			Category:     cell("category"),
			Brand:        cell("brand"),
		})
	}
	return finish(path, items)
}

// finish validates the loaded items and rejects duplicate IDs.
func finish(path string, items []model.CatalogItem) ([]model.CatalogItem, error) {
	if len(items) == 0 {
		return nil, eris.Errorf("catalog: %s contains no items", path)
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, eris.Wrapf(err, "catalog: %s", path)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, eris.Errorf("catalog: %s: duplicate item id %q", path, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	zap.L().Info("catalog loaded",
		zap.String("path", path),
		zap.Int("items", len(items)),
	)
	return items, nil
}
