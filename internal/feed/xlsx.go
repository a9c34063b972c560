package feed

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/pricewise/pricewise/internal/model"
)

// XLSXWorker reads a competitor price sheet exported to XLSX. Some regional
// chains publish nothing better than a spreadsheet; the sheet is re-read on
// every fetch so a refreshed export is picked up without a restart.
type XLSXWorker struct {
	name  string
	path  string
	sheet string
}

// NewXLSXWorker builds an XLSX worker from a registry entry.
func NewXLSXWorker(sc StoreConfig) (*XLSXWorker, error) {
	if sc.Path == "" {
		return nil, eris.Errorf("feed: xlsx store %q has no path", sc.Name)
	}
	return &XLSXWorker{name: sc.Name, path: sc.Path, sheet: sc.Sheet}, nil
}

func (w *XLSXWorker) Store() string { return w.name }

// Fetch loads the sheet and keeps the rows relevant to the query. The first
// row must be a header naming at least title, price, and url columns.
func (w *XLSXWorker) Fetch(ctx context.Context, query string, limit int) ([]model.RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := xlsx.OpenFile(w.path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: %s open sheet", w.name)
	}

	sheet, err := w.pickSheet(f)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) < 2 {
		return nil, nil
	}

	cols, err := headerIndex(sheet.Rows[0])
	if err != nil {
		return nil, eris.Wrapf(err, "feed: %s header", w.name)
	}

	now := time.Now().UTC()
	var obs []model.RawObservation
	for _, row := range sheet.Rows[1:] {
		title := cellAt(row, colOf(cols, "title"))
		u := cellAt(row, colOf(cols, "url"))
		if title == "" || u == "" {
			continue
		}
		if !matchesQuery(query, title) {
			continue
		}

		var price *float64
		if raw := cellAt(row, colOf(cols, "price")); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				price = &v
			}
		}

		inStock := true
		if raw := cellAt(row, colOf(cols, "in_stock")); raw != "" {
			inStock = parseBool(raw)
		}

		obs = append(obs, model.RawObservation{
			StoreName:  w.name,
			Title:      title,
			Price:      price,
			Currency:   cellAt(row, colOf(cols, "currency")),
			Brand:      cellAt(row, colOf(cols, "brand")),
			ProductURL: u,
			InStock:    inStock,
			ScrapedAt:  now,
		})
		if len(obs) >= limit {
			break
		}
	}
	return obs, nil
}

func (w *XLSXWorker) pickSheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if w.sheet != "" {
		sheet, ok := f.Sheet[w.sheet]
		if !ok {
			return nil, eris.Errorf("feed: %s sheet %q not found", w.name, w.sheet)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("feed: %s workbook has no sheets", w.name)
	}
	return f.Sheets[0], nil
}

// headerIndex maps lowercased header names to column positions. title,
// price, and url are mandatory; everything else is optional.
func headerIndex(header *xlsx.Row) (map[string]int, error) {
	cols := make(map[string]int, len(header.Cells))
	for i, cell := range header.Cells {
		name := strings.TrimSpace(strings.ToLower(cell.String()))
		if name != "" {
			cols[name] = i
		}
	}
	for _, required := range []string{"title", "price", "url"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("missing %q column", required)
		}
	}
	return cols, nil
}

// colOf returns the position of a header column, or -1 when absent.
func colOf(cols map[string]int, name string) int {
	if i, ok := cols[name]; ok {
		return i
	}
	return -1
}

// cellAt returns the trimmed cell value, or "" when the column is absent or
// the row is short.
func cellAt(row *xlsx.Row, idx int) string {
	if idx < 0 || idx >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[idx].String())
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "no", "n", "0", "out of stock":
		return false
	default:
		return true
	}
}
