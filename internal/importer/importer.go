package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	productsvc "shopfront/internal/service/product"
)

type ProductCreator interface {
	Create(ctx context.Context, in productsvc.CreateInput) (*domain.Product, error)
}

// CSVImporter reads a catalog CSV and creates one product per group of rows.
//
// A row with a name starts a new product. Rows with an empty name are
// variant rows: their colors and sizes are merged into the product above.
// Colors and sizes inside a cell are separated by ';'.
type CSVImporter struct {
	reader  *csv.Reader
	creator ProductCreator
	logger  *zap.Logger
}

func NewCSVImporter(r io.Reader, creator ProductCreator, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:  csvr,
		creator: creator,
		logger:  logging.OrNop(logger).With(zap.String("component", "importer")),
	}
}

type csvRow struct {
	line     int
	Category string
	Name     string
	Price    string
	Currency string
	Image    string
	Colors   []string
	Sizes    []string
	Stock    string
}

var requiredHeaders = []string{"category", "name", "price", "currency", "colors", "sizes"}

// Run parses rows and creates the products. It stops at the first invalid
// product and reports how many were created before it.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if missing := lo.Filter(requiredHeaders, func(h string, _ int) bool {
		_, ok := index[h]
		return !ok
	}); len(missing) > 0 {
		return 0, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var (
		current  *csvRow
		imported int
		line     = 1
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line++

		row := parseRow(record, index, line)
		if row == nil {
			continue
		}

		if row.Name != "" {
			if current != nil {
				if err := i.save(ctx, current); err != nil {
					return imported, err
				}
				imported++
			}
			current = row
			continue
		}

		if current == nil {
			return imported, fmt.Errorf("line %d: variant row before any product", line)
		}
		current.Colors = append(current.Colors, row.Colors...)
		current.Sizes = append(current.Sizes, row.Sizes...)
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}

	i.logger.Info("catalog imported", zap.Int("products", imported))
	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return fmt.Errorf("line %d: invalid price %q", row.line, row.Price)
	}
	in := productsvc.CreateInput{
		CategoryID: row.Category,
		Name:       row.Name,
		Price:      price,
		Currency:   row.Currency,
		Image:      row.Image,
		Colors:     row.Colors,
		Sizes:      row.Sizes,
	}
	if row.Stock != "" {
		stock, err := strconv.Atoi(row.Stock)
		if err != nil {
			return fmt.Errorf("line %d: invalid stock %q", row.line, row.Stock)
		}
		in.Stock = &stock
	}

	p, err := i.creator.Create(ctx, in)
	if err != nil {
		return fmt.Errorf("line %d: create product %q: %w", row.line, row.Name, err)
	}
	i.logger.Debug("product imported", zap.String("product_id", p.ID), zap.Int("line", row.line))
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int, line int) *csvRow {
	row := &csvRow{
		line:     line,
		Category: pick(record, index, "category"),
		Name:     pick(record, index, "name"),
		Price:    pick(record, index, "price"),
		Currency: pick(record, index, "currency"),
		Image:    pick(record, index, "image"),
		Colors:   splitCell(pick(record, index, "colors")),
		Sizes:    splitCell(pick(record, index, "sizes")),
		Stock:    pick(record, index, "stock"),
	}
	if row.Name == "" && len(row.Colors) == 0 && len(row.Sizes) == 0 {
		return nil
	}
	return row
}

func splitCell(v string) []string {
	return lo.FilterMap(strings.Split(v, ";"), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
