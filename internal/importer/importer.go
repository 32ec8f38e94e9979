package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads commercetools-style product exports into the catalog.
type CSVImporter struct {
	reader *csv.Reader
	writer ProductWriter
	logger logrus.FieldLogger
}

func NewCSVImporter(r io.Reader, writer ProductWriter, logger logrus.FieldLogger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{reader: csvr, writer: writer, logger: logging.OrDiscard(logger)}
}

type csvRow struct {
	ID         string
	Key        string
	Name       string
	Desc       string
	SKU        string
	Cents      int64
	Currency   string
	Stock      int
	Categories []string
	ImageURLs  []string
}

// Run parses rows and upserts one product per key. Rows without a key carry
// extra images for the product above them.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	var (
		current  *csvRow
		imported int
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		if err := i.save(ctx, current); err != nil {
			return err
		}
		imported++
		return nil
	}

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		row, err := parseRow(record, index)
		if err != nil {
			return imported, err
		}
		if row == nil {
			continue
		}
		if row.Key != "" {
			if err := flush(); err != nil {
				return imported, err
			}
			current = row
			continue
		}
		if current != nil && len(row.ImageURLs) > 0 {
			current.ImageURLs = append(current.ImageURLs, row.ImageURLs...)
		}
	}

	if err := flush(); err != nil {
		return imported, err
	}
	i.logger.WithField("count", imported).Info("catalog import finished")
	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	if row.Name == "" || row.SKU == "" || row.Cents <= 0 || row.Currency == "" {
		return fmt.Errorf("invalid product row (missing required fields) for key %q", row.Key)
	}

	p := domain.Product{
		ID:          row.ID,
		Key:         row.Key,
		SKU:         row.SKU,
		Name:        row.Name,
		Description: row.Desc,
		PriceCents:  row.Cents,
		Currency:    row.Currency,
		Stock:       row.Stock,
	}
	if len(row.Categories) > 0 {
		p.Category = row.Categories[0]
	}
	if len(row.ImageURLs) > 0 {
		p.Image = row.ImageURLs[0]
		p.Attributes = map[string]interface{}{"images": row.ImageURLs}
	}

	if _, err := i.writer.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product %q: %w", row.Key, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) (*csvRow, error) {
	key := pick(record, index, "key")
	imageURL := pick(record, index, "variants.images.url")
	if key == "" && imageURL == "" {
		return nil, nil
	}

	row := &csvRow{
		ID:       pick(record, index, "id"),
		Key:      key,
		Name:     pick(record, index, "name.en"),
		Desc:     pick(record, index, "description.en"),
		SKU:      pick(record, index, "variants.sku"),
		Currency: pick(record, index, "variants.prices.value.currencyCode"),
	}
	if s := pick(record, index, "variants.prices.value.centAmount"); s != "" {
		cents, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("key %q: invalid centAmount %q", key, s)
		}
		row.Cents = cents
	}
	if s := pick(record, index, "variants.availability.availableQuantity"); s != "" {
		stock, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("key %q: invalid availableQuantity %q", key, s)
		}
		row.Stock = stock
	}
	for _, c := range strings.Split(pick(record, index, "categories"), ";") {
		if c = strings.TrimSpace(c); c != "" {
			row.Categories = append(row.Categories, c)
		}
	}
	if imageURL != "" {
		row.ImageURLs = []string{imageURL}
	}
	return row, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
