package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/saffron/internal/model"
)

// csvRow is one line of the generic export: date,merchant,amount,description,account.
type csvRow struct {
	Date        string `csv:"date"`
	Merchant    string `csv:"merchant"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Account     string `csv:"account"`
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"02.01.2006",
}

// CSVParser reads comma-separated exports with a header row.
type CSVParser struct {
	logger *slog.Logger
	comma  rune
}

// NewCSVParser creates a comma-delimited parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{comma: ',', logger: slog.Default()}
}

// WithDelimiter changes the field separator.
func (p *CSVParser) WithDelimiter(comma rune) *CSVParser {
	p.comma = comma
	return p
}

// Parse reads all rows. Rows with a missing merchant, bad date or bad
// amount are skipped with a warning.
func (p *CSVParser) Parse(_ context.Context, r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.comma
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows []*csvRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	transactions := make([]model.Transaction, 0, len(rows))
	for i, row := range rows {
		txn, err := row.transaction()
		if err != nil {
			p.logger.Warn("skipping CSV row", "row", i+2, "error", err)
			continue
		}
		transactions = append(transactions, txn)
	}

	p.logger.Info("parsed CSV file", "rows", len(rows), "transactions", len(transactions))
	return transactions, nil
}

func (row csvRow) transaction() (model.Transaction, error) {
	merchantName := strings.TrimSpace(row.Merchant)
	if merchantName == "" {
		return model.Transaction{}, fmt.Errorf("missing merchant")
	}

	date, err := parseDate(row.Date)
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := parseAmount(row.Amount)
	if err != nil {
		return model.Transaction{}, err
	}

	return model.Transaction{
		Date:        date,
		Merchant:    merchantName,
		Amount:      amount,
		Description: strings.TrimSpace(row.Description),
		AccountID:   strings.TrimSpace(row.Account),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseAmount accepts "-12.50", "$1,204.00" and "(12.50)".
func parseAmount(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	negative := strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")")
	clean = strings.Trim(clean, "()")
	clean = strings.NewReplacer("$", "", ",", "", " ", "").Replace(clean)

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d.InexactFloat64(), nil
}
