// Package importer reads bank exports into transactions for categorization.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// Parser reads one export format.
type Parser interface {
	Parse(ctx context.Context, r io.Reader) ([]model.Transaction, error)
}

// ParserFor picks a parser from the file extension.
func ParserFor(path string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVParser(), nil
	case ".ofx", ".qfx":
		return NewOFXParser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", common.ErrInvalidInput, filepath.Ext(path))
	}
}

// ImportFile parses path with the parser matching its extension. Every
// returned transaction carries a hash; the account falls back to
// defaultAccount when the file has none.
func ImportFile(ctx context.Context, path, defaultAccount string) ([]model.Transaction, error) {
	parser, err := ParserFor(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Clean(path)) // #nosec G304 -- user-supplied import path
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.Parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}
	if len(txns) == 0 {
		return nil, fmt.Errorf("%s: %w", path, common.ErrNoTransactions)
	}

	for i := range txns {
		if txns[i].AccountID == "" {
			txns[i].AccountID = defaultAccount
		}
		if txns[i].Hash == "" {
			txns[i].Hash = txns[i].GenerateHash()
		}
		if txns[i].ID == "" {
			txns[i].ID = txns[i].Hash
		}
	}
	return txns, nil
}
