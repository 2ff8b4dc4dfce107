package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
)

// Sequence kinds
const (
	KindQuote   = "quote"
	KindInvoice = "invoice"
)

// QuotePrefix is the fixed prefix of quote numbers
const QuotePrefix = "Q"

// DefaultInvoicePrefix is used when the account has not chosen one
const DefaultInvoicePrefix = "INV"

// NextNumber allocates the next value of an account's sequence. Run it inside
// the transaction that inserts the document so a rollback releases nothing
// but a gap.
func NextNumber(ctx context.Context, q db.DBTX, accountID uuid.UUID, kind string) (int64, error) {
	query := `
		INSERT INTO number_sequences (account_id, kind, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, kind)
		DO UPDATE SET last_value = number_sequences.last_value + 1
		RETURNING last_value
	`
	var n int64
	if err := q.QueryRowContext(ctx, query, accountID, kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to allocate %s number: %w", kind, db.ConvertError(err))
	}
	return n, nil
}

// FormatNumber renders a document number such as Q-00042
func FormatNumber(prefix string, n int64) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return fmt.Sprintf("%s-%05d", prefix, n)
}
