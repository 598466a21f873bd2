package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// Journals are append-only monthly JSON arrays. They are written for audit and
// never read back by the engine; deduplication is the desired book's job.

// OrderRecord is one venue submission inside a journal entry.
type OrderRecord struct {
	Symbol         string           `json:"symbol"`
	OrderID        string           `json:"order_id"`
	Shares         int64            `json:"shares"`
	EstimatedPrice *decimal.Decimal `json:"estimated_price,omitempty"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	StopType       string           `json:"stop_type,omitempty"`
	Timestamp      string           `json:"timestamp"`
}

// OrderJournalEntry groups the orders placed by one operation.
type OrderJournalEntry struct {
	Timestamp   string        `json:"timestamp"`
	OrderType   string        `json:"order_type"` // initial_buy, stop_loss, trailing_stop_update, emergency_liquidation
	Orders      []OrderRecord `json:"orders"`
	TotalOrders int           `json:"total_orders"`
}

// SyncOrderRecord is one reconciliation order.
type SyncOrderRecord struct {
	Side    string `json:"side"`
	Symbol  string `json:"symbol"`
	Qty     int64  `json:"qty"`
	OrderID string `json:"order_id"`
}

// SyncJournalEntry records the market orders of one reconciliation pass.
type SyncJournalEntry struct {
	Timestamp string            `json:"timestamp"`
	Type      string            `json:"type"` // always position_sync
	Orders    []SyncOrderRecord `json:"orders"`
}

// ExecutionJournalEntry records one filled protective stop.
type ExecutionJournalEntry struct {
	Timestamp     string          `json:"timestamp"`
	Type          string          `json:"type"` // always stop_execution
	Symbol        string          `json:"symbol"`
	ExecutionTime string          `json:"execution_time"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	FilledPrice   decimal.Decimal `json:"filled_price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	Proceeds      decimal.Decimal `json:"proceeds"`
	OrderID       string          `json:"venue_order_id"`
}

// AppendOrderJournal appends to logs/orders_YYYY_MM.json.
func (s *Store) AppendOrderJournal(at time.Time, entry OrderJournalEntry) error {
	return s.appendJournal(monthlyName("orders", at), entry)
}

// AppendSyncJournal appends to logs/sync_YYYY_MM.json.
func (s *Store) AppendSyncJournal(at time.Time, entry SyncJournalEntry) error {
	return s.appendJournal(monthlyName("sync", at), entry)
}

// AppendExecutionJournal appends to logs/executions_YYYY_MM.json.
func (s *Store) AppendExecutionJournal(at time.Time, entry ExecutionJournalEntry) error {
	return s.appendJournal(monthlyName("executions", at), entry)
}

func monthlyName(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s.json", prefix, at.Format("2006_01"))
}

// appendJournal reads the month's array, appends one entry and rewrites the
// file atomically. Existing entries are kept as raw JSON so appends never
// reshape what earlier runs wrote.
func (s *Store) appendJournal(name string, entry any) error {
	path := filepath.Join(s.Dir, logsDir, name)

	var entries []json.RawMessage
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First entry of the month.
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(b, &entries); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
		}
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}
	entries = append(entries, raw)

	return s.writeJSON(path, entries)
}
