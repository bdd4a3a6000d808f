package sink

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openmart/retailgen/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// timeFormat stores event times as sortable UTC strings.
const timeFormat = time.RFC3339Nano

// SQLite writes facts to a SQLite database. Batches are appended in
// one transaction each; every insert is keyed on trace_id with
// ON CONFLICT DO NOTHING, so replaying a batch after a crash or a
// resumed run cannot duplicate rows.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the
// embedded schema. The connection is configured for a single writer:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//
// Safe to call against an existing database; the schema is idempotent.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for ad hoc queries (status command,
// tests). Prefer AppendBatch for writes.
func (s *SQLite) DB() *sql.DB { return s.db }

// AppendBatch writes every row of the batch in one transaction.
func (s *SQLite) AppendBatch(ctx context.Context, batch *model.FactBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	if err := appendAll(ctx, tx, batch); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func appendAll(ctx context.Context, tx *sql.Tx, batch *model.FactBatch) error {
	for _, r := range batch.Receipts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO receipts
			(trace_id, id, store_id, customer_id, event_time, subtotal, discount, tax, total, tender, attributed_campaign)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, r.TraceID, r.ID, r.StoreID, r.CustomerID, r.EventTime.UTC().Format(timeFormat),
			r.Subtotal.String(), r.Discount.String(), r.Tax.String(), r.Total.String(),
			string(r.Tender), r.AttributedCampaign)
		if err != nil {
			return fmt.Errorf("append receipt %s: %w", r.ID, err)
		}
	}
	for _, l := range batch.ReceiptLines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_lines
			(trace_id, receipt_id, line_no, product_id, qty, unit_price, extended, promo_code, discount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, l.TraceID, l.ReceiptID, l.LineNo, l.ProductID, l.Qty,
			l.UnitPrice.String(), l.Extended.String(), l.PromoCode, l.Discount.String())
		if err != nil {
			return fmt.Errorf("append receipt line %s/%d: %w", l.ReceiptID, l.LineNo, err)
		}
	}
	for _, t := range batch.InventoryTxns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions
			(trace_id, location_kind, location_id, product_id, delta, shortfall, reason, source_ref, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, t.TraceID, string(t.Location.Kind), t.Location.ID, t.ProductID, t.Delta,
			t.Shortfall, string(t.Reason), t.SourceRef, t.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append inventory txn: %w", err)
		}
	}
	for _, m := range batch.TruckMoves {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO truck_moves
			(trace_id, shipment_id, truck_id, origin_dc, dest_store, status, etd, eta, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, m.TraceID, m.ShipmentID, m.TruckID, m.OriginDC, m.DestStore, string(m.Status),
			m.ETD.UTC().Format(timeFormat), m.ETA.UTC().Format(timeFormat),
			m.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append truck move %s: %w", m.ShipmentID, err)
		}
	}
	for _, f := range batch.FootTraffic {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO foot_traffic
			(trace_id, store_id, sensor_id, zone, dwell_minutes, customer_id, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, f.TraceID, f.StoreID, f.SensorID, f.Zone, f.DwellMinutes, f.CustomerID,
			f.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append foot traffic: %w", err)
		}
	}
	for _, p := range batch.BLEPings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ble_pings
			(trace_id, store_id, beacon_id, zone, dwell_minutes, customer_id, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, p.TraceID, p.StoreID, p.BeaconID, p.Zone, p.DwellMinutes, p.CustomerID,
			p.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append ble ping: %w", err)
		}
	}
	for _, i := range batch.Impressions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO impressions
			(trace_id, campaign_id, channel, device, cost, customer_id, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, i.TraceID, i.CampaignID, i.Channel, i.Device, i.Cost.String(), i.CustomerID,
			i.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append impression: %w", err)
		}
	}
	for _, c := range batch.Campaigns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaigns
			(trace_id, id, name, channel, status, start_time, end_time, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, c.TraceID, c.ID, c.Name, c.Channel, string(c.Status),
			c.Start.UTC().Format(timeFormat), c.End.UTC().Format(timeFormat),
			c.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append campaign %s: %w", c.ID, err)
		}
	}
	for _, o := range batch.OnlineOrders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO online_orders
			(trace_id, id, customer_id, mode, node_kind, node_id, status, total, event_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, o.TraceID, o.ID, o.CustomerID, string(o.Mode), string(o.NodeKind), o.NodeID,
			string(o.Status), o.Total.String(), o.EventTime.UTC().Format(timeFormat))
		if err != nil {
			return fmt.Errorf("append online order %s: %w", o.ID, err)
		}
	}
	for _, l := range batch.OnlineOrderLines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO online_order_lines
			(trace_id, order_id, line_no, product_id, qty, unit_price, extended)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(trace_id) DO NOTHING
		`, l.TraceID, l.OrderID, l.LineNo, l.ProductID, l.Qty,
			l.UnitPrice.String(), l.Extended.String())
		if err != nil {
			return fmt.Errorf("append online order line %s/%d: %w", l.OrderID, l.LineNo, err)
		}
	}
	return nil
}

// TableCounts returns the row count of every fact table.
func (s *SQLite) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(model.Tables))
	for _, table := range model.Tables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
