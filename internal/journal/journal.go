// Package journal persists the order audit trail and execution ledger in
// duckdb. Money columns are stored as decimal strings and aggregated with
// DECIMAL casts so sums stay exact; floats never enter the journal.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// Execution is one booked fill, close, or reversal leg. Outcome is one of
// the types.FillOutcome kinds.
type Execution struct {
	OrderID     string
	AccountID   string
	Instrument  string
	Outcome     string
	Units       decimal.Decimal
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
	ExecutedAt  time.Time
}

// OrderRecord is the flat audit row kept per order.
type OrderRecord struct {
	OrderID       string
	AccountID     string
	Instrument    string
	Kind          types.OrderKind
	Units         decimal.Decimal
	FilledUnits   decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Status        types.OrderStatus
	RejectCode    string
	RejectReason  string
	BrokerOrderID string
	LatencyMs     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Journal is the duckdb-backed trade journal.
type Journal struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// New opens the journal database at path, or in memory when path is empty.
func New(path string, log *logger.Logger) (*Journal, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeJournalError, err, "open journal %s", path)
	}

	return &Journal{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the journal tables.
func (j *Journal) Initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			account_id TEXT,
			instrument TEXT,
			kind TEXT,
			units TEXT,
			filled_units TEXT,
			avg_fill_price TEXT,
			status TEXT,
			reject_code TEXT,
			reject_reason TEXT,
			broker_order_id TEXT,
			latency_ms BIGINT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalError, "create orders table", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			order_id TEXT,
			account_id TEXT,
			instrument TEXT,
			outcome TEXT,
			units TEXT,
			price TEXT,
			realized_pnl TEXT,
			commission TEXT,
			executed_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalError, "create executions table", err)
	}

	return nil
}

// Cleanup drops the journal tables and recreates them empty.
func (j *Journal) Cleanup() error {
	if _, err := j.db.Exec(`DROP TABLE IF EXISTS orders`); err != nil {
		return errors.Wrap(errors.ErrCodeJournalError, "drop orders table", err)
	}

	if _, err := j.db.Exec(`DROP TABLE IF EXISTS executions`); err != nil {
		return errors.Wrap(errors.ErrCodeJournalError, "drop executions table", err)
	}

	return j.Initialize()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOrder writes the order's current state, replacing any earlier row so
// the journal always holds the latest view.
func (j *Journal) RecordOrder(order *types.Order) error {
	avgFillPrice := ""
	if order.AvgFillPrice.IsSome() {
		avgFillPrice = order.AvgFillPrice.Unwrap().String()
	}

	brokerOrderID := ""
	if order.BrokerOrderID.IsSome() {
		brokerOrderID = order.BrokerOrderID.Unwrap()
	}

	insertQuery := j.sq.
		Insert("orders").
		Options("OR REPLACE").
		Columns(
			"order_id", "account_id", "instrument", "kind", "units",
			"filled_units", "avg_fill_price", "status", "reject_code",
			"reject_reason", "broker_order_id", "latency_ms", "created_at",
			"updated_at",
		).
		Values(
			order.ID, order.AccountID, order.Instrument, string(order.Kind),
			order.Units.String(), order.FilledUnits.String(), avgFillPrice,
			string(order.Status), string(order.RejectCode), order.RejectReason,
			brokerOrderID, order.Latency.Milliseconds(),
			order.CreatedAt.UTC(), time.Now().UTC(),
		).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrapf(errors.ErrCodeJournalError, err, "record order %s", order.ID)
	}

	return nil
}

// RecordExecution appends one execution row.
func (j *Journal) RecordExecution(execution Execution) error {
	insertQuery := j.sq.
		Insert("executions").
		Columns(
			"order_id", "account_id", "instrument", "outcome", "units",
			"price", "realized_pnl", "commission", "executed_at",
		).
		Values(
			execution.OrderID, execution.AccountID, execution.Instrument,
			execution.Outcome, execution.Units.String(),
			execution.Price.String(), execution.RealizedPnL.String(),
			execution.Commission.String(), execution.ExecutedAt.UTC(),
		).
		RunWith(j.db)

	if _, err := insertQuery.Exec(); err != nil {
		return errors.Wrapf(errors.ErrCodeJournalError, err, "record execution for order %s", execution.OrderID)
	}

	return nil
}

// RealizedPnLSince returns the account's net realized profit since the given
// time: booked profit minus commissions.
func (j *Journal) RealizedPnLSince(accountID string, since time.Time) (decimal.Decimal, error) {
	query := j.sq.
		Select(
			"COALESCE(CAST(SUM(CAST(realized_pnl AS DECIMAL(38,10))) AS VARCHAR), '0')",
			"COALESCE(CAST(SUM(CAST(commission AS DECIMAL(38,10))) AS VARCHAR), '0')",
		).
		From("executions").
		Where(squirrel.Eq{"account_id": accountID}).
		Where(squirrel.GtOrEq{"executed_at": since.UTC()}).
		RunWith(j.db)

	var realizedStr, commissionStr string

	err := query.QueryRow().Scan(&realizedStr, &commissionStr)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeQueryFailed, err, "realized pnl for %s", accountID)
	}

	realized, err := decimal.NewFromString(realizedStr)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeQueryFailed, err, "parse realized sum %q", realizedStr)
	}

	commission, err := decimal.NewFromString(commissionStr)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeQueryFailed, err, "parse commission sum %q", commissionStr)
	}

	return realized.Sub(commission), nil
}

// DailyRealizedPnL returns net realized profit since the UTC day start.
func (j *Journal) DailyRealizedPnL(accountID string, now time.Time) (decimal.Decimal, error) {
	return j.RealizedPnLSince(accountID, UTCDayStart(now))
}

// WeeklyRealizedPnL returns net realized profit since the UTC week start.
func (j *Journal) WeeklyRealizedPnL(accountID string, now time.Time) (decimal.Decimal, error) {
	return j.RealizedPnLSince(accountID, UTCWeekStart(now))
}

// OrderHistory returns the account's most recent orders, newest first.
func (j *Journal) OrderHistory(accountID string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	selectQuery := j.sq.
		Select(
			"order_id", "account_id", "instrument", "kind", "units",
			"filled_units", "avg_fill_price", "status", "reject_code",
			"reject_reason", "broker_order_id", "latency_ms", "created_at",
			"updated_at",
		).
		From("orders").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		RunWith(j.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "order history for %s", accountID)
	}
	defer rows.Close()

	var records []OrderRecord

	for rows.Next() {
		var (
			record                          OrderRecord
			kind, status                    string
			unitsStr, filledStr, avgFillStr string
		)

		err := rows.Scan(
			&record.OrderID,
			&record.AccountID,
			&record.Instrument,
			&kind,
			&unitsStr,
			&filledStr,
			&avgFillStr,
			&status,
			&record.RejectCode,
			&record.RejectReason,
			&record.BrokerOrderID,
			&record.LatencyMs,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scan order row", err)
		}

		record.Kind = types.OrderKind(kind)
		record.Status = types.OrderStatus(status)

		record.Units, err = decimal.NewFromString(unitsStr)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "parse units %q", unitsStr)
		}

		record.FilledUnits, err = decimal.NewFromString(filledStr)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "parse filled units %q", filledStr)
		}

		record.AvgFillPrice = decimal.Zero
		if avgFillStr != "" {
			record.AvgFillPrice, err = decimal.NewFromString(avgFillStr)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "parse avg fill price %q", avgFillStr)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "iterate order rows", err)
	}

	return records, nil
}

// Export writes both tables as parquet files into dir.
func (j *Journal) Export(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(errors.ErrCodeJournalError, err, "create export dir %s", dir)
	}

	ordersPath := filepath.Join(dir, "orders.parquet")
	if _, err := j.db.Exec(fmt.Sprintf(`COPY orders TO '%s' (FORMAT PARQUET)`, ordersPath)); err != nil {
		return errors.Wrap(errors.ErrCodeJournalError, "export orders", err)
	}

	executionsPath := filepath.Join(dir, "executions.parquet")
	if _, err := j.db.Exec(fmt.Sprintf(`COPY executions TO '%s' (FORMAT PARQUET)`, executionsPath)); err != nil {
		return errors.Wrap(errors.ErrCodeJournalError, "export executions", err)
	}

	j.log.Info("exported journal",
		zap.String("orders", ordersPath),
		zap.String("executions", executionsPath),
	)

	return nil
}

// UTCDayStart returns midnight UTC of the given instant's day.
func UTCDayStart(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// UTCWeekStart returns midnight UTC of the Monday of the given instant's
// week.
func UTCWeekStart(t time.Time) time.Time {
	day := UTCDayStart(t)

	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	return day.AddDate(0, 0, -(weekday - 1))
}
