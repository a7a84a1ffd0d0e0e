package event

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"engage-ledger/pkg/db/pagination"
	"engage-ledger/pkg/errutil"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const logColumns = `id, org_id, project_id, campaign_id, chain_id, signer_address, user_id,
	old_submissions, old_accepted, old_coupon_serial, old_coupon_url,
	new_submissions, new_accepted, new_coupon_serial, new_coupon_url, created_at`

// LogReader reads the engage_event table through sqlx on the shared pool.
type LogReader struct {
	db *sqlx.DB
}

// driverName maps a gorm dialector to the sqlx bind style it needs.
func driverName(dialector string) string {
	switch dialector {
	case "sqlite":
		return "sqlite3"
	default:
		return dialector
	}
}

func NewLogReader(db *gorm.DB) (*LogReader, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &LogReader{db: sqlx.NewDb(sqlDB, driverName(db.Dialector.Name()))}, nil
}

// List returns classified events, oldest first unless `_s=-created_at`.
// Rows that classify as unknown are skipped, so a page can hold fewer
// events than the limit.
func (r *LogReader) List(ctx context.Context, params pagination.ListParams, filter string) ([]Event, error) {
	params = params.Normalize()

	sort, err := pagination.ParseOrder(params.Order, "created_at")
	if err != nil {
		return nil, err
	}
	direction := "ASC"
	if strings.EqualFold(sort.OrderBy, "desc") {
		direction = "DESC"
	}

	cond, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT " + logColumns + " FROM engage_event")
	args := cond.Params
	if cond.Clause != "" {
		b.WriteString(" WHERE " + cond.Clause)
	}
	b.WriteString(" ORDER BY created_at " + direction + ", id " + direction + " LIMIT ? OFFSET ?")
	args = append(args, params.Limit, params.Offset)

	var rows []Log
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(b.String()), args...); err != nil {
		zap.L().Error("failed to list engage events", zap.Error(err))
		return nil, errutil.Internal("failed to list events", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev, err := Classify(row)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Get loads one log row by id.
func (r *LogReader) Get(ctx context.Context, id int64) (Log, error) {
	var row Log
	err := r.db.GetContext(ctx, &row, r.db.Rebind("SELECT "+logColumns+" FROM engage_event WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Log{}, errutil.NotFound("event not found", err)
	}
	if err != nil {
		return Log{}, errutil.Internal("failed to load event", err)
	}
	return row, nil
}
