package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"digitals.local/internal/app/digital"
)

// DRMRecords 是写 drm_records 的创建后钩子：只登记 link，不做任何水印处理。
type DRMRecords struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewDRMRecords(db *pgxpool.Pool, timeout time.Duration) *DRMRecords {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DRMRecords{db: db, timeout: timeout}
}

func (d *DRMRecords) AfterCreate(ctx context.Context, link digital.AccessLink) error {
	dbctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if _, err := d.db.Exec(dbctx, "INSERT INTO drm_records (digital_link_id) VALUES ($1)", link.ID); err != nil {
		return &digital.StorageError{Op: "drm_record", Err: err}
	}
	return nil
}
