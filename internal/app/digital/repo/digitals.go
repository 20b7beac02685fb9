package repo

import (
	"context"
	"errors"
	"time"

	"digitals.local/internal/app/digital"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DigitalsRepo 只读访问 digitals 表（商品附件的元数据），附件本身不在本服务内。
type DigitalsRepo struct {
	db *pgxpool.Pool
}

func NewDigitalsRepo(db *pgxpool.Pool) *DigitalsRepo {
	return &DigitalsRepo{db: db}
}

func (r *DigitalsRepo) Find(ctx context.Context, id int64) (digital.Digital, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var d digital.Digital
	err := r.db.QueryRow(dbctx,
		"SELECT id, variant_id, attachment_file_name, attachment_content_type, attachment_file_size FROM digitals WHERE id=$1", id).
		Scan(&d.ID, &d.VariantID, &d.FileName, &d.ContentType, &d.FileSize)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digital.Digital{}, digital.ErrDigitalNotFound
		}
		return digital.Digital{}, storageErr("find_digital", err)
	}
	return d, nil
}

// DigitalVariants 返回 variantIDs 中挂有 digital 的那些 variant。
func (r *DigitalsRepo) DigitalVariants(ctx context.Context, variantIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx, "SELECT DISTINCT variant_id FROM digitals WHERE variant_id = ANY($1)", variantIDs)
	if err != nil {
		return nil, storageErr("digital_variants", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("digital_variants", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("digital_variants", err)
	}
	return out, nil
}
