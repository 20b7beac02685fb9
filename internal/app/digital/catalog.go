package digital

import (
	"context"
	"errors"
)

var ErrDigitalNotFound = errors.New("digital not found")

// Digital 是可购买的数字商品（挂在某个 variant 上的附件）。
type Digital struct {
	ID          int64  `json:"id"`
	VariantID   int64  `json:"variant_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// Catalog 查询数字商品元数据。
type Catalog interface {
	Find(ctx context.Context, id int64) (Digital, error)
	DigitalVariants(ctx context.Context, variantIDs []int64) (map[int64]bool, error)
}
