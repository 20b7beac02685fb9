package repo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"digitals.local/internal/app/digital"
	"digitals.local/internal/app/digital/cache"
	"digitals.local/internal/platform/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 生成的 secret 撞库后最多重试的次数。
const maxSecretAttempts = 5

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

const linkColumns = "id, digital_id, line_item_id, secret, access_counter, created_at, updated_at"

// LinksRepo 是基于 PostgreSQL 的 digital.Store 实现。
type LinksRepo struct {
	db      *pgxpool.Pool
	cache   *cache.SecretCache
	bloom   *cache.BloomFilter
	hook    digital.CreateHook
	timeout time.Duration
}

// NewLinksRepo cache、bloom 可为 nil；hook 为 nil 时使用 digital.DRMMark。
// timeout 是每次数据库调用的上限，调用方 ctx 的 deadline 更短时以调用方为准。
func NewLinksRepo(db *pgxpool.Pool, secretCache *cache.SecretCache, bloom *cache.BloomFilter, hook digital.CreateHook, timeout time.Duration) *LinksRepo {
	if hook == nil {
		hook = digital.DRMMark{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &LinksRepo{
		db:      db,
		cache:   secretCache,
		bloom:   bloom,
		hook:    hook,
		timeout: timeout,
	}
}

func scanLink(row pgx.Row, link *digital.AccessLink) error {
	return row.Scan(&link.ID, &link.DigitalID, &link.LineItemID, &link.Secret, &link.AccessCounter, &link.CreatedAt, &link.UpdatedAt)
}

func storageErr(op string, err error) error {
	slog.Error("digital links storage failure", "op", op, "err", err)
	return &digital.StorageError{Op: op, Err: err}
}

func (s *LinksRepo) digitalExists(ctx context.Context, digitalID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM digitals WHERE id=$1)", digitalID).Scan(&exists)
	return exists, err
}

// Create 签发新的 access link。secret 为空时自动生成，撞到唯一索引则换一个重试。
func (s *LinksRepo) Create(ctx context.Context, digitalID, lineItemID int64, secret string) (digital.AccessLink, error) {
	generated := secret == ""
	if generated {
		var err error
		if secret, err = digital.GenerateSecret(); err != nil {
			return digital.AccessLink{}, err
		}
	}
	if err := digital.ValidateLink(digital.AccessLink{DigitalID: digitalID, LineItemID: lineItemID, Secret: secret}); err != nil {
		return digital.AccessLink{}, err
	}

	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.digitalExists(dbctx, digitalID)
	if err != nil {
		return digital.AccessLink{}, storageErr("create", err)
	}
	if !exists {
		return digital.AccessLink{}, &digital.ValidationError{Field: "digital_id", Reason: "must exist"}
	}

	var link digital.AccessLink
	for attempt := 1; ; attempt++ {
		err = scanLink(s.db.QueryRow(dbctx,
			"INSERT INTO digital_links (digital_id, line_item_id, secret) VALUES ($1,$2,$3) RETURNING "+linkColumns,
			digitalID, lineItemID, secret), &link)
		if err == nil {
			break
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgUniqueViolation && strings.Contains(pgErr.ConstraintName, "secret"):
				if !generated {
					return digital.AccessLink{}, &digital.ValidationError{Field: "secret", Reason: "has already been taken"}
				}
				if attempt >= maxSecretAttempts {
					return digital.AccessLink{}, storageErr("create", errSecretExhausted)
				}
				slog.Warn("digital link secret collision, regenerating", "attempt", attempt)
				if secret, err = digital.GenerateSecret(); err != nil {
					return digital.AccessLink{}, err
				}
				continue
			case pgErr.Code == pgForeignKeyViolation:
				// digital 在 EXISTS 检查之后被删除
				return digital.AccessLink{}, &digital.ValidationError{Field: "digital_id", Reason: "must exist"}
			}
		}
		return digital.AccessLink{}, storageErr("create", err)
	}

	metrics.LinksCreated.Inc()
	if s.bloom != nil {
		s.bloom.Add(link.Secret)
	}
	if s.cache != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if err := s.cache.Forget(cacheCtx, link.Secret); err != nil {
			slog.Warn("forget negative cache failed", "link_id", link.ID, "err", err)
		}
	}
	if err := s.hook.AfterCreate(ctx, link); err != nil {
		slog.Error("digital link after-create hook failed", "link_id", link.ID, "err", err)
	}
	return link, nil
}

// Update 应用 changes；校验失败或写库失败时 link 保持原样。
func (s *LinksRepo) Update(ctx context.Context, link *digital.AccessLink, changes digital.LinkChanges) error {
	next, err := digital.ApplyChanges(*link, changes)
	if err != nil {
		return err
	}

	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if next.DigitalID != link.DigitalID {
		exists, err := s.digitalExists(dbctx, next.DigitalID)
		if err != nil {
			return storageErr("update", err)
		}
		if !exists {
			return &digital.ValidationError{Field: "digital_id", Reason: "must exist"}
		}
	}

	err = s.db.QueryRow(dbctx,
		"UPDATE digital_links SET digital_id=$2, line_item_id=$3, updated_at=now() WHERE id=$1 RETURNING updated_at",
		link.ID, next.DigitalID, next.LineItemID).Scan(&next.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digital.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == pgForeignKeyViolation || pgErr.Code == pgCheckViolation) {
			return &digital.ValidationError{Field: pgErr.ColumnName, Reason: "violates " + pgErr.ConstraintName}
		}
		return storageErr("update", err)
	}
	*link = next
	return nil
}

// FindBySecret 依次经过 bloom 过滤器、负缓存，最后查库。
func (s *LinksRepo) FindBySecret(ctx context.Context, secret string) (digital.AccessLink, error) {
	if digital.ValidateSecret(secret) != nil {
		return digital.AccessLink{}, digital.ErrNotFound
	}
	if s.bloom != nil && !s.bloom.MightExist(secret) {
		metrics.CacheOperations.WithLabelValues("bloom", "reject").Inc()
		return digital.AccessLink{}, digital.ErrNotFound
	}
	if s.cache != nil {
		missing, err := s.cache.IsMissing(ctx, secret)
		if err != nil {
			slog.Warn("negative cache lookup failed", "err", err)
		}
		if missing {
			return digital.AccessLink{}, digital.ErrNotFound
		}
	}

	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var link digital.AccessLink
	if err := scanLink(s.db.QueryRow(dbctx, "SELECT "+linkColumns+" FROM digital_links WHERE secret=$1", secret), &link); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if s.cache != nil {
				_ = s.cache.SetMissing(ctx, secret)
			}
			return digital.AccessLink{}, digital.ErrNotFound
		}
		return digital.AccessLink{}, storageErr("find_by_secret", err)
	}
	return link, nil
}

func (s *LinksRepo) FindByID(ctx context.Context, id int64) (digital.AccessLink, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var link digital.AccessLink
	if err := scanLink(s.db.QueryRow(dbctx, "SELECT "+linkColumns+" FROM digital_links WHERE id=$1", id), &link); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digital.AccessLink{}, digital.ErrNotFound
		}
		return digital.AccessLink{}, storageErr("find_by_id", err)
	}
	return link, nil
}

// Increment 在数据库里原子 +1，不做“读-改-写”，并发请求不会丢失计数。
func (s *LinksRepo) Increment(ctx context.Context, link *digital.AccessLink) error {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.QueryRow(dbctx,
		"UPDATE digital_links SET access_counter = access_counter + 1, updated_at=now() WHERE id=$1 RETURNING access_counter, updated_at",
		link.ID).Scan(&link.AccessCounter, &link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digital.ErrNotFound
		}
		return storageErr("increment", err)
	}
	return nil
}

// GuardedIncrement 只有在次数与年龄上限仍然满足时才 +1，条件与写入在同一条 UPDATE 里完成。
func (s *LinksRepo) GuardedIncrement(ctx context.Context, link *digital.AccessLink, maxAccesses *int, createdAfter time.Time) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.QueryRow(dbctx, `
UPDATE digital_links
   SET access_counter = access_counter + 1, updated_at = now()
 WHERE id = $1
   AND ($2::bigint IS NULL OR access_counter < $2::bigint)
   AND created_at >= $3
RETURNING access_counter, updated_at`,
		link.ID, maxAccesses, createdAfter).Scan(&link.AccessCounter, &link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, storageErr("guarded_increment", err)
	}
	return true, nil
}

func (s *LinksRepo) Reset(ctx context.Context, link *digital.AccessLink) error {
	dbctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.QueryRow(dbctx,
		"UPDATE digital_links SET access_counter = 0, updated_at=now() WHERE id=$1 RETURNING access_counter, updated_at",
		link.ID).Scan(&link.AccessCounter, &link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return digital.ErrNotFound
		}
		return storageErr("reset", err)
	}
	return nil
}

// WarmBloom 启动时把已有 secret 全部装入 bloom 过滤器。
func (s *LinksRepo) WarmBloom(ctx context.Context) (int, error) {
	if s.bloom == nil {
		return 0, nil
	}
	rows, err := s.db.Query(ctx, "SELECT secret FROM digital_links")
	if err != nil {
		return 0, storageErr("warm_bloom", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var secret string
		if err := rows.Scan(&secret); err != nil {
			return n, storageErr("warm_bloom", err)
		}
		s.bloom.Add(secret)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, storageErr("warm_bloom", err)
	}
	return n, nil
}
