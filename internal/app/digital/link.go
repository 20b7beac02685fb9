package digital

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"
)

// SecretLength 是下载链接 secret 的固定长度。
const SecretLength = 30

// secretAlphabet 与短码使用同一套 base62 字符集，URL 安全且无需转义。
const secretAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// AccessLink 是一次购买授予的、带 secret 的数字商品访问凭证。
//
// Secret 与 CreatedAt 创建后不可变；AccessCounter 只能通过授权成功(+1)或 reset(置 0) 改变。
type AccessLink struct {
	ID            int64     `json:"id"`
	DigitalID     int64     `json:"digital_id"`
	LineItemID    int64     `json:"line_item_id"`
	Secret        string    `json:"-"`
	AccessCounter int       `json:"access_counter"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LinkChanges 描述一次 update。nil 表示不修改；指向零值表示置空（会被校验拒绝）。
type LinkChanges struct {
	Secret     *string
	DigitalID  *int64
	LineItemID *int64
}

// Store 是 access link 的持久化能力。
//
// 所有写操作立即落库，不做批量，也不做重试；后端失败以 StorageError 返回。
type Store interface {
	Create(ctx context.Context, digitalID, lineItemID int64, secret string) (AccessLink, error)
	Update(ctx context.Context, link *AccessLink, changes LinkChanges) error
	FindBySecret(ctx context.Context, secret string) (AccessLink, error)
	FindByID(ctx context.Context, id int64) (AccessLink, error)
	Increment(ctx context.Context, link *AccessLink) error
	Reset(ctx context.Context, link *AccessLink) error
}

// GuardedIncrementer 由能在计数写入时同时检查上限的存储实现；上限已不满足时 ok 为 false。
type GuardedIncrementer interface {
	GuardedIncrement(ctx context.Context, link *AccessLink, maxAccesses *int, createdAfter time.Time) (ok bool, err error)
}

// GenerateSecret 生成 30 位 base62 随机串。
//
// 使用拒绝采样去掉取模偏差：256 以内只接受 < 248 (62*4) 的字节。
func GenerateSecret() (string, error) {
	const limit = 256 - 256%len(secretAlphabet)
	out := make([]byte, 0, SecretLength)
	buf := make([]byte, SecretLength*2)
	for len(out) < SecretLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == SecretLength {
				break
			}
		}
	}
	return string(out), nil
}

// ApplyChanges 返回应用 changes 后的副本，并做完整校验；原 link 不会被修改。
func ApplyChanges(link AccessLink, changes LinkChanges) (AccessLink, error) {
	next := link
	if changes.Secret != nil {
		next.Secret = *changes.Secret
	}
	if changes.DigitalID != nil {
		next.DigitalID = *changes.DigitalID
	}
	if changes.LineItemID != nil {
		next.LineItemID = *changes.LineItemID
	}
	if err := ValidateLink(next); err != nil {
		return link, err
	}
	if next.Secret != link.Secret {
		return link, invalid("secret", "can't be changed")
	}
	return next, nil
}
