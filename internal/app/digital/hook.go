package digital

import "context"

// CreateHook 在 access link 创建并落库之后被调用，是唯一的创建后扩展点。
type CreateHook interface {
	AfterCreate(ctx context.Context, link AccessLink) error
}

// DRMMark 是默认的创建后钩子：为 DRM 标记预留位置，目前不做任何处理。
type DRMMark struct{}

func (DRMMark) AfterCreate(context.Context, AccessLink) error { return nil }
