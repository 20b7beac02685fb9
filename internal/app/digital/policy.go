package digital

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LinkState 是 access link 在某一时刻的状态，按需计算，不落库。
type LinkState string

const (
	StateActive    LinkState = "active"
	StateExhausted LinkState = "exhausted"
	StateExpired   LinkState = "expired"
)

// Authorizable 判断 link 在 now 时刻是否可用。纯函数，无副作用。
//
// 次数上限是开区间（counter < max），年龄上限是闭区间（age <= max age）。
func Authorizable(link AccessLink, cfg AuthorizationConfig, now time.Time) bool {
	return withinClicks(link, cfg) && withinAge(link, cfg, now)
}

func withinClicks(link AccessLink, cfg AuthorizationConfig) bool {
	return cfg.MaxAccesses == nil || link.AccessCounter < *cfg.MaxAccesses
}

func withinAge(link AccessLink, cfg AuthorizationConfig, now time.Time) bool {
	return now.Sub(link.CreatedAt) <= cfg.MaxAge()
}

// State 返回 link 的当前状态；同时过期且用尽时视为 expired（不可恢复优先）。
func State(link AccessLink, cfg AuthorizationConfig, now time.Time) LinkState {
	switch {
	case !withinAge(link, cfg, now):
		return StateExpired
	case !withinClicks(link, cfg):
		return StateExhausted
	default:
		return StateActive
	}
}

// Authorizer 执行授权判定并记录使用次数。
type Authorizer struct {
	store Store
}

func NewAuthorizer(store Store) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize 判定通过时计数 +1 并返回 true；不通过返回 false 且不做任何修改。
// 返回 error 只表示无法完成判定（存储故障），拒绝访问不是 error。
func (a *Authorizer) Authorize(ctx context.Context, link *AccessLink, cfg AuthorizationConfig, now time.Time) (bool, error) {
	ctx, span := otel.Tracer("digitals/authorize").Start(ctx, "digital.Authorize")
	defer span.End()
	span.SetAttributes(attribute.Int64("link.id", link.ID), attribute.Int("link.access_counter", link.AccessCounter))

	if !Authorizable(*link, cfg, now) {
		span.SetAttributes(attribute.String("link.state", string(State(*link, cfg, now))))
		return false, nil
	}

	if g, ok := a.store.(GuardedIncrementer); ok {
		granted, err := g.GuardedIncrement(ctx, link, cfg.MaxAccesses, now.Add(-cfg.MaxAge()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return false, err
		}
		return granted, nil
	}

	if err := a.store.Increment(ctx, link); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return true, nil
}

// Reset 把计数清零，让已用尽（未过期）的 link 重新可用。
func (a *Authorizer) Reset(ctx context.Context, link *AccessLink) error {
	return a.store.Reset(ctx, link)
}
