package digital

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

const (
	DefaultAuthorizedClicks = 3
	DefaultAuthorizedDays   = 2

	// MaxAuthorizedClicks 与 digital_links.access_counter 的 INTEGER 列一致。
	MaxAuthorizedClicks = math.MaxInt32

	// MaxAgeHoursLimit 是 time.Duration 能表示的最大小时数，约 292 年。
	MaxAgeHoursLimit = int(math.MaxInt64 / int64(time.Hour))

	MaxAuthorizedDays = MaxAgeHoursLimit / 24
)

// AuthorizationConfig 是授权判定所需的全部配置。
//
// MaxAccesses 为 nil 表示不限次数。
type AuthorizationConfig struct {
	MaxAccesses *int `json:"max_accesses"`
	MaxAgeHours int  `json:"max_age_hours"`
}

// DefaultAuthorizationConfig 对应 authorized_clicks=3、authorized_days=2。
func DefaultAuthorizationConfig() AuthorizationConfig {
	return NewAuthorizationConfig(Clicks(DefaultAuthorizedClicks), DefaultAuthorizedDays)
}

// NewAuthorizationConfig 从 authorized_clicks / authorized_days 构造配置。
func NewAuthorizationConfig(authorizedClicks *int, authorizedDays int) AuthorizationConfig {
	return AuthorizationConfig{
		MaxAccesses: authorizedClicks,
		MaxAgeHours: authorizedDays * 24,
	}
}

// Clicks 返回 n 的指针，方便构造 MaxAccesses。
func Clicks(n int) *int { return &n }

// MaxAge 超出 time.Duration 范围时饱和到 math.MaxInt64，不会溢出成负数。
func (c AuthorizationConfig) MaxAge() time.Duration {
	if c.MaxAgeHours > MaxAgeHoursLimit {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(c.MaxAgeHours) * time.Hour
}

func (c AuthorizationConfig) Validate() error {
	if c.MaxAccesses != nil && *c.MaxAccesses < 0 {
		return errors.New("max_accesses must be >= 0")
	}
	if c.MaxAccesses != nil && *c.MaxAccesses > MaxAuthorizedClicks {
		return errors.New("max_accesses must be <= 2147483647")
	}
	if c.MaxAgeHours < 0 {
		return errors.New("max_age_hours must be >= 0")
	}
	if c.MaxAgeHours > MaxAgeHoursLimit {
		return errors.New("max_age_hours must be <= 2562047")
	}
	return nil
}

// Settings 持有进程内共享、可热更新的授权配置。
//
// 读多写少：每次判定前调用 Current() 取一份快照，两次判定之间配置可能已被替换。
type Settings struct {
	defaults AuthorizationConfig
	current  atomic.Pointer[AuthorizationConfig]
}

func NewSettings(defaults AuthorizationConfig) *Settings {
	s := &Settings{defaults: clone(defaults)}
	s.Reset()
	return s
}

func (s *Settings) Current() AuthorizationConfig {
	return clone(*s.current.Load())
}

func (s *Settings) Replace(cfg AuthorizationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := clone(cfg)
	s.current.Store(&c)
	return nil
}

// Reset 恢复到启动时的默认配置。
func (s *Settings) Reset() {
	c := clone(s.defaults)
	s.current.Store(&c)
}

func clone(cfg AuthorizationConfig) AuthorizationConfig {
	if cfg.MaxAccesses != nil {
		cfg.MaxAccesses = Clicks(*cfg.MaxAccesses)
	}
	return cfg
}
