package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"digitals.local/internal/platform/config"
)

// New 按配置构造 public 监听的 http.Server。
func New(cfg config.Config, handler http.Handler) *http.Server {
	return NewWithAddr(cfg, cfg.Addr, handler)
}

// NewWithAddr 与 New 相同的超时设置，用于 admin 等其他监听地址。
func NewWithAddr(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// RunWithGracefulShutdownContext 启动 srv，stopCtx 结束后在 shutdownTimeout 内优雅关闭。
func RunWithGracefulShutdownContext(stopCtx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
