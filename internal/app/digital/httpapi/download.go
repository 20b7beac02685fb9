package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"digitals.local/internal/app/digital"
	"digitals.local/internal/app/digital/events"
	"digitals.local/internal/platform/httpmiddleware"
	"digitals.local/internal/platform/metrics"
)

// DownloadResponse 是授权成功后返回给买家的附件信息。
type DownloadResponse struct {
	FileName      string    `json:"file_name"`
	ContentType   string    `json:"content_type"`
	FileSize      int64     `json:"file_size"`
	AccessCounter int       `json:"access_counter"`
	Remaining     *int      `json:"remaining"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NewDownloadHandler 处理一次下载尝试。
//
// 不存在、次数用尽、已过期统一返回 403，调用方无法区分 secret 是否存在。
func NewDownloadHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := d.now()
		ev := events.AccessEvent{
			IP:        httpmiddleware.ClientIP(r),
			UserAgent: r.UserAgent(),
			At:        now,
		}
		deny := func(reason events.Reason) {
			ev.Reason = reason
			d.collector().Collect(ev)
			metrics.Authorizations.WithLabelValues(string(reason)).Inc()
			httpmiddleware.WriteError(w, r, http.StatusForbidden, "access denied")
		}
		unavailable := func(err error) {
			metrics.Authorizations.WithLabelValues("error").Inc()
			slog.Error("download authorization failed", "request_id", r.Header.Get(httpmiddleware.RequestIDHeader), "link_id", ev.LinkID, "err", err)
			httpmiddleware.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable")
		}

		link, err := d.Links.FindBySecret(ctx, mux.Vars(r)["secret"])
		if err != nil {
			if errors.Is(err, digital.ErrNotFound) {
				deny(events.ReasonNotFound)
				return
			}
			unavailable(err)
			return
		}
		ev.LinkID, ev.DigitalID, ev.LineItemID = link.ID, link.DigitalID, link.LineItemID

		// 先确认附件存在，再消耗一次次数
		item, err := d.Catalog.Find(ctx, link.DigitalID)
		if err != nil {
			if errors.Is(err, digital.ErrDigitalNotFound) {
				deny(events.ReasonNotFound)
				return
			}
			unavailable(err)
			return
		}

		cfg := d.Settings.Current()
		granted, err := d.Authorizer.Authorize(ctx, &link, cfg, now)
		if err != nil {
			unavailable(err)
			return
		}
		if !granted {
			deny(denialReason(link, cfg, now))
			return
		}

		ev.Granted, ev.Reason = true, events.ReasonGranted
		d.collector().Collect(ev)
		metrics.Authorizations.WithLabelValues(string(events.ReasonGranted)).Inc()

		w.Header().Set("Cache-Control", "no-store")
		httpmiddleware.WriteJSON(w, http.StatusOK, DownloadResponse{
			FileName:      item.FileName,
			ContentType:   item.ContentType,
			FileSize:      item.FileSize,
			AccessCounter: link.AccessCounter,
			Remaining:     remaining(link, cfg),
			ExpiresAt:     link.CreatedAt.Add(cfg.MaxAge()),
		})
	})
}

// denialReason 在并发下可能读到仍是 active 的快照（条件更新没抢到），按用尽处理。
func denialReason(link digital.AccessLink, cfg digital.AuthorizationConfig, now time.Time) events.Reason {
	if digital.State(link, cfg, now) == digital.StateExpired {
		return events.ReasonExpired
	}
	return events.ReasonExhausted
}
