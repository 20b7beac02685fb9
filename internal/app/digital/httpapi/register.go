package httpapi

import (
	"time"

	"github.com/gorilla/mux"

	"digitals.local/internal/app/digital"
	"digitals.local/internal/app/digital/events"
	"digitals.local/internal/app/shipping"
	"digitals.local/internal/platform/auth"
	"digitals.local/internal/platform/httpmiddleware"
	"digitals.local/internal/platform/ratelimit"
)

// Deps 是本包 handler 需要的全部依赖，由 cmd/api 组装。
type Deps struct {
	Links      digital.Store
	Catalog    digital.Catalog
	Authorizer *digital.Authorizer
	Settings   *digital.Settings
	Events     events.Collector
	Delivery   *shipping.DigitalDelivery
	Tokens     auth.TokenService
	Limiter    *ratelimit.Limiter

	// DownloadLimit 是每个 IP 每分钟的下载尝试次数，<=0 时使用 30。
	DownloadLimit int
	// Now 为 nil 时使用 time.Now。
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) collector() events.Collector {
	if d.Events == nil {
		return events.Discard{}
	}
	return d.Events
}

// RegisterPublicRoutes 挂载下载入口 GET /d/{secret}。
//
// 下载链接直接发给买家，所以不放在 /api/v1 下，也不需要认证；secret 本身就是凭证。
func RegisterPublicRoutes(r *mux.Router, d Deps) {
	limit := d.DownloadLimit
	if limit <= 0 {
		limit = 30
	}
	download := httpmiddleware.RateLimit(d.Limiter, "download", limit, time.Minute)(NewDownloadHandler(d))
	r.Handle("/d/{secret}", download).Methods("GET")
}

// RegisterAPIRoutes 在 /api/v1 子路由下挂载机器调用的 JSON API。
func RegisterAPIRoutes(api *mux.Router, d Deps) {
	// 履约服务：下单后签发链接、查询 digital delivery 运费
	fulfillment := api.NewRoute().Subrouter()
	fulfillment.Use(httpmiddleware.AuthRequired(d.Tokens, auth.RoleFulfillment, auth.RoleAdmin))
	fulfillment.Handle("/links", NewCreateLinkHandler(d)).Methods("POST")
	fulfillment.Handle("/shipping/digital-delivery", NewDigitalDeliveryQuoteHandler(d)).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(httpmiddleware.AuthRequired(d.Tokens, auth.RoleAdmin))
	admin.Handle("/links/{ref}", NewGetLinkHandler(d)).Methods("GET")
	admin.Handle("/links/{ref}", NewUpdateLinkHandler(d)).Methods("PATCH")
	admin.Handle("/links/{ref}/reset", NewResetLinkHandler(d)).Methods("POST")

	admin.Handle("/settings/authorization", NewGetSettingsHandler(d)).Methods("GET")
	admin.Handle("/settings/authorization", NewReplaceSettingsHandler(d)).Methods("PUT")
	admin.Handle("/settings/authorization", NewResetSettingsHandler(d)).Methods("DELETE")
}
