package httpapi

import (
	"log/slog"
	"net/http"

	"digitals.local/internal/app/shipping"
	"digitals.local/internal/platform/httpmiddleware"
)

type QuoteRequest struct {
	VariantIDs []int64 `json:"variant_ids"`
}

type QuoteResponse struct {
	Method   string           `json:"method"`
	Eligible bool             `json:"eligible"`
	Cost     *shipping.Money  `json:"cost,omitempty"`
	Package  shipping.Package `json:"package"`
}

// NewDigitalDeliveryQuoteHandler 判断一组 variant 能否走 digital delivery，可以时给出运费。
func NewDigitalDeliveryQuoteHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req QuoteRequest
		if !bindJSON(w, r, &req) {
			return
		}
		pkg, err := shipping.ResolvePackage(r.Context(), d.Catalog, req.VariantIDs)
		if err != nil {
			slog.Error("resolve package failed", "request_id", r.Header.Get(httpmiddleware.RequestIDHeader), "err", err)
			httpmiddleware.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		resp := QuoteResponse{
			Method:   d.Delivery.Description(),
			Eligible: d.Delivery.IsEligible(pkg),
			Package:  pkg,
		}
		if resp.Eligible {
			cost := d.Delivery.ComputePackageCost(pkg)
			resp.Cost = &cost
		}
		httpmiddleware.WriteJSON(w, http.StatusOK, resp)
	})
}
