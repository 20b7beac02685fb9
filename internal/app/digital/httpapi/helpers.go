package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"digitals.local/internal/app/digital"
	"digitals.local/internal/platform/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// bindJSON 解析请求体，失败时写 400 并返回 false。
func bindJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain only one JSON value")
	}
	return nil
}

// writeDomainError 把领域错误映射为 HTTP 状态码。
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *digital.ValidationError
	switch {
	case errors.As(err, &verr):
		httpmiddleware.WriteJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Code:      http.StatusUnprocessableEntity,
			Message:   verr.Error(),
			Field:     verr.Field,
			Reason:    verr.Reason,
			RequestID: r.Header.Get(httpmiddleware.RequestIDHeader),
		})
	case errors.Is(err, digital.ErrNotFound), errors.Is(err, digital.ErrInvalidRef):
		httpmiddleware.WriteError(w, r, http.StatusNotFound, "access link not found")
	case errors.Is(err, digital.ErrStorage):
		httpmiddleware.WriteError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		slog.Error("unhandled digital error", "request_id", r.Header.Get(httpmiddleware.RequestIDHeader), "err", err)
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

type validationResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
}

// linkFromRef 按路径里的 {ref} 取 link，失败时已写响应。
func linkFromRef(w http.ResponseWriter, r *http.Request, store digital.Store) (digital.AccessLink, bool) {
	id, err := digital.DecodeRef(mux.Vars(r)["ref"])
	if err != nil {
		writeDomainError(w, r, err)
		return digital.AccessLink{}, false
	}
	link, err := store.FindByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return digital.AccessLink{}, false
	}
	return link, true
}

// LinkView 是管理端看到的 link，不含 secret。
type LinkView struct {
	Ref           string            `json:"ref"`
	DigitalID     int64             `json:"digital_id"`
	LineItemID    int64             `json:"line_item_id"`
	AccessCounter int               `json:"access_counter"`
	State         digital.LinkState `json:"state"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Remaining     *int              `json:"remaining"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func newLinkView(link digital.AccessLink, cfg digital.AuthorizationConfig, now time.Time) (LinkView, error) {
	ref, err := digital.EncodeRef(link.ID)
	if err != nil {
		return LinkView{}, err
	}
	return LinkView{
		Ref:           ref,
		DigitalID:     link.DigitalID,
		LineItemID:    link.LineItemID,
		AccessCounter: link.AccessCounter,
		State:         digital.State(link, cfg, now),
		ExpiresAt:     link.CreatedAt.Add(cfg.MaxAge()),
		Remaining:     remaining(link, cfg),
		CreatedAt:     link.CreatedAt,
		UpdatedAt:     link.UpdatedAt,
	}, nil
}

// remaining 为 nil 表示不限次数。
func remaining(link digital.AccessLink, cfg digital.AuthorizationConfig) *int {
	if cfg.MaxAccesses == nil {
		return nil
	}
	return digital.Clicks(max(*cfg.MaxAccesses-link.AccessCounter, 0))
}
