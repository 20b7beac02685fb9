package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"digitals.local/internal/app/digital"
	"digitals.local/internal/platform/auth"
	"digitals.local/internal/platform/httpmiddleware"
)

type CreateLinkRequest struct {
	DigitalID  int64  `json:"digital_id"`
	LineItemID int64  `json:"line_item_id"`
	Secret     string `json:"secret,omitempty"`
}

// CreateLinkResponse 是唯一一次返回 secret 的地方。
type CreateLinkResponse struct {
	Ref          string    `json:"ref"`
	Secret       string    `json:"secret"`
	DownloadPath string    `json:"download_path"`
	DigitalID    int64     `json:"digital_id"`
	LineItemID   int64     `json:"line_item_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewCreateLinkHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreateLinkRequest
		if !bindJSON(w, r, &req) {
			return
		}
		link, err := d.Links.Create(r.Context(), req.DigitalID, req.LineItemID, req.Secret)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		ref, err := digital.EncodeRef(link.ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		caller, _ := auth.GetIdentity(r.Context())
		slog.Info("access link created",
			"request_id", r.Header.Get(httpmiddleware.RequestIDHeader),
			"link_id", link.ID,
			"digital_id", link.DigitalID,
			"line_item_id", link.LineItemID,
			"caller", caller.Subject)

		httpmiddleware.WriteJSON(w, http.StatusCreated, CreateLinkResponse{
			Ref:          ref,
			Secret:       link.Secret,
			DownloadPath: "/d/" + link.Secret,
			DigitalID:    link.DigitalID,
			LineItemID:   link.LineItemID,
			CreatedAt:    link.CreatedAt,
		})
	})
}

func NewGetLinkHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		link, ok := linkFromRef(w, r, d.Links)
		if !ok {
			return
		}
		writeLinkView(w, r, d, link)
	})
}

// NewUpdateLinkHandler 处理 PATCH。字段缺省表示不修改，显式 null 表示置空（会被校验拒绝）。
func NewUpdateLinkHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		link, ok := linkFromRef(w, r, d.Links)
		if !ok {
			return
		}

		var raw map[string]json.RawMessage
		if err := decodeJSON(w, r, &raw); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusBadRequest, "invalid json")
			return
		}
		changes, err := parseLinkChanges(raw)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := d.Links.Update(r.Context(), &link, changes); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeLinkView(w, r, d, link)
	})
}

func NewResetLinkHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		link, ok := linkFromRef(w, r, d.Links)
		if !ok {
			return
		}
		if err := d.Authorizer.Reset(r.Context(), &link); err != nil {
			writeDomainError(w, r, err)
			return
		}
		slog.Info("access link reset", "request_id", r.Header.Get(httpmiddleware.RequestIDHeader), "link_id", link.ID)
		writeLinkView(w, r, d, link)
	})
}

func writeLinkView(w http.ResponseWriter, r *http.Request, d Deps, link digital.AccessLink) {
	view, err := newLinkView(link, d.Settings.Current(), d.now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpmiddleware.WriteJSON(w, http.StatusOK, view)
}

var jsonNull = []byte("null")

func parseLinkChanges(raw map[string]json.RawMessage) (digital.LinkChanges, error) {
	var changes digital.LinkChanges
	for field, value := range raw {
		isNull := bytes.Equal(bytes.TrimSpace(value), jsonNull)
		switch field {
		case "secret":
			s := ""
			if !isNull {
				if err := json.Unmarshal(value, &s); err != nil {
					return changes, &digital.ValidationError{Field: field, Reason: "must be a string"}
				}
			}
			changes.Secret = &s
		case "digital_id", "line_item_id":
			var id int64
			if !isNull {
				if err := json.Unmarshal(value, &id); err != nil {
					return changes, &digital.ValidationError{Field: field, Reason: "must be an integer"}
				}
			}
			if field == "digital_id" {
				changes.DigitalID = &id
			} else {
				changes.LineItemID = &id
			}
		case "access_counter":
			return changes, &digital.ValidationError{Field: field, Reason: "can only be changed by authorization or reset"}
		default:
			return changes, &digital.ValidationError{Field: field, Reason: "is not updatable"}
		}
	}
	return changes, nil
}
