package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"digitals.local/internal/app/digital"
	"digitals.local/internal/platform/httpmiddleware"
)

func NewGetSettingsHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteJSON(w, http.StatusOK, d.Settings.Current())
	})
}

// NewReplaceSettingsHandler 整体替换授权配置，之后的判定立即使用新配置。
// 两个字段都必须出现，max_accesses 为 null 表示不限次数。
func NewReplaceSettingsHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if !bindJSON(w, r, &raw) {
			return
		}
		cfg, err := parseSettings(raw)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if err := d.Settings.Replace(cfg); err != nil {
			httpmiddleware.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		current := d.Settings.Current()
		slog.Info("authorization settings replaced",
			"request_id", r.Header.Get(httpmiddleware.RequestIDHeader),
			"max_accesses", current.MaxAccesses,
			"max_age_hours", current.MaxAgeHours)
		httpmiddleware.WriteJSON(w, http.StatusOK, current)
	})
}

func NewResetSettingsHandler(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.Settings.Reset()
		slog.Info("authorization settings reset", "request_id", r.Header.Get(httpmiddleware.RequestIDHeader))
		httpmiddleware.WriteJSON(w, http.StatusOK, d.Settings.Current())
	})
}

var settingsFields = []string{"max_accesses", "max_age_hours"}

func parseSettings(raw map[string]json.RawMessage) (digital.AuthorizationConfig, error) {
	var cfg digital.AuthorizationConfig
	for _, field := range settingsFields {
		if _, ok := raw[field]; !ok {
			return cfg, &digital.ValidationError{Field: field, Reason: "is required"}
		}
	}
	for field, value := range raw {
		isNull := bytes.Equal(bytes.TrimSpace(value), jsonNull)
		switch field {
		case "max_accesses":
			if isNull {
				continue
			}
			var n int
			if err := json.Unmarshal(value, &n); err != nil {
				return cfg, &digital.ValidationError{Field: field, Reason: "must be an integer or null"}
			}
			cfg.MaxAccesses = &n
		case "max_age_hours":
			if isNull {
				return cfg, &digital.ValidationError{Field: field, Reason: "must be an integer"}
			}
			if err := json.Unmarshal(value, &cfg.MaxAgeHours); err != nil {
				return cfg, &digital.ValidationError{Field: field, Reason: "must be an integer"}
			}
		default:
			return cfg, &digital.ValidationError{Field: field, Reason: "is not a setting"}
		}
	}
	return cfg, nil
}
