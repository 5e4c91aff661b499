package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"rtb-client/internal/observability"
	"rtb-client/internal/sandbox/engine"
	"rtb-client/internal/sandbox/storage"
	"rtb-client/internal/signer"
	"rtb-client/rtb"
)

// Error codes carried in rejected envelopes.
const (
	ErrCodeUnknownApp     = 4001
	ErrCodeBadSignature   = 4002
	ErrCodeBadPayload     = 4003
	ErrCodeDeviceMismatch = 4004
)

type DeliveryHandler struct {
	Eng     *engine.DeliveryEngine
	Reports storage.ReportStore
	apps    map[string]string
}

// NewDeliveryHandler builds the handler. apps maps app id to app key; ids match
// case-insensitively.
func NewDeliveryHandler(eng *engine.DeliveryEngine, reports storage.ReportStore, apps map[string]string) *DeliveryHandler {
	norm := make(map[string]string, len(apps))
	for id, key := range apps {
		norm[strings.ToLower(id)] = key
	}
	return &DeliveryHandler{Eng: eng, Reports: reports, apps: norm}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func reject(w http.ResponseWriter, code int, msg string) {
	observability.RequestErrors.WithLabelValues(msg).Inc()
	writeJSON(w, http.StatusOK, rtb.Envelope[[]engine.Creative]{
		Error: &rtb.ErrorInfo{Code: code, Message: msg},
	})
}

// Subscribe serves signed ad requests.
func (h *DeliveryHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	appID := q.Get("appid")
	payload := r.PostForm.Get(signer.PayloadField)

	key, ok := h.apps[strings.ToLower(appID)]
	if !ok {
		reject(w, ErrCodeUnknownApp, "unknown app")
		return
	}
	creds := signer.Credentials{AppID: appID, AppKey: key}
	if !signer.Verify(creds, payload, q.Get("sequence"), q.Get("timestamp"), q.Get("uuid"), q.Get("version"), q.Get("sign")) {
		reject(w, ErrCodeBadSignature, "signature mismatch")
		return
	}

	var req rtb.SlotRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		reject(w, ErrCodeBadPayload, "malformed payload")
		return
	}
	if req.DeviceID != q.Get("uuid") {
		reject(w, ErrCodeDeviceMismatch, "device mismatch")
		return
	}

	ads := h.Eng.Match(r.Context(), engine.MatchRequest{
		SlotID:   req.SlotID,
		Type:     int(req.Type),
		Quantity: req.Quantity,
	})
	if ads == nil {
		ads = []engine.Creative{}
	}
	log.Debug().Str("app_id", appID).Str("slot", req.SlotID).Int("ads", len(ads)).Msg("subscribe")
	writeJSON(w, http.StatusOK, rtb.Envelope[[]engine.Creative]{Success: true, Payload: ads})
}

// Track records a static report.
func (h *DeliveryHandler) Track(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid, aid := q.Get("sid"), q.Get("aid")
	if sid == "" || aid == "" {
		http.Error(w, "sid and aid are required", http.StatusBadRequest)
		return
	}
	if err := h.Reports.Record(r.Context(), sid, aid); err != nil {
		log.Error().Err(err).Msg("record report")
		http.Error(w, "record failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReportCount returns how many reports were recorded for a slot/ad pair.
func (h *DeliveryHandler) ReportCount(w http.ResponseWriter, r *http.Request) {
	sid, aid := chi.URLParam(r, "slotID"), chi.URLParam(r, "adID")
	n, err := h.Reports.Count(r.Context(), sid, aid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slotId": sid, "adId": aid, "count": n})
}
