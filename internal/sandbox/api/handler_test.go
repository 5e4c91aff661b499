package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtb-client/internal/sandbox/engine"
	"rtb-client/internal/sandbox/storage"
	"rtb-client/internal/signer"
	"rtb-client/rtb"
)

func newTestHandler(t *testing.T) *DeliveryHandler {
	t.Helper()
	eng := engine.NewEngine()
	require.NoError(t, eng.BuildSnapshot(context.Background(), storage.StaticStore{
		{ID: "ad1", SlotID: "S1", SlotType: 1, ImageURL: "img1", Status: "ACTIVE"},
		{ID: "ad2", SlotID: "S1", SlotType: 1, ImageURL: "img2", Status: "ACTIVE"},
	}))
	return NewDeliveryHandler(eng, storage.NewMemoryReports(), map[string]string{"A1": "K1"})
}

func signedRequest(t *testing.T, creds signer.Credentials, deviceID string, slot rtb.SlotRequest) *http.Request {
	t.Helper()
	payload, err := json.Marshal(slot)
	require.NoError(t, err)
	sr := signer.NewRequest("/rtb/subscribe.shtml", creds, string(payload), 1700000000000, deviceID, "1.3")

	form := url.Values{}
	for k, v := range sr.Form {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, sr.URL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) rtb.Envelope[[]engine.Creative] {
	t.Helper()
	var env rtb.Envelope[[]engine.Creative]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSubscribe_Scenarios(t *testing.T) {
	good := signer.Credentials{AppID: "A1", AppKey: "K1"}
	slot := rtb.SlotRequest{IP: "10.0.0.2", Quantity: 1, SlotID: "S1", Type: rtb.SlotTypeBanner, DeviceID: "D1"}

	tests := []struct {
		name     string
		req      *http.Request
		wantOK   bool
		wantCode int
		wantIDs  []string
	}{
		{"matching slot", signedRequest(t, good, "D1", slot), true, 0, []string{"ad1"}},
		{"app id is case insensitive", signedRequest(t, signer.Credentials{AppID: "a1", AppKey: "K1"}, "D1", slot), true, 0, []string{"ad1"}},
		{"unknown app", signedRequest(t, signer.Credentials{AppID: "A9", AppKey: "K1"}, "D1", slot), false, ErrCodeUnknownApp, nil},
		{"wrong key", signedRequest(t, signer.Credentials{AppID: "A1", AppKey: "nope"}, "D1", slot), false, ErrCodeBadSignature, nil},
		{"device mismatch", signedRequest(t, good, "D2", slot), false, ErrCodeDeviceMismatch, nil},
		{
			name:    "unknown slot returns empty payload",
			req:     signedRequest(t, good, "D1", rtb.SlotRequest{Quantity: 3, SlotID: "S9", Type: rtb.SlotTypeBanner, DeviceID: "D1"}),
			wantOK:  true,
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			w := httptest.NewRecorder()
			Router(h).ServeHTTP(w, tt.req)

			require.Equal(t, http.StatusOK, w.Code)
			env := decodeEnvelope(t, w)
			assert.Equal(t, tt.wantOK, env.Success)
			if !tt.wantOK {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
				return
			}
			got := make([]string, len(env.Payload))
			for i, c := range env.Payload {
				got[i] = c.ID
			}
			assert.Equal(t, tt.wantIDs, got)
		})
	}
}

func TestSubscribe_TamperedPayload(t *testing.T) {
	h := newTestHandler(t)
	creds := signer.Credentials{AppID: "A1", AppKey: "K1"}
	sr := signer.NewRequest("/rtb/subscribe.shtml", creds, `{"pxbSlotId":"S1","quantity":1,"unicode":"D1"}`, 1, "D1", "1.3")

	form := url.Values{signer.PayloadField: {`{"pxbSlotId":"S1","quantity":9,"unicode":"D1"}`}}
	req := httptest.NewRequest(http.MethodPost, sr.URL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	Router(h).ServeHTTP(w, req)

	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, ErrCodeBadSignature, env.Error.Code)
}

func TestTrackAndReportCount(t *testing.T) {
	h := newTestHandler(t)
	ts := httptest.NewServer(Router(h))
	defer ts.Close()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req, err := http.NewRequest(method, ts.URL+"/t.shtm?sid=S1&aid=ad1&mid=&uid=D1&ip=&mac=&lat=0.0&lon=0.0&tt=2023111422", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/t.shtm?sid=S1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/reports/S1/ad1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(2), body.Count)
}

func TestRouter_Health(t *testing.T) {
	w := httptest.NewRecorder()
	Router(newTestHandler(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
