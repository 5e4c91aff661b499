package rtb_test

import (
	"context"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtb-client/internal/app/sandbox"
	"rtb-client/internal/device"
	"rtb-client/internal/sandbox/storage"
	"rtb-client/rtb"
)

type ad struct {
	ID  string `json:"id"`
	Img string `json:"img"`
}

func startSandbox(t *testing.T) (*httptest.Server, storage.ReportStore) {
	t.Helper()
	reports := storage.NewMemoryReports()
	srv := sandbox.New(storage.StaticStore{
		{ID: "b1", SlotID: "S1", SlotType: 1, ImageURL: "img-b1", Status: "ACTIVE"},
		{ID: "b2", SlotID: "S1", SlotType: 1, ImageURL: "img-b2", Status: "ACTIVE"},
		{ID: "v1", SlotID: "S2", SlotType: 2, ImageURL: "img-v1", Status: "ACTIVE"},
	}, reports, map[string]string{"A1": "K1"})
	require.NoError(t, srv.Refresh(context.Background()))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reports
}

func newSandboxClient(t *testing.T, base string, creds rtb.Credentials) *rtb.Client {
	t.Helper()
	c, err := rtb.New(creds,
		rtb.WithBaseURL(base),
		rtb.WithTimeout(2*time.Second),
		rtb.WithDevice(device.Static{IP: "10.0.0.2", MACList: []string{"AA:BB:CC:DD:EE:FF"}}),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

type result struct {
	o   rtb.Outcome
	ads []rtb.Creative
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("listener not called")
	}
	return result{}
}

func decodeIDs(t *testing.T, ads []rtb.Creative) []string {
	t.Helper()
	out := make([]string, 0, len(ads))
	for _, c := range ads {
		var a ad
		require.NoError(t, c.Decode(&a))
		out = append(out, a.ID)
	}
	sort.Strings(out)
	return out
}

func TestSandbox_RequestSlot(t *testing.T) {
	ts, _ := startSandbox(t)
	c := newSandboxClient(t, ts.URL, rtb.Credentials{AppID: "A1", AppKey: "K1", DeviceID: "D1"})

	ch := make(chan result, 1)
	require.NoError(t, c.RequestSlot(&rtb.Slot{ID: "S1", Quantity: 2, Type: rtb.SlotTypeBanner}, func(o rtb.Outcome, ads []rtb.Creative) {
		ch <- result{o, ads}
	}))
	r := await(t, ch)

	assert.Equal(t, rtb.Success, r.o)
	assert.Equal(t, []string{"b1", "b2"}, decodeIDs(t, r.ads))
}

func TestSandbox_WrongKeyIsRejected(t *testing.T) {
	ts, _ := startSandbox(t)
	c := newSandboxClient(t, ts.URL, rtb.Credentials{AppID: "A1", AppKey: "wrong", DeviceID: "D1"})

	ch := make(chan result, 1)
	require.NoError(t, c.RequestSlot(&rtb.Slot{ID: "S1", Quantity: 1, Type: rtb.SlotTypeBanner}, func(o rtb.Outcome, ads []rtb.Creative) {
		ch <- result{o, ads}
	}))
	r := await(t, ch)

	// a rejected envelope forwards the transport outcome without creatives
	assert.Equal(t, rtb.Success, r.o)
	assert.Nil(t, r.ads)
}

func TestSandbox_RequestBatch(t *testing.T) {
	ts, _ := startSandbox(t)
	c := newSandboxClient(t, ts.URL, rtb.Credentials{AppID: "A1", AppKey: "K1", DeviceID: "D1"})

	ch := make(chan result, 1)
	slots := []*rtb.Slot{
		{ID: "S1", Quantity: 1, Type: rtb.SlotTypeBanner},
		{ID: "S2", Quantity: 5, Type: rtb.SlotTypeVideo},
		{ID: "S3", Quantity: 1, Type: rtb.SlotTypeBanner},
		nil,
	}
	require.NoError(t, c.RequestBatch(slots, func(o rtb.Outcome, ads []rtb.Creative) { ch <- result{o, ads} }))
	r := await(t, ch)

	assert.Equal(t, rtb.Success, r.o)
	assert.Equal(t, []string{"b1", "v1"}, decodeIDs(t, r.ads))
}

func TestSandbox_ReportStatic(t *testing.T) {
	ts, reports := startSandbox(t)
	c := newSandboxClient(t, ts.URL, rtb.Credentials{AppID: "A1", AppKey: "K1", DeviceID: "D1"})

	done := make(chan rtb.Outcome, 2)
	cb := func(o rtb.Outcome, _ string) { done <- o }
	require.NoError(t, c.ReportStatic("S1", "b1", cb))
	require.NoError(t, c.ReportStaticAt("S1", "b1", 31.23, 121.47, cb))

	for i := 0; i < 2; i++ {
		select {
		case o := <-done:
			assert.Equal(t, rtb.Success, o)
		case <-time.After(5 * time.Second):
			t.Fatal("report callback not called")
		}
	}

	n, err := reports.Count(context.Background(), "S1", "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSandbox_ReportDynamic(t *testing.T) {
	ts, _ := startSandbox(t)
	c := newSandboxClient(t, ts.URL, rtb.Credentials{AppID: "A1", AppKey: "K1", DeviceID: "D1"})

	done := make(chan rtb.Outcome, 1)
	require.NoError(t, c.ReportDynamic(ts.URL+"/missing-tracker", func(o rtb.Outcome, _ string) { done <- o }))

	select {
	case o := <-done:
		assert.Equal(t, 404, o.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("report callback not called")
	}
}
