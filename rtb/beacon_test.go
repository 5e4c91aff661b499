package rtb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtb-client/internal/device"
)

func TestReportStatic_URL(t *testing.T) {
	tests := []struct {
		name     string
		device   device.Static
		lat, lon float64
		want     string
	}{
		{
			name:   "defaults",
			device: device.Static{IP: "10.0.0.2", MACList: []string{"AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66"}},
			want:   "http://example.test/t.shtm?sid=S1&aid=AD1&mid=&uid=D1&ip=10.0.0.2&mac=AA%3ABB%3ACC%3ADD%3AEE%3AFF&lat=0.0&lon=0.0&tt=2023111422",
		},
		{
			name:   "missing device facts degrade to empty",
			device: device.Static{},
			lat:    31.2304,
			lon:    121,
			want:   "http://example.test/t.shtm?sid=S1&aid=AD1&mid=&uid=D1&ip=&mac=&lat=31.2304&lon=121.0&tt=2023111422",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{respond: replyAlways(Success, "ok")}
			c := newTestClient(t, ft, WithDevice(tt.device))

			done := make(chan Outcome, 1)
			require.NoError(t, c.ReportStaticAt("S1", "AD1", tt.lat, tt.lon, func(o Outcome, body string) {
				assert.Equal(t, "ok", body)
				done <- o
			}))
			select {
			case o := <-done:
				assert.Equal(t, Success, o)
			case <-time.After(time.Second):
				t.Fatal("callback not called")
			}

			calls := ft.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].url)
			assert.Nil(t, calls[0].form)
		})
	}
}

func TestReportStatic_ZeroCoordinates(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(t, ft)
	require.NoError(t, c.ReportStatic("S1", "AD1", nil))
	require.Len(t, ft.Calls(), 1)
	assert.Contains(t, ft.Calls()[0].url, "&lat=0.0&lon=0.0&")
}

func TestReportDynamic_ForwardsRawOutcome(t *testing.T) {
	notFound := Outcome{Code: 404, Text: "Not Found"}
	ft := &fakeTransport{respond: replyAlways(notFound, "missing")}
	c := newTestClient(t, ft)

	done := make(chan Outcome, 1)
	require.NoError(t, c.ReportDynamic("http://tracker.test/click?id=9", func(o Outcome, _ string) { done <- o }))

	select {
	case o := <-done:
		assert.Equal(t, notFound, o)
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}
	require.Len(t, ft.Calls(), 1)
	assert.Equal(t, "http://tracker.test/click?id=9", ft.Calls()[0].url)
}

func TestReportDynamic_NilCallback(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(t, ft)
	require.NoError(t, c.ReportDynamic("http://tracker.test/imp", nil))
	assert.Len(t, ft.Calls(), 1)
}

func TestFormatCoord(t *testing.T) {
	tests := map[float64]string{
		0:       "0.0",
		-12:     "-12.0",
		1.5:     "1.5",
		121.473: "121.473",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatCoord(in))
	}
}
