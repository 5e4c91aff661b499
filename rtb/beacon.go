package rtb

import (
	"strconv"
	"strings"

	"rtb-client/internal/device"
	"rtb-client/internal/observability"
	"rtb-client/internal/signer"
)

// hourLayout is yyyyMMddHH in local time.
const hourLayout = "2006010215"

// ReportStatic reports an ad event for slotID/adID with no location.
func (c *Client) ReportStatic(slotID, adID string, cb Callback) error {
	return c.ReportStaticAt(slotID, adID, 0, 0, cb)
}

// ReportStaticAt reports an ad event to the static tracking endpoint. The endpoint is
// unauthenticated, so the URL carries no signature. cb may be nil.
func (c *Client) ReportStaticAt(slotID, adID string, lat, lon float64, cb Callback) error {
	if err := c.ready(); err != nil {
		return err
	}
	observability.Beacons.WithLabelValues("static").Inc()
	c.transport.Post(c.staticURL(slotID, adID, lat, lon), nil, orNoop(cb))
	return nil
}

// ReportDynamic posts to a tracking URL supplied with a creative. cb may be nil.
func (c *Client) ReportDynamic(trackURL string, cb Callback) error {
	if err := c.ready(); err != nil {
		return err
	}
	observability.Beacons.WithLabelValues("dynamic").Inc()
	c.transport.Post(trackURL, nil, orNoop(cb))
	return nil
}

func (c *Client) staticURL(slotID, adID string, lat, lon float64) string {
	return signer.Query{
		{Key: "sid", Value: slotID},
		{Key: "aid", Value: adID},
		{Key: "mid", Value: ""},
		{Key: "uid", Value: c.creds.DeviceID},
		{Key: "ip", Value: c.device.LocalIP()},
		{Key: "mac", Value: device.FirstMAC(c.device)},
		{Key: "lat", Value: formatCoord(lat)},
		{Key: "lon", Value: formatCoord(lon)},
		{Key: "tt", Value: c.now().Format(hourLayout)},
	}.URL(c.baseURL + staticPath)
}

// formatCoord always keeps a fractional part, so 0 is sent as 0.0.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if strings.ContainsAny(s, ".NI") {
		return s
	}
	return s + ".0"
}

func orNoop(cb Callback) Callback {
	if cb != nil {
		return cb
	}
	return func(Outcome, string) {}
}
