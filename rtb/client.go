// Package rtb requests ad creatives from the RTB endpoint and reports ad events back to it.
//
// A Client is built once with the app credentials and shared by every caller. Requests
// never block the calling goroutine: results arrive on a listener, invoked exactly once
// per request (or once per batch) from a background goroutine.
package rtb

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"rtb-client/internal/codec"
	"rtb-client/internal/config"
	"rtb-client/internal/device"
	"rtb-client/internal/observability"
	"rtb-client/internal/signer"
	"rtb-client/internal/transport"
	"rtb-client/internal/worker"
)

const (
	adPath     = "rtb/subscribe.shtml"
	staticPath = "t.shtm"

	DefaultTimeout = 5 * time.Second
	DefaultWorkers = 8
)

type Client struct {
	creds     Credentials
	baseURL   string
	version   string
	timeout   time.Duration
	workers   int
	transport transport.Transport
	device    device.Info
	codec     codec.Codec
	pool      *worker.Pool
	now       func() time.Time
}

type Option func(*Client)

// WithBaseURL points the client at another endpoint root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		c.baseURL = base
	}
}

func WithVersion(v string) Option { return func(c *Client) { c.version = v } }

// WithTimeout sets the per-request deadline. Batches use it as their collection deadline.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

func WithWorkers(n int) Option { return func(c *Client) { c.workers = n } }

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option { return func(c *Client) { c.transport = t } }

func WithDevice(d device.Info) Option { return func(c *Client) { c.device = d } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// New validates creds and builds a Client. A *ConfigError is returned for any empty field.
func New(creds Credentials, opts ...Option) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		creds:   creds,
		baseURL: config.DefaultBaseURL,
		version: config.DefaultVersion,
		timeout: DefaultTimeout,
		workers: DefaultWorkers,
		device:  device.System{},
		codec:   codec.JSON(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = worker.New(c.workers)
	if c.transport == nil {
		c.transport = transport.NewHTTP(c.pool, c.timeout)
	}
	log.Debug().Str("app_id", creds.AppID).Str("base_url", c.baseURL).Msg("rtb client initialized")
	return c, nil
}

// Close waits for all scheduled work, including listener calls, to finish.
func (c *Client) Close() {
	if c != nil && c.pool != nil {
		c.pool.Wait()
	}
}

func (c *Client) ready() error {
	if c == nil {
		return &ConfigError{Field: "Client"}
	}
	return c.creds.Validate()
}

// RequestSlot asks for creatives for one slot. A nil slot yields FailedUnlinkSlot on cb
// without contacting the server. Only a *ConfigError or ErrNilListener is returned.
func (c *Client) RequestSlot(slot *Slot, cb AdListener) error {
	if err := c.ready(); err != nil {
		return err
	}
	if cb == nil {
		log.Error().Msg("RequestSlot called with nil listener")
		return ErrNilListener
	}
	c.requestSlot(slot, cb)
	return nil
}

func (c *Client) requestSlot(slot *Slot, cb AdListener) {
	if slot == nil {
		c.pool.Submit(func() { cb(FailedUnlinkSlot, nil) })
		return
	}
	if err := slot.Validate(); err != nil {
		o := InvalidSlot.With(err.Error())
		c.pool.Submit(func() { cb(o, nil) })
		return
	}

	payload, err := c.codec.Marshal(SlotRequest{
		IP:       c.device.LocalIP(),
		Quantity: slot.Quantity,
		SlotID:   slot.ID,
		Type:     slot.Type,
		DeviceID: c.creds.DeviceID,
	})
	if err != nil {
		o := transport.BadRequest.With(err.Error())
		c.pool.Submit(func() { cb(o, nil) })
		return
	}

	req := signer.NewRequest(c.baseURL+adPath, c.creds.signing(), string(payload), c.now().UnixMilli(), c.creds.DeviceID, c.version)
	log.Debug().Str("slot", slot.ID).Int("quantity", slot.Quantity).Msg("requesting ads")

	c.transport.Post(req.URL, req.Form, func(o Outcome, body string) {
		out, ads := c.decode(o, body)
		observability.SlotOutcomes.WithLabelValues(strconv.Itoa(out.Code)).Inc()
		cb(out, ads)
	})
}

// decode turns a transport result into the slot outcome.
func (c *Client) decode(o Outcome, body string) (Outcome, []Creative) {
	if !o.OK() {
		return o, nil
	}
	if strings.TrimSpace(body) == "" {
		return NullResult, nil
	}
	var env *Envelope[[]Creative]
	if err := c.codec.Unmarshal([]byte(body), &env); err != nil {
		return Outcome{Code: DecodeFailedCode, Text: err.Error()}, nil
	}
	if env == nil {
		return NullResult, nil
	}
	if !env.Success {
		if env.Error != nil {
			log.Debug().Int("code", env.Error.Code).Str("message", env.Error.Message).Msg("server rejected request")
		}
		return o, nil
	}
	return Success, env.Payload
}
