package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"rtb-client/internal/config"
	"rtb-client/rtb"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("rtbctl")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rtbctl",
		Usage: "request creatives and send reports through the rtb client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "configs", Usage: "directory holding application.yaml"},
			&cli.StringFlag{Name: "base-url", Usage: "override client.base_url"},
			&cli.StringFlag{Name: "log-level", Usage: "override client.log_level"},
		},
		Commands: []*cli.Command{
			{
				Name:      "request",
				Usage:     "request creatives for one slot",
				ArgsUsage: "SLOT_ID[:QUANTITY[:TYPE]]",
				Action:    requestAction,
			},
			{
				Name:      "batch",
				Usage:     "request several slots at once",
				ArgsUsage: "SLOT_ID[:QUANTITY[:TYPE]]...",
				Action:    batchAction,
			},
			{
				Name:  "report",
				Usage: "send tracking reports",
				Subcommands: []*cli.Command{
					{
						Name:      "static",
						Usage:     "report an ad event to the static endpoint",
						ArgsUsage: "SLOT_ID AD_ID",
						Flags: []cli.Flag{
							&cli.Float64Flag{Name: "lat"},
							&cli.Float64Flag{Name: "lon"},
						},
						Action: staticAction,
					},
					{
						Name:      "dynamic",
						Usage:     "hit a creative's tracking URL",
						ArgsUsage: "URL",
						Action:    dynamicAction,
					},
				},
			},
		},
	}
}

func newClient(cctx *cli.Context) (*rtb.Client, error) {
	cfg, err := config.LoadFrom(cctx.String("config"))
	if err != nil {
		return nil, err
	}
	level := cfg.Client.LogLevel
	if l := cctx.String("log-level"); l != "" {
		level = l
	}
	config.SetupLogging(level)

	base := cfg.Client.BaseURL
	if b := cctx.String("base-url"); b != "" {
		base = b
	}
	return rtb.New(rtb.Credentials{
		AppID:    cfg.Client.AppID,
		AppKey:   cfg.Client.AppKey,
		DeviceID: cfg.Client.DeviceID,
	},
		rtb.WithBaseURL(base),
		rtb.WithVersion(cfg.Client.Version),
		rtb.WithTimeout(cfg.Timeout()),
		rtb.WithWorkers(cfg.Client.Workers),
	)
}

// parseSlot reads SLOT_ID[:QUANTITY[:TYPE]]; quantity defaults to 1 and type to banner.
func parseSlot(s string) (*rtb.Slot, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return nil, fmt.Errorf("bad slot %q, want SLOT_ID[:QUANTITY[:TYPE]]", s)
	}
	slot := &rtb.Slot{ID: strings.TrimSpace(parts[0]), Quantity: 1, Type: rtb.SlotTypeBanner}
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bad quantity in %q: %w", s, err)
		}
		slot.Quantity = n
	}
	if len(parts) > 2 {
		t, err := rtb.ParseSlotType(parts[2])
		if err != nil {
			return nil, err
		}
		slot.Type = t
	}
	return slot, nil
}

type adsResult struct {
	Outcome rtb.Outcome    `json:"outcome"`
	Ads     []rtb.Creative `json:"ads"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func awaitAds(cctx *cli.Context, c *rtb.Client, start func(rtb.AdListener) error) error {
	ch := make(chan adsResult, 1)
	if err := start(func(o rtb.Outcome, ads []rtb.Creative) { ch <- adsResult{o, ads} }); err != nil {
		return err
	}
	r := <-ch
	c.Close()
	return printJSON(cctx.App.Writer, r)
}

func requestAction(cctx *cli.Context) error {
	if cctx.NArg() != 1 {
		return cli.Exit("request takes exactly one slot", 2)
	}
	slot, err := parseSlot(cctx.Args().First())
	if err != nil {
		return err
	}
	c, err := newClient(cctx)
	if err != nil {
		return err
	}
	return awaitAds(cctx, c, func(cb rtb.AdListener) error { return c.RequestSlot(slot, cb) })
}

func batchAction(cctx *cli.Context) error {
	var slots []*rtb.Slot
	for _, a := range cctx.Args().Slice() {
		slot, err := parseSlot(a)
		if err != nil {
			return err
		}
		slots = append(slots, slot)
	}
	c, err := newClient(cctx)
	if err != nil {
		return err
	}
	return awaitAds(cctx, c, func(cb rtb.AdListener) error { return c.RequestBatch(slots, cb) })
}

type reportResult struct {
	Outcome rtb.Outcome `json:"outcome"`
	Body    string      `json:"body,omitempty"`
}

func awaitReport(cctx *cli.Context, c *rtb.Client, start func(rtb.Callback) error) error {
	ch := make(chan reportResult, 1)
	if err := start(func(o rtb.Outcome, body string) { ch <- reportResult{o, body} }); err != nil {
		return err
	}
	select {
	case r := <-ch:
		c.Close()
		return printJSON(cctx.App.Writer, r)
	case <-time.After(time.Minute):
		return cli.Exit("report timed out", 1)
	}
}

func staticAction(cctx *cli.Context) error {
	if cctx.NArg() != 2 {
		return cli.Exit("report static takes SLOT_ID AD_ID", 2)
	}
	c, err := newClient(cctx)
	if err != nil {
		return err
	}
	sid, aid := cctx.Args().Get(0), cctx.Args().Get(1)
	return awaitReport(cctx, c, func(cb rtb.Callback) error {
		return c.ReportStaticAt(sid, aid, cctx.Float64("lat"), cctx.Float64("lon"), cb)
	})
}

func dynamicAction(cctx *cli.Context) error {
	if cctx.NArg() != 1 {
		return cli.Exit("report dynamic takes one URL", 2)
	}
	c, err := newClient(cctx)
	if err != nil {
		return err
	}
	return awaitReport(cctx, c, func(cb rtb.Callback) error { return c.ReportDynamic(cctx.Args().First(), cb) })
}
