package main

import (
	"rtb-client/internal/app/sandbox"
	"rtb-client/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Sandbox.LogLevel)
	sandbox.Run(cfg)
}
