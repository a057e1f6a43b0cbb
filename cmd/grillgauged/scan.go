package main

import (
	"context"
	"fmt"

	"github.com/teosibileau/grillgauge/internal/config"
	"github.com/teosibileau/grillgauge/internal/logger"
	"github.com/teosibileau/grillgauge/internal/probe"
	"github.com/teosibileau/grillgauge/internal/registry"
	"github.com/teosibileau/grillgauge/internal/transport"
)

// runScan discovers nearby BLE devices and classifies them: devices
// advertising the probe data service are registered under a generated
// name, everything else lands on the ignore list so later scans skip
// it.
func runScan(ctx context.Context, cfg *config.Config, store *registry.Store, scanner transport.Discoverer) error {
	logger.Info().Msg("Scanning for BLE devices...")

	found, err := scanner.Discover(ctx, cfg.DiscoveryTimeoutDuration(), "")
	if err != nil {
		return err
	}

	known, err := store.ListProbes(ctx)
	if err != nil {
		return err
	}
	registered := make(map[probe.DeviceID]bool, len(known))
	names := make(map[string]bool, len(known))
	for _, p := range known {
		registered[p.Address] = true
		names[p.Name] = true
	}

	ignoredList, err := store.ListIgnored(ctx)
	if err != nil {
		return err
	}
	ignored := make(map[probe.DeviceID]bool, len(ignoredList))
	for _, id := range ignoredList {
		ignored[id] = true
	}

	var added, skipped int
	for _, d := range found {
		id := probe.DeviceID(d.Address)
		if registered[id] || ignored[id] {
			continue
		}

		if !d.ProbeService {
			if err := store.AddIgnored(ctx, id); err != nil {
				return err
			}
			logger.Debug().Str("device", d.Address).Msg("ignored device")
			skipped++
			continue
		}

		name := nextProbeName(names)
		names[name] = true
		if err := store.AddProbe(ctx, id, name); err != nil {
			return err
		}
		logger.Info().Str("device", d.Address).Str("probe", name).Msg("added probe")
		added++
	}

	logger.Info().
		Int("probes", added).
		Int("ignored", skipped).
		Msg("Scan complete")

	return nil
}

// nextProbeName generates the first free ProbeN name.
func nextProbeName(existing map[string]bool) string {
	for i := 1; ; i++ {
		name := fmt.Sprintf("Probe%d", i)
		if !existing[name] {
			return name
		}
	}
}
