// Copyright © 2024 Dolphie-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This is the entrypoint for the dolphie command-line application: a
// minimal spf13/cobra wiring of configuration, a single endpoint, a Tab
// Runtime, and the fallback line-printer, sufficient to exercise the whole
// pipeline without a terminal widget layer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dconfig "github.com/dolphie-go/dolphie/internal/config"
	"github.com/dolphie-go/dolphie/internal/endpoint"
	"github.com/dolphie-go/dolphie/internal/logging"
	"github.com/dolphie-go/dolphie/internal/replay"
	"github.com/dolphie-go/dolphie/internal/tab"
	"github.com/dolphie-go/dolphie/internal/uicontract"
	"github.com/dolphie-go/dolphie/internal/versioncheck"
)

var (
	cfgFile        string
	replayPath     string
	noVersionCheck bool
	hostgroupName  string
)

var rootCmd = &cobra.Command{
	Use:   "dolphie",
	Short: "Dolphie is a real-time terminal dashboard for MySQL-family servers and ProxySQL.",
	Long: `Dolphie samples a MySQL-family server (or ProxySQL router) on an interval,
derives per-second and ratio metrics, and renders a fallback line-per-event
stream when no terminal widget layer is attached.`,
	RunE: run,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the [client]/[dolphie] INI config file")
	rootCmd.PersistentFlags().StringVar(&replayPath, "replay", "", "open an existing replay file instead of connecting live")
	rootCmd.PersistentFlags().BoolVar(&noVersionCheck, "no-version-check", false, "skip the best-effort version-check ping")
	rootCmd.PersistentFlags().StringVar(&hostgroupName, "hostgroup", "", "connect every member of this hostgroup (from the config's hostgroup_file) as a connect-wave instead of a single endpoint")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg dconfig.Config
	if cfgFile != "" {
		loaded, err := dconfig.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	}

	logging.Init(cfg.Logging)

	if !noVersionCheck {
		go func() {
			checkCtx, checkCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer checkCancel()
			if _, err := versioncheck.CheckLatest(checkCtx, "https://pypi.org/pypi/dolphie/json"); err != nil {
				logging.NewLogger("versioncheck").Debugf("version check failed: %v", err)
			}
		}()
	}

	if hostgroupName != "" {
		return runHostgroup(ctx, cfg)
	}

	tabID := uuid.NewString()
	ep := cfg.ToEndpoint("default", cfg.Host)

	var recorder *replay.Recorder
	var reader *replay.Reader
	var err error
	if replayPath != "" {
		reader, err = replay.OpenReader(ctx, replayPath)
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		defer reader.Close()
	} else if cfg.ReplayFile != "" {
		recorder, err = replay.NewRecorder(replay.RecorderConfig{
			Path:             cfg.ReplayFile,
			Host:             cfg.Host,
			Port:             cfg.Port,
			ConnectionSource: "direct",
		}, zap.NewNop())
		if err != nil {
			return fmt.Errorf("opening replay recorder: %w", err)
		}
		defer recorder.Close()
	}

	rt := tab.New(tab.Config{
		ID:              tabID,
		Endpoint:        ep,
		RefreshInterval: cfg.RefreshInterval,
		HeartbeatTable:  cfg.HeartbeatTable,
		Recorder:        recorder,
		Reader:          reader,
	}, zap.NewNop())

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("starting tab runtime: %w", err)
	}
	defer rt.Disconnect()

	printer := uicontract.NewLinePrinter(os.Stdout)
	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	var events []tab.Event
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-rt.Events:
			events = append(events, ev)
		case <-ticker.C:
			snap := uicontract.BuildSnapshot(tabID, ep, rt, nil, events, time.Now())
			printer.PrintSnapshot(snap)
			events = nil
		}
	}
}

// runHostgroup connects every member of the named hostgroup as a connect
// wave, an ordered list of endpoints each opened as its own tab, then fans
// in every tab's event stream and prints one snapshot per tab on each tick.
func runHostgroup(ctx context.Context, cfg dconfig.Config) error {
	if cfg.HostgroupFile == "" {
		return fmt.Errorf("--hostgroup requires hostgroup_file to be set in the config")
	}
	hf, err := dconfig.LoadHostgroupFile(cfg.HostgroupFile)
	if err != nil {
		return fmt.Errorf("loading hostgroup file: %w", err)
	}
	endpoints, err := hf.Endpoints(hostgroupName)
	if err != nil {
		return fmt.Errorf("resolving hostgroup %q: %w", hostgroupName, err)
	}

	members := make([]tab.ConnectWaveMember, len(endpoints))
	for i, ep := range endpoints {
		members[i] = tab.ConnectWaveMember{TabID: uuid.NewString(), Endpoint: ep}
	}

	mgr := tab.NewManager(zap.NewNop())
	defer mgr.Shutdown()

	runtimes, err := mgr.ConnectHostgroup(ctx, members, func(ep endpoint.Endpoint) tab.Config {
		return tab.Config{RefreshInterval: cfg.RefreshInterval, HeartbeatTable: cfg.HeartbeatTable}
	})
	if err != nil {
		return fmt.Errorf("hostgroup connect-wave %q: %w", hostgroupName, err)
	}

	type tabEvent struct {
		tabID string
		ev    tab.Event
	}
	fanIn := make(chan tabEvent, 32*len(runtimes))
	for i, rt := range runtimes {
		mem := members[i]
		go func(tabID string, rt *tab.Runtime) {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-rt.Events:
					if !ok {
						return
					}
					fanIn <- tabEvent{tabID: tabID, ev: ev}
				}
			}
		}(mem.TabID, rt)
	}

	printer := uicontract.NewLinePrinter(os.Stdout)
	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	events := make(map[string][]tab.Event, len(members))
	for {
		select {
		case <-ctx.Done():
			return nil
		case te := <-fanIn:
			events[te.tabID] = append(events[te.tabID], te.ev)
		case <-ticker.C:
			for i, rt := range runtimes {
				mem := members[i]
				snap := uicontract.BuildSnapshot(mem.TabID, mem.Endpoint, rt, nil, events[mem.TabID], time.Now())
				printer.PrintSnapshot(snap)
				events[mem.TabID] = nil
			}
		}
	}
}
