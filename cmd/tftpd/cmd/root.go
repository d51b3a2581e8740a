/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cmd implements tftpd: a standalone RFC 1350 TFTP server daemon
// exposing its transfer stats over HTTP.
package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netclassic/netproto/tftp"
)

var (
	addr       string
	root       string
	writeDir   string
	mode       string
	statsAddr  string
	logLevel   string
	configFile string
)

// RootCmd is the tftpd entry point.
var RootCmd = &cobra.Command{
	Use:   "tftpd",
	Short: "Run a concurrent multi-transfer TFTP server",
	RunE:  run,
}

func init() {
	RootCmd.Flags().StringVar(&addr, "addr", ":69", "listen address")
	RootCmd.Flags().StringVar(&root, "root", ".", "directory RRQ paths resolve against")
	RootCmd.Flags().StringVar(&writeDir, "write-dir", "", "directory WRQ paths resolve against (default: root)")
	RootCmd.Flags().StringVar(&mode, "mode", "getandput", "access mode: getonly, putonly, getandput")
	RootCmd.Flags().StringVar(&statsAddr, "stats-addr", "", "address to serve JSON stats on, empty disables it")
	RootCmd.Flags().StringVar(&logLevel, "loglevel", "info", "log level: debug, info, warning, error")
	RootCmd.Flags().StringVar(&configFile, "config", "", "YAML server config file; overrides the flags above when set")
}

func parseMode(s string) (tftp.AccessMode, error) {
	switch s {
	case "getonly":
		return tftp.GetOnly, nil
	case "putonly":
		return tftp.PutOnly, nil
	case "getandput":
		return tftp.GetAndPut, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func run(_ *cobra.Command, _ []string) error {
	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	var cfg tftp.ServerConfig
	if configFile != "" {
		cfg, err = tftp.ReadServerConfig(configFile)
		if err != nil {
			return err
		}
	} else {
		accessMode, merr := parseMode(mode)
		if merr != nil {
			return merr
		}
		cfg = tftp.ServerConfig{Addr: addr, Root: root, WriteDir: writeDir, Mode: accessMode}
	}

	srv, err := tftp.NewServer(cfg)
	if err != nil {
		return err
	}

	if statsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
				health, herr := tftp.CollectSelfHealth()
				if herr != nil {
					log.Debugf("self-health collection failed: %v", herr)
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(struct {
					tftp.Snapshot
					Self tftp.SelfHealth `json:"self"`
				}{Snapshot: srv.Stats.Snapshot(), Self: health})
			})
			mux.Handle("/metrics", promhttp.HandlerFor(srv.Stats.Registry(), promhttp.HandlerOpts{}))
			log.Errorf("stats server stopped: %v", http.ListenAndServe(statsAddr, mux))
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		log.Warning("shutting down")
		_ = srv.Close()
	}()

	if supported, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debugf("sd_notify not supported: %v", err)
	} else if supported {
		log.Debug("notified systemd of readiness")
	}

	log.Infof("tftpd listening on %s", srv.LocalAddr())
	if err := srv.Serve(); err != nil {
		log.Errorf("serve stopped: %v", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
