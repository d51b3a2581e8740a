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

// Package cmd implements the ntpclient CLI: send one NTPv4 request and
// report the computed round-trip delay and clock offset.
package cmd

import (
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netclassic/netproto/ntp"
	protocol "github.com/netclassic/netproto/ntp/protocol"
)

var (
	server  string
	timeout time.Duration
	verbose bool
)

// RootCmd is the ntpclient entry point.
var RootCmd = &cobra.Command{
	Use:   "ntpclient",
	Short: "Query an NTP server and report its offset and delay",
	RunE:  run,
}

func init() {
	RootCmd.Flags().StringVarP(&server, "server", "s", "", "NTP server address, host:port")
	RootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "reply timeout")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	_ = RootCmd.MarkFlagRequired("server")
}

func run(_ *cobra.Command, _ []string) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	conn, err := net.Dial("udp", server)
	if err != nil {
		return err
	}
	defer conn.Close()

	txSec, txFrac := protocol.Time(time.Now())
	req := &protocol.Packet{Settings: 0x23, TxTimeSec: txSec, TxTimeFrac: txFrac}
	reqBytes, err := req.Bytes()
	if err != nil {
		return err
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write(reqBytes); err != nil {
		return err
	}

	buf := make([]byte, protocol.PacketSizeBytes)
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	destTime := time.Now()

	resp, err := protocol.BytesToPacket(buf[:n])
	if err != nil {
		return err
	}
	log.Debugf("received NTP packet from %s: %+v", server, resp)

	ti, err := ntp.NewTimeInfo(resp, conn.RemoteAddr(), destTime.UnixMilli())
	if err != nil {
		return err
	}
	ti.ComputeDetails()

	delay, hasDelay := ti.Delay()
	offset, hasOffset := ti.Offset()
	if !hasDelay || !hasOffset {
		fmt.Printf("server %s: could not compute delay/offset (%v)\n", server, ti.Comments())
		return nil
	}
	fmt.Printf("server %s: delay=%dms offset=%dms\n", server, delay, offset)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
