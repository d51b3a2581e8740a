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

// Package cmd implements telnetclient: connect, negotiate ECHO/SGA/
// TERMINAL-TYPE/NAWS, and pipe stdio through the connection.
package cmd

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/netclassic/netproto/telnet"
)

var serverAddr string

// RootCmd is the telnetclient entry point.
var RootCmd = &cobra.Command{
	Use:   "telnetclient",
	Short: "Connect to a telnet server and negotiate options",
	RunE:  run,
}

func init() {
	RootCmd.Flags().StringVarP(&serverAddr, "server", "s", "", "server address, host:port")
	_ = RootCmd.MarkFlagRequired("server")
}

func run(_ *cobra.Command, _ []string) error {
	nc, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return err
	}
	defer nc.Close()

	termType := &telnet.TermTypeHandler{Value: os.Getenv("TERM")}
	naws := &telnet.NAWSHandler{}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, h, werr := term.GetSize(int(os.Stdout.Fd())); werr == nil {
			naws.Width, naws.Height = uint16(w), uint16(h)
		}
	}

	conn := telnet.NewConn(nc, telnet.Threaded,
		telnet.EchoHandler{},
		telnet.SuppressGAHandler{},
		termType,
		naws,
	)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(os.Stdout, conn)
		close(done)
	}()
	go func() { _, _ = io.Copy(conn, os.Stdin) }()

	<-done
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
