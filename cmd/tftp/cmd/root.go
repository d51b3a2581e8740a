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

// Package cmd implements tftp: a one-shot get/put client.
package cmd

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/netclassic/netproto/tftp"
)

var (
	serverAddr string
	remoteName string
	localFile  string
)

// RootCmd is the tftp client entry point.
var RootCmd = &cobra.Command{
	Use:   "tftp",
	Short: "Transfer a single file to/from a TFTP server",
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch remote-name from the server and write it to local-file",
	RunE:  runGet,
}

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Send local-file to the server as remote-name",
	RunE:  runPut,
}

func init() {
	for _, c := range []*cobra.Command{getCmd, putCmd} {
		c.Flags().StringVarP(&serverAddr, "server", "s", "", "server address, host:port")
		c.Flags().StringVarP(&remoteName, "remote", "r", "", "remote file name")
		c.Flags().StringVarP(&localFile, "local", "l", "", "local file path")
		_ = c.MarkFlagRequired("server")
		_ = c.MarkFlagRequired("remote")
		_ = c.MarkFlagRequired("local")
	}
	RootCmd.AddCommand(getCmd, putCmd)
}

func dialClientSocket(server string) (*net.UDPConn, *net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, nil, err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, nil, err
	}
	return conn, addr, nil
}

func runGet(_ *cobra.Command, _ []string) error {
	conn, addr, err := dialClientSocket(serverAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Create(localFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := tftp.ReceiveFile(conn, addr, remoteName, tftp.ModeOctet, f, tftp.ClientConfig{}); err != nil {
		return err
	}
	fmt.Printf("fetched %s -> %s\n", remoteName, localFile)
	return nil
}

func runPut(_ *cobra.Command, _ []string) error {
	conn, addr, err := dialClientSocket(serverAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := tftp.SendFile(conn, addr, remoteName, tftp.ModeOctet, f, tftp.ClientConfig{}); err != nil {
		return err
	}
	fmt.Printf("sent %s -> %s\n", localFile, remoteName)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
