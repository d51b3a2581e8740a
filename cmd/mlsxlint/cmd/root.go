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

// Package cmd implements mlsxlint: parse MLSD/MLST fact-list lines from a
// file (or stdin) and render them as a table, flagging lines that fail
// to parse.
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/netclassic/netproto/mlsx"
)

var inputPath string

// RootCmd is the mlsxlint entry point.
var RootCmd = &cobra.Command{
	Use:   "mlsxlint",
	Short: "Parse and render RFC 3659 MLSx fact-list listings",
	RunE:  run,
}

func init() {
	RootCmd.Flags().StringVarP(&inputPath, "file", "f", "", "file to read (default: stdin)")
}

func run(_ *cobra.Command, _ []string) error {
	in := os.Stdin
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(20)
	table.SetHeader([]string{"Name", "Type", "Size", "Modify", "Owner"})

	scanner := bufio.NewScanner(in)
	errs := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		entry, err := mlsx.Parse(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("parse error: %v (line %q)", err, line))
			errs++
			continue
		}
		size := "-"
		if entry.HasSize {
			size = fmt.Sprintf("%d", entry.Size)
		}
		modify := "-"
		if entry.HasMtime {
			modify = entry.Modify.UTC().Format("2006-01-02T15:04:05Z")
		}
		table.Append([]string{entry.Name, entry.Type.String(), size, modify, entry.Owner})
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	table.Render()

	if errs > 0 {
		fmt.Fprintln(os.Stderr, color.YellowString("%d line(s) failed to parse", errs))
		os.Exit(1)
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
