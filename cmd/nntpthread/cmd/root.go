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

// Package cmd implements nntpthread: read a list of articles as
// newline-delimited JSON and print the resulting thread tree.
package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netclassic/netproto/nntpthread"
)

var inputPath string

// RootCmd is the nntpthread entry point.
var RootCmd = &cobra.Command{
	Use:   "nntpthread",
	Short: "Thread a list of articles (NDJSON: id/references/subject) and print the tree",
	RunE:  run,
}

func init() {
	RootCmd.Flags().StringVarP(&inputPath, "file", "f", "", "file to read (default: stdin)")
}

type jsonArticle struct {
	ID      string   `json:"id"`
	Refs    []string `json:"references"`
	Subject string   `json:"subject"`
}

func (a *jsonArticle) MessageID() string    { return a.ID }
func (a *jsonArticle) References() []string { return a.Refs }
func (a *jsonArticle) SimplifiedSubject() string {
	return nntpthread.SimplifySubject(a.Subject)
}
func (a *jsonArticle) SubjectIsReply() bool {
	return nntpthread.SimplifySubject(a.Subject) != strings.TrimSpace(a.Subject)
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

	var articles []nntpthread.Article
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var a jsonArticle
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			return fmt.Errorf("parsing article line %q: %w", line, err)
		}
		articles = append(articles, &a)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	root := nntpthread.Thread(articles)
	for cur := root; cur != nil; cur = cur.NextSibling() {
		printTree(cur, 0)
	}
	return nil
}

func printTree(n *nntpthread.Node, depth int) {
	label := "(no message)"
	if a, ok := n.Article(); ok {
		label = a.MessageID()
	}
	fmt.Printf("%s%s\n", strings.Repeat("  ", depth), label)
	for _, child := range n.Children() {
		printTree(child, depth+1)
	}
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
