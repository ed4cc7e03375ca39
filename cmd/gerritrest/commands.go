// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/gerritrest/internal/gerrit"
)

// runFunc is the body of a command, given a connected client.
type runFunc func(cmd *cobra.Command, c *gerrit.Client, args []string) error

// withClient returns a cobra RunE that connects to Gerrit and calls run.
func withClient(flags *gerritFlags, run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		c, done, err := newClient(cmd, flags)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := done(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, c, args)
	}
}

func branchesCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "branches PROJECT",
		Short: "List the branches of a project",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			branches, err := c.ListBranches(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), branches)
		}),
	}
}

func branchCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "branch PROJECT NAME",
		Short: "Show a branch of a project",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			b, err := c.Branch(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), b)
		}),
	}
}

func createBranchCmd(flags *gerritFlags) *cobra.Command {
	var revision string
	cmd := &cobra.Command{
		Use:   "create-branch PROJECT NAME",
		Short: "Create a branch in a project",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			in := &gerrit.BranchInput{Ref: args[1], Revision: revision}
			b, err := c.CreateBranch(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), b)
		}),
	}
	cmd.Flags().StringVar(&revision, "revision", "", "commit or ref the branch starts at (default HEAD)")
	return cmd
}

func deleteBranchesCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-branches PROJECT NAME...",
		Short: "Delete branches of a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			in := &gerrit.DeleteBranchesInput{Branches: args[1:]}
			return c.DeleteBranches(cmd.Context(), args[0], in)
		}),
	}
}

func filesCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "files CHANGE [REVISION]",
		Short: "List the files modified by a revision of a change",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			revision := ""
			if len(args) > 1 {
				revision = args[1]
			}
			files, err := c.Files(cmd.Context(), args[0], revision)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), files)
		}),
	}
}

func getCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get ENDPOINT",
		Short: "Send a GET request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			js, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), js)
		}),
	}
}

func putCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put ENDPOINT [JSON]",
		Short: "Send a PUT request with a JSON body and print the response",
		Long: `Put sends a PUT request with a JSON body and prints the response.
If JSON is omitted or is "-", the body is read from standard input.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			body, err := jsonArg(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			js, err := c.Put(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), js)
		}),
	}
}

func postCmd(flags *gerritFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "post ENDPOINT [key=value...]",
		Short: "Send a POST request with form values and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: withClient(flags, func(cmd *cobra.Command, c *gerrit.Client, args []string) error {
			form, err := parseForm(args[1:])
			if err != nil {
				return err
			}
			js, err := c.Post(cmd.Context(), args[0], form)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), js)
		}),
	}
}

// jsonArg returns the JSON body given on the command line,
// or read from r if there is none or it is "-".
func jsonArg(r io.Reader, args []string) (json.RawMessage, error) {
	var data []byte
	if len(args) == 0 || args[0] == "-" {
		var err error
		if data, err = io.ReadAll(r); err != nil {
			return nil, err
		}
	} else {
		data = []byte(args[0])
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// parseForm parses key=value arguments into form values.
// A key may repeat.
func parseForm(args []string) (url.Values, error) {
	form := url.Values{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad form value %q: want key=value", arg)
		}
		form.Add(k, v)
	}
	return form, nil
}

