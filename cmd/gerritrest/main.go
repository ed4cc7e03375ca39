// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Gerritrest is a command line client for the Gerrit REST API.
//
// Usage:
//
//	gerritrest [flags] command [args]
//
// Run "gerritrest help" for the list of commands and flags.
// Credentials come from the netrc file, keyed by the server's host name,
// or are read from the terminal with --prompt.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/gerritrest/internal/gerrit"
	"golang.org/x/gerritrest/internal/httprr"
	"golang.org/x/gerritrest/internal/secret"
	"golang.org/x/term"
)

// gerritFlags are the flags shared by all commands.
type gerritFlags struct {
	url       string
	insecure  bool
	netrc     string
	user      string
	prompt    bool
	basic     bool
	level     string
	config    string
	httptrace string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd returns the gerritrest command tree.
func newRootCmd() *cobra.Command {
	var flags gerritFlags
	root := &cobra.Command{
		Use:   "gerritrest",
		Short: "Gerritrest talks to a Gerrit server's REST API",
		Long: `Gerritrest talks to a Gerrit server's REST API.

It logs in with the credentials the netrc file holds for the server's
host name (or that --prompt reads from the terminal), sends the request
and prints the JSON response with Gerrit's anti-XSSI prefix removed.

Defaults for the flags may be set in a YAML file; see --config.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.url, "url", "", "base URL of the Gerrit server, such as https://gerrit.wikimedia.org/r/")
	pf.BoolVar(&flags.insecure, "insecure", false, "do not verify the server's TLS certificate")
	pf.StringVar(&flags.netrc, "netrc", "", "netrc `file` holding credentials (default $NETRC or ~/.netrc)")
	pf.StringVarP(&flags.user, "user", "u", "", "user name for --prompt")
	pf.BoolVar(&flags.prompt, "prompt", false, "read the password from the terminal")
	pf.BoolVar(&flags.basic, "basic", false, "use HTTP basic auth on the /a/ prefix instead of a login session")
	pf.StringVar(&flags.level, "level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.config, "config", "", "YAML config `file` (default "+defaultConfigFile()+")")
	pf.StringVar(&flags.httptrace, "httptrace", "", "record HTTP traffic to `file`, with credentials removed")

	root.AddCommand(
		branchesCmd(&flags),
		branchCmd(&flags),
		createBranchCmd(&flags),
		deleteBranchesCmd(&flags),
		filesCmd(&flags),
		getCmd(&flags),
		putCmd(&flags),
		postCmd(&flags),
	)
	return root
}

// newClient returns a Gerrit client configured by flags and the config file.
// The returned function must be called when the client is no longer needed.
func newClient(cmd *cobra.Command, flags *gerritFlags) (_ *gerrit.Client, done func() error, err error) {
	if err := applyConfig(cmd, flags); err != nil {
		return nil, nil, err
	}
	if flags.url == "" {
		return nil, nil, fmt.Errorf("no Gerrit server: use --url or set url in the config file")
	}

	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(flags.level)); err != nil {
		return nil, nil, err
	}
	lg := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var sdb secret.DB
	if flags.netrc != "" {
		db, err := secret.ReadNetrc(flags.netrc)
		if err != nil {
			return nil, nil, err
		}
		sdb = db
	} else {
		sdb = secret.Netrc()
	}
	if flags.prompt {
		if err := promptCredentials(cmd, flags, sdb); err != nil {
			return nil, nil, err
		}
	}

	done = func() error { return nil }
	hc := gerrit.HTTPClient(flags.insecure)
	if flags.httptrace != "" {
		rr, err := httprr.Create(flags.httptrace, hc.Transport)
		if err != nil {
			return nil, nil, err
		}
		hc.Transport = rr
		done = rr.Close
	}

	c, err := gerrit.New(flags.url, lg, sdb, hc)
	if err != nil {
		done()
		return nil, nil, err
	}
	if flags.basic {
		c.UseBasicAuth()
	}
	return c, done, nil
}

// promptCredentials reads a user name (unless set by flag) and a
// password from the terminal and stores them in sdb for the server.
func promptCredentials(cmd *cobra.Command, flags *gerritFlags, sdb secret.DB) error {
	u, err := url.Parse(flags.url)
	if err != nil {
		return err
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("--prompt needs a terminal")
	}
	w := cmd.ErrOrStderr()
	user := flags.user
	if user == "" {
		fmt.Fprintf(w, "Username for %s: ", u.Hostname())
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		user = strings.TrimSpace(line)
	}
	fmt.Fprintf(w, "Password for %s@%s: ", user, u.Hostname())
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return err
	}
	sdb.Set(u.Hostname(), user+":"+string(pass))
	return nil
}

// printJSON prints js indented, or nothing if js is nil.
func printJSON(w io.Writer, js json.RawMessage) error {
	if js == nil {
		return nil
	}
	out, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}

// printValue prints v as indented JSON.
func printValue(w io.Writer, v any) error {
	js, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return printJSON(w, js)
}
