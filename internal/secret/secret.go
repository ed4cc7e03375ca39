// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package secret defines an interface to a database storing secrets,
// such as the credentials for a Gerrit server.
//
// Secrets are looked up by name. For server credentials the name is
// the server's host name and the secret is "user:password".
package secret

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bgentry/go-netrc/netrc"
)

// A DB is a secret database, which is a persistent map from names to secrets.
type DB interface {
	Get(name string) (secret string, ok bool)
	Set(name, secret string)
}

// A Map is a [DB] backed by a Go map.
type Map map[string]string

// Get returns the named secret.
func (m Map) Get(name string) (secret string, ok bool) {
	secret, ok = m[name]
	return secret, ok
}

// Set sets the named secret.
func (m Map) Set(name, secret string) {
	m[name] = secret
}

// Empty returns a [DB] with no secrets.
func Empty() DB {
	return Map{}
}

// UserPass looks up the credentials for host in db.
// It reports ok == false if there are no credentials
// or the secret is not in "user:password" form.
// A host with a port also matches a secret stored under the
// bare host name.
func UserPass(db DB, host string) (user, pass string, ok bool) {
	s, ok := db.Get(host)
	if !ok {
		if h, _, err := net.SplitHostPort(host); err == nil {
			s, ok = db.Get(h)
		}
	}
	if !ok {
		return "", "", false
	}
	return strings.Cut(s, ":")
}

// A NetrcDB is a [DB] backed by a netrc file.
// Secrets for a machine are returned as "login:password".
// Set records the secret in memory only; the file is never written.
type NetrcDB struct {
	mu    sync.Mutex
	rc    *netrc.Netrc
	extra Map
}

// Netrc returns a [NetrcDB] reading $NETRC, or $HOME/.netrc
// ($HOME/_netrc on Windows) if $NETRC is unset.
// A missing or unreadable file results in an empty database.
func Netrc() *NetrcDB {
	file := os.Getenv("NETRC")
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &NetrcDB{extra: Map{}}
		}
		name := ".netrc"
		if runtime.GOOS == "windows" {
			name = "_netrc"
		}
		file = filepath.Join(home, name)
	}
	db, err := ReadNetrc(file)
	if err != nil {
		return &NetrcDB{extra: Map{}}
	}
	return db
}

// ReadNetrc returns a [NetrcDB] for the named netrc file.
func ReadNetrc(file string) (*NetrcDB, error) {
	rc, err := netrc.ParseFile(file)
	if err != nil {
		return nil, err
	}
	return &NetrcDB{rc: rc, extra: Map{}}, nil
}

// Get returns "login:password" for the named machine.
// A "default" entry in the file matches any machine.
func (db *NetrcDB) Get(name string) (secret string, ok bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if s, ok := db.extra[name]; ok {
		return s, true
	}
	if db.rc == nil {
		return "", false
	}
	m := db.rc.FindMachine(name)
	if m == nil || m.Login == "" {
		return "", false
	}
	return m.Login + ":" + m.Password, true
}

// Set records the named secret for the lifetime of db.
func (db *NetrcDB) Set(name, secret string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.extra[name] = secret
}
