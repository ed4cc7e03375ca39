// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/gerritrest/internal/entity"
)

// projectPath returns the endpoint of a project.
// Project names may contain slashes, which must be escaped.
func projectPath(project string) string {
	return "projects/" + url.PathEscape(project)
}

// branchPath returns the endpoint of a branch in a project.
func branchPath(project, branch string) string {
	return projectPath(project) + "/branches/" + url.PathEscape(branch)
}

// errNoJSON is returned when an entity was expected
// but Gerrit's response was not JSON.
var errNoJSON = errors.New("response is not JSON")

// ListBranches returns the branches of project, keyed by branch name
// without the refs/heads/ prefix. Refs outside refs/heads/, such as
// HEAD and refs/meta/config, keep their full name.
func (c *Client) ListBranches(ctx context.Context, project string) (map[string]*BranchInfo, error) {
	js, err := c.Get(ctx, projectPath(project)+"/branches/")
	if err != nil {
		return nil, err
	}
	if js == nil {
		return map[string]*BranchInfo{}, nil
	}
	branches, err := entity.Keyed[BranchInfo](js)
	if err != nil {
		return nil, fmt.Errorf("gerrit: branches of %s: %w", project, err)
	}
	return branches, nil
}

// Branch returns information about a single branch of project.
func (c *Client) Branch(ctx context.Context, project, branch string) (*BranchInfo, error) {
	js, err := c.Get(ctx, branchPath(project, branch))
	if err != nil {
		return nil, err
	}
	return decodeEntity[BranchInfo](js, "branch %s of %s", branch, project)
}

// CreateBranch creates the branch described by in, which must set Ref.
// It returns the new branch as reported by Gerrit.
func (c *Client) CreateBranch(ctx context.Context, project string, in *BranchInput) (*BranchInfo, error) {
	name := in.Key()
	if name == "" {
		return nil, fmt.Errorf("gerrit: create branch in %s: missing ref", project)
	}
	js, err := c.Put(ctx, branchPath(project, name), in)
	if err != nil {
		return nil, err
	}
	return decodeEntity[BranchInfo](js, "new branch %s of %s", name, project)
}

// DeleteBranches deletes the branches of project named by in.
func (c *Client) DeleteBranches(ctx context.Context, project string, in *DeleteBranchesInput) error {
	if len(in.Branches) == 0 {
		return nil
	}
	_, err := c.doJSON(ctx, http.MethodPost, projectPath(project)+"/branches:delete", in)
	return err
}

// Files returns the files modified by a revision of a change, keyed by path.
// An empty revision means the current revision.
func (c *Client) Files(ctx context.Context, change, revision string) (map[string]*FileInfo, error) {
	if revision == "" {
		revision = "current"
	}
	js, err := c.Get(ctx, "changes/"+url.PathEscape(change)+"/revisions/"+url.PathEscape(revision)+"/files/")
	if err != nil {
		return nil, err
	}
	if js == nil {
		return map[string]*FileInfo{}, nil
	}
	files, err := entity.Map[FileInfo](js)
	if err != nil {
		return nil, fmt.Errorf("gerrit: files of %s/%s: %w", change, revision, err)
	}
	return files, nil
}

// decodeEntity decodes the single entity in js.
// The format and args describe the entity for errors.
func decodeEntity[T any](js json.RawMessage, format string, args ...any) (*T, error) {
	if js == nil {
		return nil, fmt.Errorf("gerrit: %s: %w", fmt.Sprintf(format, args...), errNoJSON)
	}
	v, err := entity.Decode[T](js)
	if err != nil {
		return nil, fmt.Errorf("gerrit: %s: %w", fmt.Sprintf(format, args...), err)
	}
	return v, nil
}
