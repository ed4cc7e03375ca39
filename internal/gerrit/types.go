// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import "strings"

// The types exchanged with Gerrit.
// Field tags use Gerrit's JSON names; see
// https://gerrit-review.googlesource.com/Documentation/rest-api-projects.html#json-entities
// and https://gerrit-review.googlesource.com/Documentation/rest-api-changes.html#file-info.

// branchPrefix is the prefix of all branch refs.
const branchPrefix = "refs/heads/"

// shortBranch returns ref without any refs/heads/ prefix.
func shortBranch(ref string) string {
	return strings.TrimPrefix(ref, branchPrefix)
}

// A BranchInfo is the information recorded for a branch.
// This describes Gerrit JSON data.
type BranchInfo struct {
	// The ref of the branch.
	Ref string `json:"ref"`

	// The revision to which the branch points.
	Revision string `json:"revision"`

	// Whether the calling user can delete this branch.
	CanDelete bool `json:"can_delete,omitempty"`

	// Links to the branch in external sites.
	WebLinks []WebLinkInfo `json:"web_links,omitempty"`
}

// Key returns the branch name without the refs/heads/ prefix.
func (b *BranchInfo) Key() string { return shortBranch(b.Ref) }

// A WebLinkInfo describes a link to an external site.
// This describes Gerrit JSON data.
type WebLinkInfo struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Target   string `json:"target,omitempty"`
}

// A BranchInput is the information needed to create a branch.
// This describes Gerrit JSON data.
type BranchInput struct {
	// The name of the branch. The prefix refs/heads/ can be omitted.
	// If set, must match the branch ID in the URL.
	Ref string `json:"ref,omitempty"`

	// The base revision of the new branch.
	// If not set, HEAD will be used as base revision.
	Revision string `json:"revision,omitempty"`
}

// Key returns the branch name without the refs/heads/ prefix.
func (b *BranchInput) Key() string { return shortBranch(b.Ref) }

// A FileInfo is the information recorded for a file in a revision.
// Gerrit returns these in a map keyed by file path.
// This describes Gerrit JSON data.
type FileInfo struct {
	// The status of the file: "A" (added), "D" (deleted), "R" (renamed),
	// "C" (copied) or "W" (rewritten). Not set if the file was modified.
	Status string `json:"status,omitempty"`

	// Whether the file is binary.
	Binary bool `json:"binary,omitempty"`

	// The old file path. Only set if the file was renamed or copied.
	OldPath string `json:"old_path,omitempty"`

	// Number of inserted lines. Not set for binary files or if no
	// lines were inserted. An empty last line is not included in the
	// count, so this can differ by one from the diff.
	LinesInserted int `json:"lines_inserted,omitempty"`

	// Number of deleted lines. Not set for binary files or if no
	// lines were deleted.
	LinesDeleted int `json:"lines_deleted,omitempty"`

	// Number of bytes by which the file size increased or decreased.
	SizeDelta int64 `json:"size_delta"`

	// File size in bytes.
	Size int64 `json:"size"`

	// The file modes, in octal, before and after the change.
	OldMode int `json:"old_mode,omitempty"`
	NewMode int `json:"new_mode,omitempty"`
}

// A DeleteBranchesInput names branches to delete.
// This describes Gerrit JSON data.
type DeleteBranchesInput struct {
	// Branch names, with or without the refs/heads/ prefix.
	Branches []string `json:"branches"`
}
