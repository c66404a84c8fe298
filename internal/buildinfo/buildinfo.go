// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	// UserAgent identifies ztdl towards APIs that are not the indexing site.
	UserAgent = "ztdl/dev"
)

// Set is called from main with the ldflags values.
func Set(version, commit, date string) {
	if version != "" {
		Version = version
	}
	Commit = commit
	Date = date
	UserAgent = fmt.Sprintf("ztdl/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}
