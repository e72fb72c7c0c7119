// cmd/examrag/main.go
package main

import (
	examrag "github.com/mwiater/examrag/internal/commands"
)

// Build metadata, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = examrag.SetVersionInfo
	executeCmd     = examrag.Execute
)

// main hands control to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
