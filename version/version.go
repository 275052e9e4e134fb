// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	NAME     = "scopelock"
	VERSION  = "unknown"
	REVISION = "HEAD"
	BUILTAT  = "now"
)

// String renders the build metadata, one field per line.
func String() string {
	return fmt.Sprintf("Name:        %s\nVersion:     %s\nGit hash:    %s\nBuilt:       %s\nGolang:      %s\nOS/Arch:     %s/%s\n",
		NAME, VERSION, REVISION, BUILTAT, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
