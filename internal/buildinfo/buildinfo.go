package buildinfo

import "runtime/debug"

// Version is overridden at build time with -ldflags "-X .../buildinfo.Version=v1.2.3".
var Version = "dev"

// Resolve returns Version, falling back to the module version embedded by go install.
func Resolve() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
