package version

// version is set at build time with
// -ldflags "-X github.com/cbodonnell/hokm/pkg/version.version=<tag>".
var version = "dev"

func Get() string {
	return version
}
