// ABOUTME: Version and product identification constants
// ABOUTME: Used for the stream User-Agent header and the -version flag
package version

const (
	// Version is the semantic version of this build.
	Version = "0.4.2"

	// Product is the tool name reported to servers and in logs.
	Product = "streamprobe"
)

// UserAgent returns the identification string sent with stream requests.
func UserAgent() string {
	return Product + "/" + Version
}
