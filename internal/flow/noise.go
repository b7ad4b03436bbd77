package flow

import "strings"

// stdlibPackages are standard library package names whose calls never show
// up in a chain.
var stdlibPackages = map[string]bool{
	"atomic": true, "base64": true, "binary": true, "bufio": true, "bytes": true,
	"context": true, "crypto": true, "csv": true, "errors": true, "exec": true,
	"filepath": true, "flag": true, "fmt": true, "fs": true, "hex": true,
	"html": true, "http": true, "httptest": true, "httputil": true, "io": true,
	"ioutil": true, "json": true, "log": true, "math": true, "mime": true,
	"net": true, "os": true, "path": true, "rand": true, "reflect": true,
	"regexp": true, "runtime": true, "signal": true, "slices": true, "slog": true,
	"sort": true, "sql": true, "strconv": true, "strings": true, "sync": true,
	"syscall": true, "template": true, "time": true, "tls": true, "unicode": true,
	"url": true, "utf8": true, "xml": true, "maps": true, "sha256": true,
}

// writerToken is the conventional name of an HTTP handler's response writer.
// Calls on it only write output.
const writerToken = "w"

// requestType is the declared type of an HTTP handler's request parameter.
const requestType = "*http.Request"

var builtins = map[string]bool{
	"make": true, "len": true, "append": true, "cap": true, "close": true,
	"copy": true, "delete": true, "new": true, "panic": true, "recover": true,
	"print": true, "println": true,
}

// isNoise reports whether a call should be left out of a chain.
func isNoise(callee, qualifier string) bool {
	if qualifier == "" {
		return builtins[callee]
	}
	ident := qualifier
	if i := strings.IndexAny(ident, ".("); i >= 0 {
		ident = ident[:i]
	}
	return stdlibPackages[ident] || ident == writerToken
}
