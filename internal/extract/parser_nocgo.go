//go:build !cgo

package extract

// Available reports whether this build can parse source.
func Available() bool {
	return false
}

func newFileParser() (fileParser, error) {
	return nil, unavailable()
}
