package testutil

import (
	"bytes"
	"path/filepath"
)

const fixturePlaceholder = "<fixture>"

// Normalize replaces the fixture's absolute root with a placeholder so golden
// output does not depend on where the repository is checked out.
func Normalize(fixture *FixtureContext, data []byte) []byte {
	if fixture == nil || fixture.Root == "" {
		return data
	}
	return bytes.ReplaceAll(data, []byte(filepath.ToSlash(fixture.Root)), []byte(fixturePlaceholder))
}
