package loader

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported range of the major lib version, inclusive on both ends.
const (
	MinLibVersion = 1
	MaxLibVersion = 1
)

// MajorLibVersion parses the leading dot-delimited segment of a version name.
func MajorLibVersion(versionName string) (int, error) {
	head, _, _ := strings.Cut(strings.TrimSpace(versionName), ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("version name %q has no numeric major component", versionName)
	}
	return major, nil
}

// CheckLibVersion fails unless the major lib version of versionName lies in
// [MinLibVersion, MaxLibVersion].
func CheckLibVersion(versionName string) error {
	major, err := MajorLibVersion(versionName)
	if err != nil {
		return err
	}
	if major < MinLibVersion || major > MaxLibVersion {
		return fmt.Errorf("lib version is %d, while only versions %d to %d are allowed",
			major, MinLibVersion, MaxLibVersion)
	}
	return nil
}

// ResolveEntry expands a shorthand entry name. ".Foo" declared by package
// "com.example" becomes "com.example.Foo"; any other name is already fully
// qualified.
func ResolveEntry(pkgName, entry string) string {
	entry = strings.TrimSpace(entry)
	if strings.HasPrefix(entry, ".") {
		return pkgName + entry
	}
	return entry
}
