package internal

import (
	"regexp"
)

// NetCDF names start with a letter, digit or underscore and may contain
// any character after that except control characters and slash. They
// may not end with whitespace or be a CDL type keyword.
var (
	nameRe     = regexp.MustCompile(`^[\pL\pN_][^\pC/]*$`)
	antiNameRe = regexp.MustCompile(`(\pZ|^(u?byte|char|string|u?short|u?int|u?int64|float|double|enum|opaque|compound))$`)
)

// IsValidNetCDFName returns true if name may appear in a NetCDF header.
func IsValidNetCDFName(name string) bool {
	return nameRe.MatchString(name) && !antiNameRe.MatchString(name)
}
