// Package cpe provides a minimal CPE reference value type.
//
// The engine treats CPEs as opaque identities keyed by their URI; only
// enough of the grammar is checked to reject strings that are not CPEs at
// all. Full well-formed-name matching is outside this engine's scope.
package cpe

import (
	"strings"

	"github.com/exploopio/vulngraph/pkg/errors"
)

// CPE is a validated CPE reference in its source form.
type CPE struct {
	uri string
}

// Parse validates a CPE 2.2 URI ("cpe:/...") or CPE 2.3 formatted string
// ("cpe:2.3:...").
func Parse(ref string) (CPE, error) {
	switch {
	case strings.HasPrefix(ref, "cpe:2.3:"):
		// part:vendor:product:version:update:edition:language:sw_edition:
		// target_sw:target_hw:other, after the "cpe:2.3" prefix.
		if strings.Count(ref, ":") != 12 {
			return CPE{}, errors.InvalidReference("cpe.Parse", ref, nil)
		}
		return CPE{uri: ref}, nil
	case strings.HasPrefix(ref, "cpe:/"):
		if len(ref) <= len("cpe:/") {
			return CPE{}, errors.InvalidReference("cpe.Parse", ref, nil)
		}
		return CPE{uri: ref}, nil
	default:
		return CPE{}, errors.InvalidReference("cpe.Parse", ref, nil)
	}
}

// MustParse is Parse for tests and static references; it panics on error.
func MustParse(ref string) CPE {
	c, err := Parse(ref)
	if err != nil {
		panic(err)
	}
	return c
}

// URI returns the CPE in its source form.
func (c CPE) URI() string {
	return c.uri
}

// String implements fmt.Stringer.
func (c CPE) String() string {
	return c.uri
}
