package game

import (
	"fmt"
	"slices"
)

// ResolveName returns name if it is unused, otherwise the first free
// suffixed variant: name(2), name(3), and so on. A collision never rejects
// a join.
func ResolveName(name string, taken []string) string {
	resolved := name
	for i := 2; slices.Contains(taken, resolved); i++ {
		resolved = fmt.Sprintf("%s(%d)", name, i)
	}
	return resolved
}
