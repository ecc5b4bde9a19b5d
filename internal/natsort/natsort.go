// Package natsort orders file paths the way a human reads them: embedded
// digit runs compare as integers, so file2 sorts before file10.
package natsort

import (
	"path/filepath"
	"sort"
	"strings"
)

// Sort orders paths in place by the natural order of their base names.
func Sort(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return Less(filepath.Base(paths[i]), filepath.Base(paths[j]))
	})
}

// Less reports whether a orders before b under natural comparison. Letters
// compare case-insensitively; digit runs compare by numeric value, with
// leading zeros breaking ties in favor of the shorter run.
func Less(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for len(a) > 0 && len(b) > 0 {
		ad, an := splitLeading(a)
		bd, bn := splitLeading(b)

		if isDigits(ad) && isDigits(bd) {
			at, bt := strings.TrimLeft(ad, "0"), strings.TrimLeft(bd, "0")
			if len(at) != len(bt) {
				return len(at) < len(bt)
			}
			if at != bt {
				return at < bt
			}
			// Same numeric value: shorter (fewer leading zeros) first.
			if len(ad) != len(bd) {
				return len(ad) < len(bd)
			}
		} else if ad != bd {
			return ad < bd
		}

		a, b = an, bn
	}
	return len(a) < len(b)
}

// splitLeading cuts off the leading run of digits or non-digits.
func splitLeading(s string) (run, rest string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isDigits(s string) bool {
	return len(s) > 0 && isDigit(s[0])
}
