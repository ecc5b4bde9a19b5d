package natsort

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLess(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"numeric runs compare as integers", "file2", "file10", true},
		{"reverse of numeric comparison", "file10", "file2", false},
		{"plain lexical", "a.md", "b.md", true},
		{"equal strings", "a1", "a1", false},
		{"digits before trailing text", "a1", "a1x", true},
		{"case insensitive", "A2", "a10", true},
		{"multiple digit runs", "ch2-p9", "ch2-p10", true},
		{"leading zeros equal value", "a01", "a1", false},
		{"prefix orders first", "a", "a1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Less(tt.a, tt.b))
		})
	}
}

func TestSort(t *testing.T) {
	paths := []string{
		"/docs/a10.pdf",
		"/docs/a2.pdf",
		"/docs/a1.pdf",
	}
	Sort(paths)
	assert.Equal(t, []string{"/docs/a1.pdf", "/docs/a2.pdf", "/docs/a10.pdf"}, paths)
}

func TestSortUsesBaseName(t *testing.T) {
	// Directory names must not affect the ordering of the files inside.
	paths := []string{
		"/z-folder/b.md",
		"/a-folder/c.md",
		"/m-folder/a.md",
	}
	Sort(paths)
	assert.Equal(t, []string{"/m-folder/a.md", "/z-folder/b.md", "/a-folder/c.md"}, paths)
}
