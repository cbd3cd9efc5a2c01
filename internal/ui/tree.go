package ui

import (
	"fmt"
	"strings"

	"github.com/klauern/skillmaster/internal/model"
)

// Tree renders a package listing with box-drawing guides:
//
//	pdf/
//	├── SKILL.md (2.0 KB)
//	└── scripts/
//	    └── split.sh
//
// Directories end in "/". An empty listing renders as "".
func Tree(ds *model.DirectoryStructure) string {
	if ds.Empty() {
		return ""
	}
	root := ds.Root
	if root == "" {
		root = "."
	}

	var b strings.Builder
	b.WriteString(Bold(root + "/"))
	b.WriteString("\n")
	writeTree(&b, ds.Children, "")
	return b.String()
}

func writeTree(b *strings.Builder, entries []model.DirEntry, indent string) {
	for i, e := range entries {
		branch, next := "├── ", "│   "
		if i == len(entries)-1 {
			branch, next = "└── ", "    "
		}
		b.WriteString(Dim(indent + branch))
		if e.IsDir() {
			b.WriteString(Bold(e.Name + "/"))
		} else {
			b.WriteString(e.Name)
			if e.Size > 0 {
				b.WriteString(Dim(fmt.Sprintf(" (%.1f KB)", float64(e.Size)/1024)))
			}
		}
		b.WriteString("\n")
		if e.IsDir() {
			writeTree(b, e.Children, indent+next)
		}
	}
}
