package common

import (
	"fmt"
	"strings"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintHeader prints a title framed by = rules.
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", width))
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintSection opens a boxed section with a title and key/value lines.
func PrintSection(title string, fields ...string) {
	fmt.Printf("\n┌─ %s\n", title)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Printf("│  %s: %s\n", fields[i], fields[i+1])
	}
	fmt.Println("├" + strings.Repeat("─", 78))
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// ShortId trims long ids for tabular output.
func ShortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
