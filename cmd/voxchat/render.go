package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// renderResponse prints an assistant message, highlighting fenced code blocks
// so they stand out from the prose around them.
func renderResponse(text string) {
	label := color.New(color.FgCyan, color.Bold).SprintFunc()
	code := color.New(color.FgYellow).SprintFunc()
	fence := color.New(color.Faint).SprintFunc()

	fmt.Print(label("assistant> "))

	inCode := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "```"):
			inCode = !inCode
			fmt.Println(fence(line))
		case inCode:
			fmt.Println(code(line))
		default:
			fmt.Println(line)
		}
	}
}
