package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"hoptrace/internal/models"
	"hoptrace/internal/ssh"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	good      = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	bad       = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight)

	successStyle = lipgloss.NewStyle().
			Foreground(good).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(bad).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(subtle)

	hopStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// renderStatus renders the stored probe status as a colored badge.
func renderStatus(status models.Status) string {
	switch status {
	case models.StatusOnline:
		return successStyle.Render("online")
	case models.StatusOffline:
		return errorStyle.Render("offline")
	default:
		return dimStyle.Render("unknown")
	}
}

// renderOutcome renders one host's search outcome as it arrives.
func renderOutcome(o ssh.SearchOutcome) string {
	var b strings.Builder

	header := fmt.Sprintf("%s (%s)", o.Host, o.Duration.Truncate(time.Millisecond))
	if o.Err != nil {
		fmt.Fprintf(&b, "%s %s: %v\n", errorStyle.Render("✗"), header, o.Err)
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s: %d matches in %d files\n",
		successStyle.Render("✓"), header, o.TotalMatches, len(o.Files))
	for _, f := range o.Files {
		fmt.Fprintf(&b, "    %6d  %s\n", f.MatchCount, f.Path)
	}
	return b.String()
}

// renderTree renders the discovered chain as an indented tree.
func renderTree(nodes []*ssh.ChainNode, depth int) string {
	var b strings.Builder
	indent := strings.Repeat("  ", depth)
	for _, node := range nodes {
		fmt.Fprintf(&b, "%s%s %s %s %s\n",
			indent,
			hopStyle.Render(node.HopID),
			node.Addr,
			dimStyle.Render(node.Filename),
			dimStyle.Render(node.LogPath),
		)
		b.WriteString(renderTree(node.Children, depth+1))
	}
	return b.String()
}
