package formatter

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TreeItem represents a single node in a tree display.
type TreeItem struct {
	Title  string
	Seq    int // flow-scoped creation order; 0 means don't display
	Depth  int
	IsLast bool
	// Ancestors records, per enclosing depth, whether that ancestor was the
	// last sibling, so its pipe can be dropped.
	Ancestors []bool
	Status    ParticipantStatus
	Detail    string
}

const (
	treeBranch = "├─ "
	treeCorner = "└─ "
	treePipe   = "│  "
	treeBlank  = "   "
)

// RenderTree renders items as an indented tree using box-drawing connectors.
// Accepted slots get a green ✔, open windows an amber ▶, removed slots are
// struck through in red. Detail badges are right-aligned.
func RenderTree(items []TreeItem) string {
	if len(items) == 0 {
		return ""
	}

	type lineInfo struct {
		content string
		badge   string
	}

	lines := make([]lineInfo, len(items))
	maxContentWidth := 0

	for idx, item := range items {
		var prefix strings.Builder
		if item.Depth > 0 {
			for i := 1; i < item.Depth; i++ {
				if i-1 < len(item.Ancestors) && item.Ancestors[i-1] {
					prefix.WriteString(treeBlank)
				} else {
					prefix.WriteString(treePipe)
				}
			}
			if item.IsLast {
				prefix.WriteString(treeCorner)
			} else {
				prefix.WriteString(treeBranch)
			}
		}

		title := item.Title
		if item.Seq > 0 {
			title = StyleDim.Render(fmt.Sprintf("#%d ", item.Seq)) + title
		}

		var marker string
		switch item.Status {
		case StatusAccepted:
			marker = StyleGreen.Render("✔ ")
		case StatusOpen:
			marker = StyleYellowBold.Render("▶ ")
			title = StyleYellowBold.Render(title)
		case StatusRemoved:
			marker = StyleRed.Render("✖ ")
			title = StyleDim.Strikethrough(true).Render(title)
		case StatusRegistered:
			marker = StyleBlue.Render("● ")
		default:
			marker = StyleDim.Render("○ ")
		}

		lines[idx].content = prefix.String() + marker + title
		if item.Detail != "" {
			lines[idx].badge = StyleBlue.Render(fmt.Sprintf("[ %s ]", item.Detail))
		}
		maxContentWidth = max(maxContentWidth, lipgloss.Width(lines[idx].content))
	}

	var b strings.Builder
	for _, li := range lines {
		if li.badge == "" {
			b.WriteString(li.content + "\n")
			continue
		}
		pad := maxContentWidth - lipgloss.Width(li.content)
		b.WriteString(li.content + strings.Repeat(" ", pad) + "  " + li.badge + "\n")
	}
	return b.String()
}
