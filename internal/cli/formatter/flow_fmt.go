package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/tree"
)

// Names maps user ids to display names. Missing ids render as a short id.
type Names map[string]string

func (n Names) of(userID string) string {
	if name, ok := n[userID]; ok && name != "" {
		return name
	}
	if len(userID) > 8 {
		return userID[:8]
	}
	return userID
}

// FormatFlow renders the flow header box followed by its participant tree.
func FormatFlow(flow *domain.Flow, project *domain.Project, arena *tree.Arena, names Names, now time.Time) string {
	var b strings.Builder

	var summary strings.Builder
	fmt.Fprintf(&summary, "%s  %s\n", Bold(project.Name), Dim("["+project.DisplayID()+"]"))
	fmt.Fprintf(&summary, "%s\n\n", FlowStateBadge(flow.State))
	fmt.Fprintf(&summary, "Type         %s\n", flow.RegistrationType)
	if flow.IsOneChildTree() {
		fmt.Fprintf(&summary, "Group size   %d\n", flow.HowMuchUsersInOneGroup)
	}
	if maxLevel := flow.MaxLevel(); maxLevel >= 0 {
		fmt.Fprintf(&summary, "Level        %d of %d\n", flow.CurrentLevel, maxLevel)
	} else {
		fmt.Fprintf(&summary, "Level        %d\n", flow.CurrentLevel)
	}
	fmt.Fprintf(&summary, "Registration %s\n", domain.FormatHourMinute(flow.TimeForRegistration))
	fmt.Fprintf(&summary, "Accept       %s\n", domain.FormatHourMinute(flow.TimeForAccept))
	fmt.Fprintf(&summary, "Opens from   %s", Timestamp(flow.MustBeRegisteredFrom))
	if flow.Comments != "" {
		fmt.Fprintf(&summary, "\n\n%s", Dim(flow.Comments))
	}
	b.WriteString(RenderBox("flow "+shortID(flow.ID), summary.String()))
	b.WriteString("\n\n")

	items := TreeItems(arena, names, now)
	if len(items) == 0 {
		b.WriteString(Dim("No participants yet."))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(Header("Participants"))
	b.WriteString("\n")
	b.WriteString(RenderTree(items))
	return b.String()
}

// TreeItems flattens the arena depth-first in sibling order.
func TreeItems(arena *tree.Arena, names Names, now time.Time) []TreeItem {
	var items []TreeItem
	var visit func(parentID *string, depth int, ancestors []bool)
	visit = func(parentID *string, depth int, ancestors []bool) {
		children := arena.ChildrenOf(parentID)
		for i, p := range children {
			last := i == len(children)-1
			items = append(items, TreeItem{
				Title:     names.of(p.UserID),
				Seq:       p.Seq,
				Depth:     depth,
				IsLast:    last,
				Ancestors: ancestors,
				Status:    StatusOf(p, now),
				Detail:    detail(p, now),
			})
			id := p.ID
			next := append(append([]bool(nil), ancestors...), last)
			visit(&id, depth+1, next)
		}
	}
	visit(nil, 0, nil)
	return items
}

func detail(p *domain.Participant, now time.Time) string {
	switch StatusOf(p, now) {
	case StatusRemoved:
		if p.DeletedReason != "" {
			return "removed: " + p.DeletedReason
		}
		return "removed"
	case StatusAccepted:
		return "accepted " + Timestamp(*p.AcceptedAt)
	case StatusRegistered:
		return "registered as " + p.Referral.Login
	case StatusOpen:
		return "closes " + RelativeFrom(p.AcceptStageStartsAt, now)
	default:
		return "opens " + RelativeFrom(p.MustBeRegisteredFrom, now)
	}
}

// FormatParticipants renders a flat participant table.
func FormatParticipants(ps []*domain.Participant, names Names, now time.Time) string {
	headers := []string{"#", "ID", "USER", "LEVEL", "STATUS", "WINDOW"}
	rows := make([][]string, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, []string{
			strconv.Itoa(p.Seq),
			shortID(p.ID),
			names.of(p.UserID),
			strconv.Itoa(p.Level),
			string(StatusOf(p, now)),
			Window(p, now),
		})
	}
	return RenderTable(headers, rows)
}

// FormatProjectList renders projects as a table.
func FormatProjectList(projects []*domain.Project) string {
	headers := []string{"ID", "NAME", "STATUS"}
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.DisplayID(), p.Name, StatusPill(p.Status)})
	}
	return RenderTable(headers, rows)
}

// FormatUserList renders users as a table in the given order.
func FormatUserList(users []*domain.User) string {
	headers := []string{"ID", "NAME", "EMAIL", "ROLE"}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		role := Dim("member")
		if u.IsAdmin {
			role = StylePurple.Render("admin")
		}
		rows = append(rows, []string{u.ID, u.Name, u.Email, role})
	}
	return RenderTable(headers, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
