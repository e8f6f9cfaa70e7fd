package tasks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/rankwatch/internal/models"
)

// Selection names the tasks a run covers.
type Selection struct {
	All bool
	IDs []string
}

// SelectTasks resolves sel against the configured tasks.
//
// Explicit ids keep their first-seen order and collapse duplicates. Ids with no matching task are returned in
// missing. All takes every task in configuration order.
func SelectTasks(all []models.Task, sel Selection) (selected []models.Task, missing []string) {
	byID := make(map[string]models.Task, len(all))
	var order []string
	for _, t := range all {
		if _, dup := byID[t.ID]; dup {
			continue
		}
		byID[t.ID] = t
		order = append(order, t.ID)
	}

	ids := sel.IDs
	if sel.All {
		ids = order
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		selected = append(selected, t)
	}
	return selected, missing
}

// Group is a set of tasks served by one extraction. The first member is the representative.
type Group struct {
	Key      string
	Provider models.Provider
	Members  []models.Task
}

// Representative is the member whose query context drives the extraction.
func (g Group) Representative() models.Task {
	return g.Members[0]
}

// DisplayName labels the group in status events.
func (g Group) DisplayName() string {
	rep := g.Representative()
	switch {
	case len(g.Members) == 1:
		return rep.DisplayName()
	case g.Provider == models.ProviderFeaturePage:
		return fmt.Sprintf("%s (%d targets)", rep.PageLabel(), len(g.Members))
	case g.Provider == models.ProviderMapPack:
		return fmt.Sprintf("[%s] %s (%d targets)", rep.Location, rep.Keyword, len(g.Members))
	default:
		return rep.DisplayName()
	}
}

// GroupKey is the query context a task shares with the rest of its group.
//
// Directory and web search tasks are keyed by id, so they are never grouped.
func GroupKey(t models.Task) string {
	switch t.Provider {
	case models.ProviderFeaturePage:
		return string(t.Provider) + "|" + models.NormalizePageURL(t.URL)
	case models.ProviderMapPack:
		return string(t.Provider) + "|" + strings.TrimSpace(t.Location) + "|" + strings.TrimSpace(t.Keyword)
	default:
		return string(t.Provider) + "#" + t.ID
	}
}

// GroupTasks partitions tasks into groups ordered by provider, then by first appearance.
func GroupTasks(tasks []models.Task) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, t := range tasks {
		key := GroupKey(t)
		if i, ok := index[key]; ok {
			groups[i].Members = append(groups[i].Members, t)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Group{Key: key, Provider: t.Provider, Members: []models.Task{t}})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Provider.Order() < groups[j].Provider.Order()
	})
	return groups
}

// TaskCount is the number of member tasks across groups.
func TaskCount(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Members)
	}
	return n
}
