package menu

import (
	"strings"

	"github.com/shanehull/terpalert/internal/types"
)

// Menu is the day's combined menu: each item once, in first-seen order,
// with the halls serving it in hall processing order.
type Menu struct {
	items []*types.AggregatedItem
	index map[string]*types.AggregatedItem
}

func NewMenu() *Menu {
	return &Menu{index: make(map[string]*types.AggregatedItem)}
}

// Aggregate merges per-hall menus. Halls are processed in the given order;
// a hall listed twice appears twice in its items' hall lists.
func Aggregate(halls []types.HallMenu) *Menu {
	m := NewMenu()
	for _, h := range halls {
		for _, name := range h.Items.Items() {
			m.add(h.Hall, name)
		}
	}
	return m
}

func (m *Menu) add(hall, name string) {
	if item, ok := m.index[name]; ok {
		item.Halls = append(item.Halls, hall)
		return
	}
	item := &types.AggregatedItem{Name: name, Halls: []string{hall}}
	m.index[name] = item
	m.items = append(m.items, item)
}

func (m *Menu) Len() int {
	return len(m.items)
}

func (m *Menu) Get(name string) (*types.AggregatedItem, bool) {
	item, ok := m.index[name]
	return item, ok
}

// Items returns the aggregated items in insertion order.
func (m *Menu) Items() []*types.AggregatedItem {
	out := make([]*types.AggregatedItem, len(m.items))
	copy(out, m.items)
	return out
}

// Lines renders each item as "{item} at {hall1}, {hall2}".
func (m *Menu) Lines() []string {
	lines := make([]string, 0, len(m.items))
	for _, item := range m.items {
		lines = append(lines, item.String())
	}
	return lines
}

func (m *Menu) String() string {
	var sb strings.Builder
	for _, line := range m.Lines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
