package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/recinq/reduceai/internal/pipeline"
)

// ApproveGeneratedItems renders the AI-generated candidate item list and
// lets the operator deselect any before they flow into the map phase —
// the human checkpoint spec §4.5's generate input requires (Open
// Question 1: the engine never runs a generate input unattended).
func ApproveGeneratedItems(items []map[string]any) (pipeline.GenerateApproval, error) {
	if len(items) == 0 {
		return pipeline.GenerateApproval{}, fmt.Errorf("display: no generated items to approve")
	}

	options := make([]huh.Option[int], len(items))
	selected := make([]int, len(items))
	for i, item := range items {
		options[i] = huh.NewOption(summarizeItem(item), i).Selected(true)
		selected[i] = i
	}

	var kept []int
	multiSelect := huh.NewMultiSelect[int]().
		Title(fmt.Sprintf("Approve %d generated item(s)", len(items))).
		Description("Deselect any item you don't want mapped").
		Options(options...).
		Value(&kept)

	form := huh.NewForm(huh.NewGroup(multiSelect)).WithTheme(Theme())
	if err := form.Run(); err != nil {
		return pipeline.GenerateApproval{}, fmt.Errorf("display: approval form: %w", err)
	}

	sort.Ints(kept)
	approved := make([]map[string]any, 0, len(kept))
	for _, idx := range kept {
		approved = append(approved, items[idx])
	}
	return pipeline.GenerateApproval{Items: approved}, nil
}

func summarizeItem(item map[string]any) string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, item[k]))
	}
	label := strings.Join(parts, "  ")
	return lipgloss.NewStyle().Render(label)
}
