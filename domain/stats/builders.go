package stats

import "sort"

// Column labels of every infection table
const (
	ColumnInfected   = "infected"
	ColumnUninfected = "uninfected"
)

// InfectionTableFromCounts builds a (group × infected/uninfected) table with
// rows sorted by group name
func InfectionTableFromCounts(counts map[string][2]int) ContingencyTable {
	names := sortedKeys(counts)
	table := ContingencyTable{
		RowLabels:    names,
		ColumnLabels: []string{ColumnInfected, ColumnUninfected},
		Counts:       make([][]int, len(names)),
	}
	for i, name := range names {
		c := counts[name]
		table.Counts[i] = []int{c[0], c[1]}
	}
	return table
}

// GroupSamplesFromMap converts grouped values into samples sorted by name.
// Values keep their order within a group.
func GroupSamplesFromMap(values map[string][]float64) []GroupSample {
	names := sortedKeys(values)
	samples := make([]GroupSample, len(names))
	for i, name := range names {
		samples[i] = GroupSample{Name: name, Values: values[name]}
	}
	return samples
}

// SurvivalGroupsFromMap converts grouped records into survival groups sorted by name
func SurvivalGroupsFromMap(records map[string][]SurvivalRecord) []SurvivalGroup {
	names := sortedKeys(records)
	groups := make([]SurvivalGroup, len(names))
	for i, name := range names {
		groups[i] = SurvivalGroup{Name: name, Records: records[name]}
	}
	return groups
}

// ProportionGroups turns each row of a two-column table into successes/trials,
// counting the first column as successes
func (t ContingencyTable) ProportionGroups() []ProportionGroup {
	groups := make([]ProportionGroup, 0, t.Rows())
	for i, row := range t.Counts {
		if len(row) != 2 {
			continue
		}
		name := ""
		if i < len(t.RowLabels) {
			name = t.RowLabels[i]
		}
		groups = append(groups, ProportionGroup{Name: name, Successes: row[0], Trials: row[0] + row[1]})
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
