package degree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainLinks() []PrerequisiteLink {
	return []PrerequisiteLink{
		{CourseID: "101"},
		{CourseID: "201", PrereqID: "101"},
		{CourseID: "301", PrereqID: "201"},
	}
}

func TestBuildGraphCollectsNodesAndEdges(t *testing.T) {
	g := BuildGraph(chainLinks())

	assert.ElementsMatch(t, []string{"101", "201", "301"}, g.Nodes())
	assert.Empty(t, g.Prerequisites("101"))
	assert.Equal(t, []string{"101"}, g.Prerequisites("201"))
	assert.Equal(t, []string{"201"}, g.Prerequisites("301"))
}

func TestLevelsOrdersChain(t *testing.T) {
	g := BuildGraph(chainLinks())

	require.Nil(t, g.DetectCycle())
	assert.Equal(t, [][]string{{"101"}, {"201"}, {"301"}}, g.Levels())
	assert.Equal(t, map[string]int{"101": 1, "201": 2, "301": 3}, g.SemesterMap())
}

func TestDetectCycleReturnsPath(t *testing.T) {
	links := append(chainLinks(), PrerequisiteLink{CourseID: "101", PrereqID: "301"})
	g := BuildGraph(links)

	cycle := g.DetectCycle()
	require.NotNil(t, cycle)
	require.Len(t, cycle, 4)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.ElementsMatch(t, []string{"101", "201", "301"}, cycle[:3])

	// Every consecutive pair must be a genuine edge.
	for i := 0; i < len(cycle)-1; i++ {
		assert.Contains(t, g.Prerequisites(cycle[i]), cycle[i+1])
	}

	assert.Nil(t, g.Levels())
	assert.Nil(t, g.SemesterMap())
}

func TestLevelsPlacesEveryEdgeBelow(t *testing.T) {
	links := []PrerequisiteLink{
		{CourseID: "401", PrereqID: "301"},
		{CourseID: "401", PrereqID: "302"},
		{CourseID: "301", PrereqID: "201"},
		{CourseID: "302", PrereqID: "201"},
		{CourseID: "201", PrereqID: "101"},
		{CourseID: "102"},
	}
	g := BuildGraph(links)

	levels := g.Levels()
	require.NotNil(t, levels)

	levelOf := make(map[string]int)
	total := 0
	for i, level := range levels {
		for _, id := range level {
			levelOf[id] = i
			total++
		}
	}
	assert.Equal(t, len(g.Nodes()), total)

	for _, id := range g.Nodes() {
		for _, prereq := range g.Prerequisites(id) {
			assert.Greater(t, levelOf[id], levelOf[prereq], "edge %s -> %s", id, prereq)
		}
	}
}

func TestBuildGraphSkipsBlankEdges(t *testing.T) {
	g := BuildGraph([]PrerequisiteLink{{CourseID: "101", PrereqID: ""}, {PrereqID: "999"}})

	assert.ElementsMatch(t, []string{"101", "999"}, g.Nodes())
	assert.Empty(t, g.Prerequisites("101"))
	assert.Nil(t, g.DetectCycle())
}

func TestDetectCycleSelfLoop(t *testing.T) {
	g := BuildGraph([]PrerequisiteLink{{CourseID: "101", PrereqID: "101"}})

	cycle := g.DetectCycle()
	require.Equal(t, []string{"101", "101"}, cycle)
}

func TestLevelsEmptyGraph(t *testing.T) {
	g := BuildGraph(nil)

	assert.Empty(t, g.Levels())
	assert.Empty(t, g.SemesterMap())
}
