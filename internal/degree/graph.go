// Package degree implements the degree requirement evaluator: the
// prerequisite graph, requirement satisfaction over the template
// variants, conditional path planning and the degree audit rollup. All
// functions are pure over materialized snapshots; persistence and
// transport stay with the callers.
package degree

import "sort"

// Course is a catalog course snapshot used during evaluation.
type Course struct {
	ID          string
	SubjectCode string
	Number      int
	Title       string
	CreditHours float64
}

// Level returns the course's level band, e.g. 301 -> 300.
func (c Course) Level() int {
	return CourseLevel(c.Number)
}

// CompletedCourse is a finished course fact with its final grade.
type CompletedCourse struct {
	CourseID    string
	SubjectCode string
	Number      int
	CreditHours float64
	Grade       string
	TermCode    string
}

// Level returns the completed course's level band.
func (c CompletedCourse) Level() int {
	return CourseLevel(c.Number)
}

// PrerequisiteLink is a directed course -> prerequisite edge. An empty
// PrereqID declares the course as a node without requiring anything.
// Position orders edges for display and carries no graph semantics.
type PrerequisiteLink struct {
	CourseID string
	PrereqID string
	Position int
}

// PrereqGraph is an adjacency map from course to its prerequisites.
type PrereqGraph struct {
	adjacency map[string][]string
	nodes     []string
}

// BuildGraph assembles the prerequisite graph from directed links,
// preserving input edge order per course.
func BuildGraph(links []PrerequisiteLink) *PrereqGraph {
	g := &PrereqGraph{adjacency: make(map[string][]string)}
	seen := make(map[string]bool)

	addNode := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		g.nodes = append(g.nodes, id)
	}

	for _, link := range links {
		addNode(link.CourseID)
		addNode(link.PrereqID)
		if link.CourseID == "" || link.PrereqID == "" {
			continue
		}
		g.adjacency[link.CourseID] = append(g.adjacency[link.CourseID], link.PrereqID)
	}

	return g
}

// Prerequisites returns the ordered prerequisite list for a course.
func (g *PrereqGraph) Prerequisites(courseID string) []string {
	return g.adjacency[courseID]
}

// Nodes returns every course mentioned by the graph in first-seen order.
func (g *PrereqGraph) Nodes() []string {
	return g.nodes
}

// --- Cycle detection ---

const (
	colorUnvisited = 0
	colorInStack   = 1
	colorDone      = 2
)

// DetectCycle runs a three-color depth-first search and returns the
// first cycle found as an ordered course list whose first and last
// elements are the re-encountered course. Returns nil when the graph is
// acyclic. Detection completes without panicking on any input.
func (g *PrereqGraph) DetectCycle() []string {
	color := make(map[string]int, len(g.nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = colorInStack
		path = append(path, id)

		for _, prereq := range g.adjacency[id] {
			switch color[prereq] {
			case colorInStack:
				start := 0
				for i, node := range path {
					if node == prereq {
						start = i
						break
					}
				}
				cycle = append(cycle, path[start:]...)
				cycle = append(cycle, prereq)
				return true
			case colorUnvisited:
				if visit(prereq) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = colorDone
		return false
	}

	roots := append([]string(nil), g.nodes...)
	sort.Strings(roots)
	for _, id := range roots {
		if color[id] != colorUnvisited {
			continue
		}
		path = path[:0]
		if visit(id) {
			return cycle
		}
	}

	return nil
}

// --- Topological leveling ---

// Levels partitions courses into topological levels via Kahn's
// algorithm: level i contains every course whose prerequisites all live
// in levels below i. Returns nil when the graph contains a cycle.
func (g *PrereqGraph) Levels() [][]string {
	// In-degree here counts unresolved prerequisites per course.
	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string)
	for _, id := range g.nodes {
		indegree[id] = len(g.adjacency[id])
		for _, prereq := range g.adjacency[id] {
			dependents[prereq] = append(dependents[prereq], id)
		}
	}

	frontier := make([]string, 0, len(g.nodes))
	for _, id := range g.nodes {
		if indegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	var levels [][]string
	placed := 0
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		placed += len(frontier)

		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}

	if placed != len(g.nodes) {
		return nil
	}
	return levels
}

// SemesterMap assigns each course a 1-based recommended semester equal
// to its topological level plus one. Returns nil for cyclic graphs.
func (g *PrereqGraph) SemesterMap() map[string]int {
	levels := g.Levels()
	if levels == nil {
		return nil
	}
	semesters := make(map[string]int, len(g.nodes))
	for i, level := range levels {
		for _, id := range level {
			semesters[id] = i + 1
		}
	}
	return semesters
}
