package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// GraphBuilder builds a directed acyclic graph from pipeline steps.
// It performs topological sorting and assigns execution levels so the
// scheduler can run independent steps in parallel.
type GraphBuilder struct {
	// steps maps step IDs to their steps
	steps map[string]*Step

	// adjacencyList maps step IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps step IDs to their dependencies
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// levels maps execution level to step IDs at that level
	levels [][]string
}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		steps:                make(map[string]*Step),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs an execution graph from steps.
// It validates dependencies, detects cycles, and computes execution levels.
func (b *GraphBuilder) BuildGraph(steps []Step) (*ExecutionGraph, error) {
	if len(steps) == 0 {
		return &ExecutionGraph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	if err := b.initialize(steps); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// initialize sets up the internal data structures from steps.
func (b *GraphBuilder) initialize(steps []Step) error {
	// First pass: index all steps
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			return NewPermanentError("pipeline step has empty ID", nil).
				WithCode(ErrCodeValidation)
		}

		if _, exists := b.steps[step.ID]; exists {
			return NewPermanentError(fmt.Sprintf("duplicate step ID: %s", step.ID), nil).
				WithCode(ErrCodeValidation)
		}

		if err := step.Kind.Validate(); err != nil {
			return NewPermanentError(fmt.Sprintf("step %s: %v", step.ID, err), nil).
				WithCode(ErrCodeValidation)
		}

		b.steps[step.ID] = step
		b.adjacencyList[step.ID] = make([]string, 0)
		b.reverseAdjacencyList[step.ID] = make([]string, 0)
		b.inDegree[step.ID] = 0
	}

	// Second pass: build adjacency lists and validate dependencies
	for _, step := range b.steps {
		for _, dep := range step.Dependencies {
			targetID := dep.TargetID

			if _, exists := b.steps[targetID]; !exists {
				return NewPermanentError(
					fmt.Sprintf("step %s depends on non-existent step %s", step.ID, targetID),
					nil,
				).WithCode(ErrCodeValidation).WithStep(step.ID)
			}

			// Edge runs from dependency to dependent: the dependency must
			// finish before the step can start.
			b.adjacencyList[targetID] = append(b.adjacencyList[targetID], step.ID)
			b.reverseAdjacencyList[step.ID] = append(b.reverseAdjacencyList[step.ID], targetID)
			b.inDegree[step.ID]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *GraphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	for _, id := range b.sortedStepIDs() {
		if !visited[id] {
			if cycle, err := b.detectCyclesUtil(id, visited, recStack, path); err != nil {
				return NewPermanentError(
					fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)),
					err,
				).WithCode(ErrCodeValidation)
			}
		}
	}

	return nil
}

// detectCyclesUtil performs DFS to detect cycles in the dependency graph.
func (b *GraphBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) ([]string, error) {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle, err := b.detectCyclesUtil(dependent, visited, recStack, path); err != nil {
				return cycle, err
			}
		} else if recStack[dependent] {
			// Found a cycle - construct the cycle path
			cycleStart := -1
			for i, id := range path {
				if id == dependent {
					cycleStart = i
					break
				}
			}
			if cycleStart >= 0 {
				return append(path[cycleStart:], dependent), fmt.Errorf("cycle detected")
			}
		}
	}

	recStack[nodeID] = false
	return nil, nil
}

// computeLevels assigns execution levels to each step using Kahn's
// algorithm. Steps at the same level have no ordering constraints between
// them and can run in parallel.
func (b *GraphBuilder) computeLevels() error {
	inDegreeCopy := make(map[string]int)
	for id, degree := range b.inDegree {
		inDegreeCopy[id] = degree
	}

	// Find all root nodes (steps with no dependencies)
	currentLevel := make([]string, 0)
	for _, id := range b.sortedStepIDs() {
		if inDegreeCopy[id] == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	if len(currentLevel) == 0 && len(b.steps) > 0 {
		return NewPermanentError("no root steps found - all steps have dependencies", nil).
			WithCode(ErrCodeValidation)
	}

	// Process nodes level by level
	processedCount := 0
	for len(currentLevel) > 0 {
		b.levels = append(b.levels, currentLevel)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, dependent := range b.adjacencyList[nodeID] {
				inDegreeCopy[dependent]--
				if inDegreeCopy[dependent] == 0 {
					nextLevel = append(nextLevel, dependent)
				}
			}
		}
		sort.Strings(nextLevel)

		currentLevel = nextLevel
	}

	// Should never trip if cycle detection worked
	if processedCount != len(b.steps) {
		return NewPermanentError("failed to process all steps - possible cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

// buildExecutionGraph creates the final ExecutionGraph structure.
func (b *GraphBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes: make(map[string]*GraphNode),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, stepIDs := range b.levels {
		for _, stepID := range stepIDs {
			step := b.steps[stepID]
			graph.Nodes[stepID] = &GraphNode{
				ID:           stepID,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[stepID],
				Dependents:   b.adjacencyList[stepID],
			}

			// Record the level on the step for the scheduler
			step.ExecutionOrder = level

			if level == 0 {
				graph.Roots = append(graph.Roots, stepID)
			}
		}
	}

	for _, id := range b.sortedStepIDs() {
		step := b.steps[id]
		for _, dep := range step.Dependencies {
			graph.Edges = append(graph.Edges, GraphEdge{
				From: dep.TargetID,
				To:   step.ID,
				Type: dep.Type,
			})
		}
	}

	return graph
}

// GetLevels returns the computed execution levels.
// Each level contains step IDs that can be executed in parallel.
func (b *GraphBuilder) GetLevels() [][]string {
	return b.levels
}

// sortedStepIDs returns the step IDs in sorted order so graph construction
// and DOT output are deterministic.
func (b *GraphBuilder) sortedStepIDs() []string {
	ids := make([]string, 0, len(b.steps))
	for id := range b.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToDOT generates a DOT format representation of the DAG for visualization.
// The output can be rendered with Graphviz tools.
func (b *GraphBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph BuildPipeline {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	// Group nodes by level for better visualization
	for level, stepIDs := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, stepID := range stepIDs {
			step := b.steps[stepID]
			label := fmt.Sprintf("%s\\n%s", step.Name, step.Kind)
			if step.Tool != "" {
				label = fmt.Sprintf("%s\\n%s: %s", step.Name, step.Kind, step.Tool)
			}
			color := getKindColor(step.Kind)

			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				stepID, label, color))
		}

		sb.WriteString("  }\n\n")
	}

	// Add edges with dependency types
	for _, id := range b.sortedStepIDs() {
		step := b.steps[id]
		for _, dep := range step.Dependencies {
			style := getDependencyStyle(dep.Type)
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [%s];\n",
				dep.TargetID, step.ID, style))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

// getKindColor returns a color for visualizing step kinds.
func getKindColor(kind StepKind) string {
	switch kind {
	case StepKindResolve:
		return "lightgray"
	case StepKindGenerate:
		return "lightyellow"
	case StepKindToolchain:
		return "lightblue"
	case StepKindPackage:
		return "lightgreen"
	case StepKindSimulate:
		return "plum"
	case StepKindDeploy:
		return "lightcoral"
	default:
		return "white"
	}
}

// getDependencyStyle returns a DOT style string for dependency types.
func getDependencyStyle(depType DependencyType) string {
	switch depType {
	case DependencyRequire:
		return "style=solid, color=black"
	case DependencyOrder:
		return "style=dotted, color=gray"
	default:
		return "style=solid, color=black"
	}
}

// ValidateGraph performs additional validation on a built graph.
func (b *GraphBuilder) ValidateGraph(graph *ExecutionGraph) error {
	if len(graph.Nodes) != len(b.steps) {
		return NewPermanentError("graph node count mismatch", nil).
			WithCode(ErrCodeInternal)
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.From), nil).
				WithCode(ErrCodeInternal)
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.To), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, rootID := range graph.Roots {
		node := graph.Nodes[rootID]
		if len(node.Dependencies) > 0 {
			return NewPermanentError(fmt.Sprintf("root step %s has dependencies", rootID), nil).
				WithCode(ErrCodeInternal)
		}
	}

	return nil
}
