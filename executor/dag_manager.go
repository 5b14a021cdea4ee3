// executor/dag_manager.go

package executor

type DAGManager interface {
	AddNode(name string, dependencies []string)
	// Sort returns the transitive closure of roots in dependency order,
	// each node exactly once. A node reached that was never added fails
	// with UnknownTargetError; a back edge fails with
	// CyclicDependencyError.
	Sort(roots ...string) ([]string, error)
}

type dagManager struct {
	graph map[string][]string
	nodes map[string]bool
}

func NewDAGManager() DAGManager {
	return &dagManager{
		graph: make(map[string][]string),
		nodes: make(map[string]bool),
	}
}

func (dm *dagManager) AddNode(name string, dependencies []string) {
	dm.graph[name] = dependencies
	dm.nodes[name] = true
}

const (
	unvisited = iota
	visiting
	visited
)

func (dm *dagManager) Sort(roots ...string) ([]string, error) {
	state := make(map[string]int)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if !dm.nodes[name] {
			return &UnknownTargetError{Target: name}
		}
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return &CyclicDependencyError{Target: name}
		}
		state[name] = visiting

		for _, dep := range dm.graph[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	return order, nil
}
