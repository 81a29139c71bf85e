package engine

import (
	"fmt"

	"github.com/shaiso/stepflow/internal/domain"
)

// Node — узел графа: один шаг job.
type Node struct {
	// Name — имя шага.
	Name string

	// Step — определение шага из JobSpec.
	Step domain.StepDef

	// DependsOn — узлы, от которых зависит этот узел (needs).
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// InDegree — количество входящих рёбер.
func (n *Node) InDegree() int {
	return len(n.DependsOn)
}

// OutDegree — количество исходящих рёбер.
func (n *Node) OutDegree() int {
	return len(n.Dependents)
}

// Graph — направленный ациклический граф шагов.
//
// Ребро идёт от зависимости к зависимому шагу. После BuildGraph граф
// не меняется и может читаться из разных горутин без блокировок.
type Graph struct {
	nodes     map[string]*Node
	names     []string // порядок объявления шагов
	starts    []string
	terminals []string
	order     []string
}

// BuildGraph строит граф из определений шагов.
//
// Возвращает *ValidationError для дубликатов и неизвестных needs
// и *CycleError, если шаг транзитивно зависит от самого себя.
func BuildGraph(steps []domain.StepDef) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*Node, len(steps)),
		names: make([]string, 0, len(steps)),
	}

	// Первый проход: создаём все узлы
	for _, step := range steps {
		if step.Name == "" {
			return nil, NewValidationError("", "name", "step has empty name", ErrEmptyStepName)
		}
		if _, exists := g.nodes[step.Name]; exists {
			return nil, NewValidationError(step.Name, "name",
				fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
		}
		g.nodes[step.Name] = &Node{Name: step.Name, Step: step}
		g.names = append(g.names, step.Name)
	}

	// Второй проход: связываем узлы по needs
	for _, name := range g.names {
		node := g.nodes[name]
		for _, dep := range node.Step.Needs {
			depNode, exists := g.nodes[dep]
			if !exists {
				return nil, NewValidationError(name, "needs",
					fmt.Sprintf("needs unknown step: %s", dep), ErrMissingDependency)
			}
			g.addEdge(depNode, node)
		}
	}

	if path := g.findCycle(); path != nil {
		return nil, &CycleError{Path: path}
	}

	for _, name := range g.names {
		node := g.nodes[name]
		if node.InDegree() == 0 {
			g.starts = append(g.starts, name)
		}
		if node.OutDegree() == 0 {
			g.terminals = append(g.terminals, name)
		}
	}
	g.order = g.topologicalSort()

	return g, nil
}

// addEdge добавляет ребро from → to, игнорируя дубликаты в needs.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep == from {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
}

// findCycle ищет обратное ребро обходом в глубину.
// Возвращает путь цикла или nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.nodes))
	parent := make(map[string]string, len(g.nodes))
	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		color[name] = gray
		for _, next := range g.nodes[name].Dependents {
			switch color[next.Name] {
			case white:
				parent[next.Name] = name
				if dfs(next.Name) {
					return true
				}
			case gray:
				// Обратное ребро name → next: восстанавливаем next ... name → next
				reversed := []string{next.Name, name}
				for cur := name; cur != next.Name; {
					cur = parent[cur]
					reversed = append(reversed, cur)
				}
				cycle = make([]string, len(reversed))
				for i, n := range reversed {
					cycle[len(reversed)-1-i] = n
				}
				return true
			}
		}
		color[name] = black
		return false
	}

	for _, name := range g.names {
		if color[name] == white && dfs(name) {
			return cycle
		}
	}
	return nil
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Вызывается только для ацикличного графа.
func (g *Graph) topologicalSort() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for name, node := range g.nodes {
		inDegree[name] = node.InDegree()
	}

	queue := make([]string, len(g.starts))
	copy(queue, g.starts)

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, dependent := range g.nodes[name].Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent.Name)
			}
		}
	}

	return order
}

// Starts возвращает шаги без зависимостей.
func (g *Graph) Starts() []string {
	return append([]string(nil), g.starts...)
}

// Terminals возвращает шаги, от которых никто не зависит.
func (g *Graph) Terminals() []string {
	return append([]string(nil), g.terminals...)
}

// Order возвращает топологический порядок шагов.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// InDegree возвращает количество зависимостей шага (0 для неизвестного).
func (g *Graph) InDegree(name string) int {
	if node, ok := g.nodes[name]; ok {
		return node.InDegree()
	}
	return 0
}

// OutDegree возвращает количество зависимых шагов (0 для неизвестного).
func (g *Graph) OutDegree(name string) int {
	if node, ok := g.nodes[name]; ok {
		return node.OutDegree()
	}
	return 0
}

// Has проверяет наличие шага в графе.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Node возвращает узел по имени.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Ready возвращает шаги, готовые к запуску.
//
// Шаг готов, если его статус INIT и все его needs в статусе SUCCESS.
// Отсутствующий в statuses шаг считается INIT. Порядок — порядок объявления.
func (g *Graph) Ready(statuses map[string]domain.StepStatus) []string {
	ready := make([]string, 0)

	for _, name := range g.names {
		if status, ok := statuses[name]; ok && status != domain.StepStatusInit {
			continue
		}

		allDepsSucceeded := true
		for _, dep := range g.nodes[name].DependsOn {
			if statuses[dep.Name] != domain.StepStatusSuccess {
				allDepsSucceeded = false
				break
			}
		}

		if allDepsSucceeded {
			ready = append(ready, name)
		}
	}

	return ready
}

// IsComplete проверяет, что все шаги в статусе SUCCESS.
func (g *Graph) IsComplete(statuses map[string]domain.StepStatus) bool {
	for _, name := range g.names {
		if statuses[name] != domain.StepStatusSuccess {
			return false
		}
	}
	return true
}
