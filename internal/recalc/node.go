package recalc

// Rule recomputes part of a node when one of its trigger attributes changes.
type Rule struct {
	name   string
	run    func()
	queued bool
}

// Name returns the rule name.
func (r *Rule) Name() string {
	return r.name
}

// Node is one entity's attribute set inside an engine.
type Node struct {
	engine *Engine
	rules  map[Attr][]*Rule
}

// NewNode registers a node with the engine.
func (e *Engine) NewNode() *Node {
	return &Node{engine: e, rules: make(map[Attr][]*Rule)}
}

// Engine returns the owning engine.
func (n *Node) Engine() *Engine {
	return n.engine
}

// On declares that run recomputes when any of attrs changes.
func (n *Node) On(name string, run func(), attrs ...Attr) *Rule {
	r := &Rule{name: name, run: run}
	for _, attr := range attrs {
		n.rules[attr] = append(n.rules[attr], r)
	}
	return r
}

// Changed schedules every rule subscribed to attrs.
func (n *Node) Changed(attrs ...Attr) {
	for _, attr := range attrs {
		for _, r := range n.rules[attr] {
			n.engine.Schedule(r)
		}
	}
}
