package ai

// Status is the result of a behavior tree node tick.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "running"
	}
}

// Node is a single node in a behavior tree.
type Node interface {
	Tick(ctx *Context) Status
}

// ---- Composite nodes ----

// Selector succeeds as soon as one child succeeds (logical OR).
// Children are tried strictly in order, so it doubles as a priority list.
type Selector struct {
	Children []Node
}

func (s *Selector) Tick(ctx *Context) Status {
	for _, c := range s.Children {
		if ctx.Done() {
			return StatusFailure
		}
		switch c.Tick(ctx) {
		case StatusSuccess:
			return StatusSuccess
		case StatusRunning:
			return StatusRunning
		}
	}
	return StatusFailure
}

// Sequence succeeds only when all children succeed (logical AND).
type Sequence struct {
	Children []Node
}

func (s *Sequence) Tick(ctx *Context) Status {
	for _, c := range s.Children {
		switch c.Tick(ctx) {
		case StatusFailure:
			return StatusFailure
		case StatusRunning:
			return StatusRunning
		}
	}
	return StatusSuccess
}

// ---- Leaf nodes ----

// ConditionNode evaluates a boolean predicate.
type ConditionNode struct {
	Name string
	Fn   func(*Context) bool
}

func (cn *ConditionNode) Tick(ctx *Context) Status {
	if cn.Fn(ctx) {
		return StatusSuccess
	}
	return StatusFailure
}

// ActionNode executes an action and returns its status.
type ActionNode struct {
	Name string
	Fn   func(*Context) Status
}

func (an *ActionNode) Tick(ctx *Context) Status {
	if an.Name != "" {
		ctx.Visit(an.Name)
	}
	return an.Fn(ctx)
}

// ---- Decorator nodes ----

// Inverter negates the result of its child.
type Inverter struct {
	Child Node
}

func (i *Inverter) Tick(ctx *Context) Status {
	switch i.Child.Tick(ctx) {
	case StatusSuccess:
		return StatusFailure
	case StatusFailure:
		return StatusSuccess
	default:
		return StatusRunning
	}
}

// AlwaysSucceed runs its child and reports success regardless of the result.
type AlwaysSucceed struct {
	Child Node
}

func (a *AlwaysSucceed) Tick(ctx *Context) Status {
	a.Child.Tick(ctx)
	return StatusSuccess
}

// Guard runs Child only when Cond holds; otherwise it fails so a parent
// Selector falls through to the next tier.
func Guard(name string, cond func(*Context) bool, child Node) Node {
	return &Sequence{Children: []Node{
		&ConditionNode{Name: name, Fn: cond},
		child,
	}}
}

// ---- BehaviorTree root ----

// BehaviorTree wraps the root node.
type BehaviorTree struct {
	Root Node
}

// Tick runs one frame of the behavior tree.
func (bt *BehaviorTree) Tick(ctx *Context) Status {
	if bt.Root == nil {
		return StatusFailure
	}
	return bt.Root.Tick(ctx)
}
