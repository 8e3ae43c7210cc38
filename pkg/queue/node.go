package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RunFunc is the body of a node. args are the node arguments with every
// Awaitable replaced by its settled value.
type RunFunc func(ctx context.Context, args []interface{}) (interface{}, error)

// Node is one unit of scheduled work.
type Node struct {
	ID        string
	Name      string
	Namespace string // diagnostics only
	Args      []interface{}
	Run       RunFunc

	// RejectOnError false turns a failure into a nil result.
	RejectOnError bool
	// OnSuppressed receives the failure a RejectOnError=false node swallowed,
	// before its Deferred resolves.
	OnSuppressed func(error)
	// ReportFailure notifies the reporter when the node is rejected.
	// Not-found failures are left to the lookup's own AbortOnFailure flag.
	ReportFailure bool

	// PrintArgs renders the arguments for log lines.
	PrintArgs func() string

	Deferred *Deferred
}

// NewNode creates a node that rejects on error.
func NewNode(namespace, name string, run RunFunc, args ...interface{}) *Node {
	return &Node{
		ID:            uuid.NewString(),
		Name:          name,
		Namespace:     namespace,
		Args:          args,
		Run:           run,
		RejectOnError: true,
		Deferred:      NewDeferred(),
	}
}

// Tolerate makes n optional: a failure resolves it with nil, is not
// reported, and is passed to onFailure when that is non-nil.
func (n *Node) Tolerate(onFailure func(error)) *Node {
	n.RejectOnError = false
	n.ReportFailure = false
	n.OnSuppressed = onFailure
	return n
}

// FullName returns namespace.name, or name when the namespace is empty.
func (n *Node) FullName() string {
	if n.Namespace == "" {
		return n.Name
	}
	return n.Namespace + "." + n.Name
}

func (n *Node) String() string {
	args := ""
	if n.PrintArgs != nil {
		args = n.PrintArgs()
	} else if len(n.Args) > 0 {
		args = fmt.Sprint(n.Args...)
	}
	return fmt.Sprintf("%s(%s)", n.FullName(), args)
}
