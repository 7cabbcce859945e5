package dispatcher

import (
	"github.com/google/uuid"

	"github.com/cuemby/ipsecd/pkg/types"
)

// Kind is the payload variant of a Task
type Kind string

const (
	KindIKE Kind = "ike"
	KindCA  Kind = "ca"
	KindSA  Kind = "sa"
	KindSP  Kind = "sp"
)

// Action is the configuration change a Task applies
type Action string

const (
	ActionAdd    Action = "add"
	ActionModify Action = "modify"
	ActionRemove Action = "remove"
)

// Task is one configuration change. Kind and payload always agree because
// tasks can only be built through the New*Task constructors.
type Task struct {
	id     string
	kind   Kind
	action Action

	ike *types.IKEConnection
	ca  *types.CA
	sa  *types.SA
	sp  *types.SP
}

func newTask(kind Kind, action Action) *Task {
	return &Task{
		id:     uuid.New().String(),
		kind:   kind,
		action: action,
	}
}

// NewIKETask creates a task for an IKE connection
func NewIKETask(action Action, conn types.IKEConnection) *Task {
	t := newTask(KindIKE, action)
	t.ike = &conn
	return t
}

// NewCATask creates a task for a certificate authority
func NewCATask(action Action, ca types.CA) *Task {
	t := newTask(KindCA, action)
	t.ca = &ca
	return t
}

// NewSATask creates a task for a kernel SA
func NewSATask(action Action, sa types.SA) *Task {
	t := newTask(KindSA, action)
	t.sa = &sa
	return t
}

// NewSPTask creates a task for a kernel policy
func NewSPTask(action Action, sp types.SP) *Task {
	t := newTask(KindSP, action)
	t.sp = &sp
	return t
}

// ID returns the task's correlation id
func (t *Task) ID() string { return t.id }

// Kind returns the payload variant
func (t *Task) Kind() Kind { return t.kind }

// Action returns the configuration action
func (t *Task) Action() Action { return t.action }

// IKEConnection returns the payload of an IKE task, nil otherwise
func (t *Task) IKEConnection() *types.IKEConnection { return t.ike }

// CA returns the payload of a CA task, nil otherwise
func (t *Task) CA() *types.CA { return t.ca }

// SA returns the payload of an SA task, nil otherwise
func (t *Task) SA() *types.SA { return t.sa }

// SP returns the payload of an SP task, nil otherwise
func (t *Task) SP() *types.SP { return t.sp }

// Target names the object the task touches, for logs
func (t *Task) Target() string {
	switch t.kind {
	case KindIKE:
		return t.ike.Name
	case KindCA:
		return t.ca.Name
	case KindSA:
		return types.FormatSPI(t.sa.SPI)
	case KindSP:
		return t.sp.ID.String()
	default:
		return ""
	}
}
