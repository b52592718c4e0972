package orders

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// pending is the only entry state; accepted and rejected are terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusAccepted: true, StatusRejected: true},
	StatusAccepted: {},
	StatusRejected: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0 && s != ""
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}
