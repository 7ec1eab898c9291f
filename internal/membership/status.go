package membership

// Status is a player's access standing.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusWhitelisted   Status = "WHITELISTED"
	StatusUnwhitelisted Status = "UNWHITELISTED"
	StatusBanned        Status = "BANNED"
	StatusRejected      Status = "REJECTED"
)

// transitions lists every legal from -> to pair. Anything absent is invalid,
// including self transitions.
var transitions = map[Status][]Status{
	StatusPending:       {StatusWhitelisted, StatusRejected},
	StatusWhitelisted:   {StatusUnwhitelisted, StatusBanned},
	StatusUnwhitelisted: {StatusWhitelisted, StatusPending},
	StatusBanned:        {StatusWhitelisted},
	StatusRejected:      {StatusPending},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the statuses in a stable order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusWhitelisted, StatusUnwhitelisted, StatusBanned, StatusRejected}
}
