package accounts

// Destination is one group-like broadcast target. Title is a snapshot
// taken at assignment time; it is not kept in sync with the platform.
type Destination struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Account is one managed platform identity.
type Account struct {
	ID          string `json:"id"`
	SessionName string `json:"session_name"`
	// DisplayName is the platform-reported handle, filled at registration.
	DisplayName string `json:"display_name"`
	// Destinations is an ordered set, unique by Destination.ID.
	Destinations []Destination `json:"destinations"`
	// Active gates dispatch: inactive accounts are skipped silently.
	Active bool `json:"active"`
}

func (a Account) clone() Account {
	cp := a
	cp.Destinations = append([]Destination(nil), a.Destinations...)
	return cp
}

// AssignOutcome is the three-way result of a destination assignment.
type AssignOutcome int

const (
	// Assigned means the destination is now (or already was) present.
	Assigned AssignOutcome = iota
	// Rejected means the account or destination was invalid; nothing was
	// mutated.
	Rejected
	// Cancelled means the operator abandoned the prompt; nothing was
	// mutated and nothing failed.
	Cancelled
)

func (o AssignOutcome) String() string {
	switch o {
	case Assigned:
		return "assigned"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
