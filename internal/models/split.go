package models

// ParticipantStatus is a participant's standing within a split session.
type ParticipantStatus int

const (
	// ParticipantPending means the participant has not responded yet.
	// Wire value 0.
	ParticipantPending ParticipantStatus = iota

	// ParticipantAccepted means the participant agreed to their share.
	// Wire value 1.
	ParticipantAccepted

	// ParticipantRejected means the participant declined their share.
	// Wire value 2.
	ParticipantRejected

	// ParticipantOwner marks the session creator. Never sent by the
	// backend as a status update.
	ParticipantOwner
)

// ParticipantStatusFromWire maps the integer carried in a
// split_status_update payload to a status. The owner status is not part
// of the wire contract, so only pending/accepted/rejected are accepted.
func ParticipantStatusFromWire(v int) (ParticipantStatus, bool) {
	switch v {
	case 0:
		return ParticipantPending, true
	case 1:
		return ParticipantAccepted, true
	case 2:
		return ParticipantRejected, true
	default:
		return 0, false
	}
}

func (s ParticipantStatus) String() string {
	switch s {
	case ParticipantPending:
		return "pending"
	case ParticipantAccepted:
		return "accepted"
	case ParticipantRejected:
		return "rejected"
	case ParticipantOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Participant is one member of a split session.
type Participant struct {
	// UserID identifies the participant within the session.
	UserID int64

	// Name is the participant's display name.
	Name string

	// Amount is the participant's allocated share in minor currency
	// units. Non-negative.
	Amount int64

	// Status is the participant's standing. Exactly one participant per
	// session holds ParticipantOwner.
	Status ParticipantStatus
}

// SplitMode selects how a session total is divided across participants.
type SplitMode int

const (
	// SplitEven divides the total equally, to within one minor unit.
	SplitEven SplitMode = iota

	// SplitCustom uses caller-supplied per-participant amounts that must
	// sum exactly to the total.
	SplitCustom
)

func (m SplitMode) String() string {
	switch m {
	case SplitEven:
		return "even"
	case SplitCustom:
		return "custom"
	default:
		return "unknown"
	}
}
