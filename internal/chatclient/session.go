package chatclient

// Session is the client's view of its room membership.
type Session struct {
	RoomID        string
	participantID string
	joined        bool
}

// SetParticipant records the id assigned by the server. The latest
// acknowledgement wins; an empty id leaves the session unjoined.
func (s *Session) SetParticipant(id string) {
	if id == "" {
		return
	}
	s.participantID = id
	s.joined = true
}

func (s *Session) ParticipantID() (string, bool) {
	return s.participantID, s.joined
}

// Owns reports whether sender is the local participant. It is always false
// before the join acknowledgement.
func (s *Session) Owns(sender string) bool {
	return s.joined && sender == s.participantID
}
