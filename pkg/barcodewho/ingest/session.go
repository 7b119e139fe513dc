// Package ingest turns recorded games into observations.
//
// Recordings are listed by a Source, decoded into a Session by a Parser,
// filtered by Rules and finally split into one Observation per participant:
// a named feature vector and one n-gram histogram per length.
package ingest

// FramesPerSecond is the game clock at "faster" speed.
const FramesPerSecond = 22.4

// Session is the decoded content of one recording.
type Session struct {
	DurationSeconds float64 `msgpack:"duration_s"`
	// Hijacked marks a game that was resumed from another recording.
	Hijacked     bool          `msgpack:"hijacked"`
	Participants []Participant `msgpack:"players"`
}

// Participant is one player in a session.
type Participant struct {
	// Handle is the stable account id; Name is the display name at the time.
	Handle   string  `msgpack:"handle"`
	Name     string  `msgpack:"name"`
	Category string  `msgpack:"race"`
	Computer bool    `msgpack:"computer"`
	APM      float64 `msgpack:"apm"`
	Events   []Event `msgpack:"events"`
}

// Event is one input event issued by a participant.
type Event struct {
	Type  string `msgpack:"type"`
	Sub   int    `msgpack:"sub"`
	Frame int    `msgpack:"frame"`
}
