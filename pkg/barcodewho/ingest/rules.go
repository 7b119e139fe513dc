package ingest

// SkipReason says why a recording was not ingested. The empty reason means
// the recording is relevant.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipTooShort     SkipReason = "too_short"
	SkipParticipants SkipReason = "participants"
	SkipComputer     SkipReason = "computer"
	SkipHijacked     SkipReason = "hijacked"
	SkipCategory     SkipReason = "unknown_category"
)

// Rules decide whether a session is worth learning from.
type Rules struct {
	MinSeconds     float64 `yaml:"min_seconds"`
	Participants   int     `yaml:"participants"`
	AllowComputers bool    `yaml:"allow_computers"`
	AllowHijacked  bool    `yaml:"allow_hijacked"`
}

// DefaultRules keeps one-versus-one games between humans lasting at least
// three minutes.
func DefaultRules() Rules {
	return Rules{MinSeconds: 180, Participants: 2}
}

// Check returns the first rule the session breaks.
func (r Rules) Check(s Session) SkipReason {
	if s.DurationSeconds < r.MinSeconds {
		return SkipTooShort
	}
	if r.Participants > 0 && len(s.Participants) != r.Participants {
		return SkipParticipants
	}
	if !r.AllowHijacked && s.Hijacked {
		return SkipHijacked
	}
	if !r.AllowComputers {
		for _, p := range s.Participants {
			if p.Computer {
				return SkipComputer
			}
		}
	}
	return SkipNone
}
