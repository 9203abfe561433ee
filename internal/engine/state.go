package engine

// State is a stage of one pipeline run.
type State int

const (
	StateInit State = iota
	StatePlanning
	StateRendering
	StateAudioConcat
	StateTranscoding
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:        "init",
	StatePlanning:    "planning",
	StateRendering:   "rendering",
	StateAudioConcat: "audio_concat",
	StateTranscoding: "transcoding",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
