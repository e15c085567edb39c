package pipeline

// State is a position in the job state machine:
//
//	Start → Parsed → Fetched → Compressed → Stored → Extracted → Recorded → Done
//
// Aborted is absorbing and reachable from Start, Parsed, Compressed and
// Extracted. Fetched → Compressed and Stored → Extracted never abort.
type State string

const (
	StateStart      State = "start"
	StateParsed     State = "parsed"
	StateFetched    State = "fetched"
	StateCompressed State = "compressed"
	StateStored     State = "stored"
	StateExtracted  State = "extracted"
	StateRecorded   State = "recorded"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Stage names used for timing.
const (
	stageParse    = "parse"
	stageFetch    = "fetch"
	stageCompress = "compress"
	stageStore    = "store"
	stageExtract  = "extract"
	stageRecord   = "record"
	stagePublish  = "publish"
)
