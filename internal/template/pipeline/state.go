package pipeline

// State is a step of one ingest run. Failed is reachable from every step
// and, like Done, is terminal.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateDownloading State = "downloading"
	StateParsing     State = "parsing"
	StateRelocating  State = "relocating"
	StateRewriting   State = "rewriting"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func (s State) String() string {
	return string(s)
}
