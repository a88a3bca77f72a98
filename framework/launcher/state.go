package launcher

// State is the lifecycle state of an Extension.
type State int

const (
	Unprepared State = iota
	Prepared
	Launching
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Unprepared:
		return "unprepared"
	case Prepared:
		return "prepared"
	case Launching:
		return "launching"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
