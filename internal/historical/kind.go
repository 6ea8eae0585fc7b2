package historical

// Kind selects the archive file a record is appended to.
type Kind uint8

const (
	_kind_beg Kind = iota
	KindPosition
	KindRisk
	KindExecution
	KindStreaming
	KindInquiry
	_kind_end
)

func (k Kind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

func (k Kind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindRisk:
		return "risk"
	case KindExecution:
		return "execution"
	case KindStreaming:
		return "streaming"
	case KindInquiry:
		return "inquiry"
	default:
		return "unknown"
	}
}

// FileName is the fixed archive file name of the kind.
func (k Kind) FileName() string {
	switch k {
	case KindPosition:
		return "positions.txt"
	case KindRisk:
		return "risk.txt"
	case KindExecution:
		return "executions.txt"
	case KindStreaming:
		return "streaming.txt"
	case KindInquiry:
		return "allinquiries.txt"
	default:
		return ""
	}
}

// Kinds lists every archive kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, _kind_end-_kind_beg-1)
	for k := _kind_beg + 1; k < _kind_end; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
