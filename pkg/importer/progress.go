package importer

type Stage string

const (
	StageStarted   Stage = "started"
	StageParsed    Stage = "parsed"
	StageAdded     Stage = "added"
	StageCompleted Stage = "completed"
)

var stageFractions = map[Stage]float64{
	StageStarted:   0,
	StageParsed:    0.5,
	StageAdded:     0.9,
	StageCompleted: 1,
}

// Progress is emitted for every stage of every file of a bulk operation.
// Current is the zero-based index of the file being processed.
type Progress struct {
	Current     int     `json:"current"`
	Total       int     `json:"total"`
	FileName    string  `json:"file_name"`
	SubProgress float64 `json:"sub_progress"`
	Stage       Stage   `json:"stage"`
}

// Percent is the overall completion, clamped to [0, 100].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := (float64(p.Current) + p.SubProgress) / float64(p.Total) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

type ProgressFunc func(Progress)

// StageFunc reports the stage reached by a single file.
type StageFunc func(Stage)

func (fn StageFunc) report(s Stage) {
	if fn != nil {
		fn(s)
	}
}

// ForFile returns the reporter for file current of total. It is never nil.
func (fn ProgressFunc) ForFile(current, total int, name string) StageFunc {
	return func(s Stage) {
		if fn == nil {
			return
		}
		fn(Progress{
			Current:     current,
			Total:       total,
			FileName:    name,
			SubProgress: stageFractions[s],
			Stage:       s,
		})
	}
}
