package model

// Progress is a side-channel event for progress bars: Current of Total, plus a message.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// ProgressFunc receives progress events. A nil ProgressFunc is valid and ignored.
type ProgressFunc func(Progress)

// Emit calls f when it is non-nil.
func (f ProgressFunc) Emit(current, total int, msg string) {
	if f != nil {
		f(Progress{Current: current, Total: total, Message: msg})
	}
}
