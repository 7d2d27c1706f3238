package upgrade

import "fmt"

// Report aggregates a phase's findings. Errors block progression (or
// recommend rollback after verify); warnings never do.
type Report struct {
	Errors   []string
	Warnings []string
	Infos    []string
}

func (r *Report) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) infof(format string, args ...interface{}) {
	r.Infos = append(r.Infos, fmt.Sprintf(format, args...))
}

// OK is true when no errors were recorded
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// Merge folds another report's findings into this one
func (r *Report) Merge(other *Report) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Infos = append(r.Infos, other.Infos...)
}
