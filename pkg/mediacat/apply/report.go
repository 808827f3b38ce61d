package apply

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// CreatedTerm is a term created by the run. Dry runs hand out negative ids.
type CreatedTerm struct {
	Name string
	ID   int64
}

// ObjectError is a per-object problem reported at the end of the run
type ObjectError struct {
	ObjectID int64
	Message  string
}

func (e ObjectError) String() string {
	return fmt.Sprintf("attachment %d: %s", e.ObjectID, e.Message)
}

// Report is the outcome of one apply pass
type Report struct {
	RunID  string
	DryRun bool

	CreatedTerms []CreatedTerm
	// Selected holds the names each object asked for after mode filtering.
	Selected    map[int64][]string
	Assignments map[int64][]string
	Skipped     map[int64][]string
	Errors      []ObjectError
}

func newReport(dryRun bool) *Report {
	return &Report{
		RunID:       newRunID(),
		DryRun:      dryRun,
		Selected:    make(map[int64][]string),
		Assignments: make(map[int64][]string),
		Skipped:     make(map[int64][]string),
	}
}

// Requested is the number of (object, term) pairs the run tried to assign.
func (r *Report) Requested() int {
	n := 0
	for _, names := range r.Selected {
		n += len(names)
	}
	return n
}

// Applied is the number of new relationships.
func (r *Report) Applied() int {
	n := 0
	for _, names := range r.Assignments {
		n += len(names)
	}
	return n
}

// CreatedNames lists created term names in creation order.
func (r *Report) CreatedNames() []string {
	names := make([]string, len(r.CreatedTerms))
	for i, t := range r.CreatedTerms {
		names[i] = t.Name
	}
	return names
}

// ObjectIDs returns the ids with selected terms, ascending.
func (r *Report) ObjectIDs() []int64 {
	ids := make([]int64, 0, len(r.Selected))
	for id := range r.Selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Report) addError(objectID int64, format string, args ...any) {
	r.Errors = append(r.Errors, ObjectError{ObjectID: objectID, Message: fmt.Sprintf(format, args...)})
}
