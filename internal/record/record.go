// Package record collects failing example locations from an rspec run and
// persists them to the failure store when the run completes.
//
// The engine reports to the recorder through the registration shim (see
// InstallShim), which appends one JSON object per line to the file named by
// RESPEC_EVENTS. Consume replays that stream into a Recorder.
package record

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/scbrown/respec/internal/failures"
)

// EventsEnvVar names the environment variable telling the shim where to
// write its event stream.
const EventsEnvVar = "RESPEC_EVENTS"

// Event names written by the shim.
const (
	EventExampleFailed = "example_failed"
	EventRunComplete   = "run_complete"
)

// ErrNoSpecFile is returned by ExtractSpecLocation when neither the example
// nor any enclosing group is defined in a spec file.
var ErrNoSpecFile = errors.New("no spec file could be found in metadata")

// Recorder accumulates failing locations for one run. It is not safe for
// concurrent use; the engine reports failures sequentially.
type Recorder struct {
	path     string
	failures []string
}

// New returns a Recorder that writes to the failure store at path.
func New(path string) *Recorder {
	return &Recorder{path: path}
}

// Path returns the failure store path.
func (r *Recorder) Path() string { return r.path }

// OnExampleFailed records a failing location.
func (r *Recorder) OnExampleFailed(location string) {
	r.failures = append(r.failures, location)
}

// OnRunComplete overwrites the failure store with the collected locations.
// With no failures the store is truncated, so an all-passing run clears
// stale entries.
func (r *Recorder) OnRunComplete() error {
	if err := failures.Write(r.path, r.failures); err != nil {
		return fmt.Errorf("recording failures to %s: %w", r.path, err)
	}
	return nil
}

// Failures returns the locations collected so far.
func (r *Recorder) Failures() []string {
	return append([]string(nil), r.failures...)
}

// event is one line of the shim's stream. Unknown fields are ignored.
type event struct {
	Event          string   `json:"event"`
	Location       string   `json:"location"`
	GroupLocations []string `json:"group_locations"`
}

// Consume reads a shim event stream and dispatches it to the recorder.
// Failed examples are reduced to their spec file location with
// ExtractSpecLocation; when none is found the raw location is kept. It
// reports whether a run_complete event was seen, in which case the store
// has been written. Lines that are not JSON are skipped.
func (r *Recorder) Consume(in io.Reader, suffix string) (bool, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	completed := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			slog.Debug("skipping malformed event", "line", line, "err", err)
			continue
		}

		switch ev.Event {
		case EventExampleFailed:
			if ev.Location == "" {
				continue
			}
			loc, err := ExtractSpecLocation(ev.Location, ev.GroupLocations, suffix)
			if err != nil {
				slog.Debug("using raw failure location", "location", ev.Location, "err", err)
				loc = ev.Location
			}
			r.OnExampleFailed(loc)
		case EventRunComplete:
			if err := r.OnRunComplete(); err != nil {
				return false, err
			}
			completed = true
		default:
			slog.Debug("ignoring event", "event", ev.Event)
		}
	}
	if err := sc.Err(); err != nil {
		return completed, fmt.Errorf("reading events: %w", err)
	}
	return completed, nil
}

// ExtractSpecLocation returns the location to rerun for a failed example.
// Examples defined in shared groups report the support file they live in,
// so the innermost enclosing group whose file ends in suffix is used
// instead.
func ExtractSpecLocation(location string, groupLocations []string, suffix string) (string, error) {
	if isSpecFile(location, suffix) {
		return location, nil
	}
	for _, g := range groupLocations {
		if isSpecFile(g, suffix) {
			return g, nil
		}
	}
	return "", ErrNoSpecFile
}

func isSpecFile(location, suffix string) bool {
	return strings.HasSuffix(failures.StripLocation(location), suffix)
}
