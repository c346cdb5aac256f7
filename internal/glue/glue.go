// Package glue orchestrates one full pass of the editing cycle -
// produce, print, edit, parse, diff, dispatch - and the interactive
// retry loop a diagnostic error drops the user into. Grounded on the
// teacher main.go's DumpGit/CLI orchestration shape: a long-lived
// struct carrying its logger, handed small collaborators through
// interfaces rather than reaching for package-level state. §4.9, §9.
package glue

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/ldapvi-go/ldapvi/diff"
	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/ldapvi-go/ldapvi/internal/editor"
	"github.com/ldapvi-go/ldapvi/internal/metrics"
	"github.com/ldapvi-go/ldapvi/ldif"
	"github.com/ldapvi-go/ldapvi/schema"
)

// State is one stage of the external-editor cycle, modeled explicitly
// per §9 rather than buried in control flow: Prompted -> Edited ->
// Parsed -> (Dispatched | Failed:PromptRetry) -> End.
type State int

const (
	StatePrompted State = iota
	StateEdited
	StateParsed
	StateDispatched
	StateFailedPromptRetry
	StateEnd
)

func (s State) String() string {
	switch s {
	case StatePrompted:
		return "prompted"
	case StateEdited:
		return "edited"
	case StateParsed:
		return "parsed"
	case StateDispatched:
		return "dispatched"
	case StateFailedPromptRetry:
		return "failed:prompt-retry"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// EntroidLookup resolves the per-entry schema metadata the printer
// annotates a record with. Full schema discovery is outside the core
// (schema.Entroid is consumed-only); the glue only calls whatever
// lookup its caller supplies, concurrently, ahead of printing.
type EntroidLookup func(e *entry.Entry) (schema.Entroid, error)

// Cycle holds the collaborators one editing pass needs: the textual
// format (shared by printer and parser), the worker pool used to
// compute entroids concurrently ahead of printing, the editor/pager/
// chooser UI, a metrics session, and a logger threaded through exactly
// the way the teacher threads *logrus.Logger* through every
// constructor.
type Cycle struct {
	Printer *ldif.Printer
	Parser  ldif.Parser
	Pool    *pond.WorkerPool
	UI      editor.UI
	Metrics *metrics.Session
	Logger  *logrus.Logger

	Entroid EntroidLookup

	// GraphSink, if non-nil, receives one JSON-lines GraphEvent per
	// successful dispatch during RunInteractive, for --graph (§4.12).
	GraphSink io.Writer
}

// NewCycle returns a Cycle ready to run. pool may be nil, in which
// case entroid lookups (if EntroidLookup is set) run sequentially.
func NewCycle(printer *ldif.Printer, parser ldif.Parser, pool *pond.WorkerPool, ui editor.UI, logger *logrus.Logger) *Cycle {
	return &Cycle{
		Printer: printer,
		Parser:  parser,
		Pool:    pool,
		UI:      ui,
		Metrics: metrics.NewSession(),
		Logger:  logger,
	}
}

// entroidResult pairs a computed entroid with the entry's position in
// the original slice, so concurrent completion order never affects the
// printed document's record order.
type entroidResult struct {
	index   int
	entroid schema.Entroid
	err     error
}

// annotateEntroids computes one entroid per entry, submitting the
// lookups to the worker pool so schema-walk latency for a large result
// set overlaps instead of serializing ahead of printing (§5, component
// #18, teacher's SaveBlob/CreateArchiveFile pond.Submit pattern). The
// result order always matches entries' order regardless of completion
// order.
func (c *Cycle) annotateEntroids(entries []*entry.Entry) ([]schema.Entroid, error) {
	entroids := make([]schema.Entroid, len(entries))
	if c.Entroid == nil {
		return entroids, nil
	}
	if c.Pool == nil {
		for i, e := range entries {
			entroid, err := c.Entroid(e)
			if err != nil {
				return nil, fmt.Errorf("glue: computing entroid for %q: %w", e.DN, err)
			}
			entroids[i] = entroid
		}
		return entroids, nil
	}

	results := make(chan entroidResult, len(entries))
	for i, e := range entries {
		i, e := i, e
		c.Pool.Submit(func() {
			entroid, err := c.Entroid(e)
			results <- entroidResult{index: i, entroid: entroid, err: err}
		})
	}
	var firstErr error
	for range entries {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("glue: computing entroid for %q: %w", entries[r.index].DN, r.err)
			continue
		}
		entroids[r.index] = r.entroid
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return entroids, nil
}

// WriteClean prints entries (already sorted into the caller's chosen
// order) as the clean document in the given format, and returns the
// byte offset index the diff engine will later compare the data
// document against, alongside every entroid's diagnostic comments
// keyed by DN. Comments are returned rather than interleaved into the
// document: the native format has no comment syntax (only the strict
// format's "#"-prefixed lines do), so injecting one unconditionally
// would corrupt a native clean document the diff engine must later
// re-parse byte-for-byte. A caller wanting them visible prints them to
// the terminal before handing the file to the editor.
func (c *Cycle) WriteClean(w io.Writer, entries []*entry.Entry, strict bool) (*diff.OffsetIndex, map[string][]string, error) {
	entroids, err := c.annotateEntroids(entries)
	if err != nil {
		return nil, nil, err
	}

	idx := diff.NewOffsetIndex()
	notes := make(map[string][]string)
	counter := &countingWriter{w: w}
	for i, e := range entries {
		if entroid := entroids[i]; entroid != nil {
			if comments := entroid.Comments(); len(comments) > 0 {
				notes[e.DN] = comments
			}
		}
		key := fmt.Sprintf("%d", idx.Append(counter.n))
		var printErr error
		if strict {
			printErr = c.Printer.PrintStrictEntry(counter, e, key)
		} else {
			printErr = c.Printer.PrintNativeEntry(counter, e, key)
		}
		if printErr != nil {
			return nil, nil, fmt.Errorf("glue: printing %q: %w", e.DN, printErr)
		}
	}
	return idx, notes, nil
}

// countingWriter tracks the running byte offset as it writes, so
// WriteClean can record each entry's starting offset before printing
// it, mirroring the producer's "emit entries plus a parallel offset
// array" contract (spec.md §2).
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// SortedByDN returns entries ordered deterministically by DN, the
// order WriteClean and cmd/ldapvi use when no other ordering is
// supplied by the entry producer.
func SortedByDN(entries []*entry.Entry) []*entry.Entry {
	sorted := make([]*entry.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return entry.CompareDN(sorted[i], sorted[j]) < 0
	})
	return sorted
}

// RunInteractive drives the full Prompted -> Edited -> Parsed ->
// (Dispatched | Failed:PromptRetry) -> End state machine for one
// cleanPath/dataPath pair already on disk (dataPath already holds the
// caller's copy of the clean document): it opens $EDITOR on dataPath,
// diffs the result, and on
// a diagnostic error offers the user the retry choice described in
// spec.md's External editor cycle note, re-editing at the offending
// byte offset until the user quits or a clean parse succeeds.
func (c *Cycle) RunInteractive(cleanPath, dataPath string, idx *diff.OffsetIndex, handler diff.Handler) error {
	state := StatePrompted
	pos := int64(-1)

	for {
		switch state {
		case StatePrompted:
			if err := c.UI.Edit(dataPath, pos); err != nil {
				return fmt.Errorf("glue: launching editor: %w", err)
			}
			state = StateEdited

		case StateEdited:
			state = StateParsed

		case StateParsed:
			clean, err := os.Open(cleanPath)
			if err != nil {
				return fmt.Errorf("glue: reopening clean document: %w", err)
			}
			data, err := os.Open(dataPath)
			if err != nil {
				clean.Close()
				return fmt.Errorf("glue: reopening data document: %w", err)
			}

			engine := diff.NewEngine(c.Parser)
			runErr := engine.Run(clean, data, idx, countingHandler{Handler: handler, metrics: c.Metrics, graphSink: c.GraphSink})
			clean.Close()
			data.Close()

			if runErr == nil {
				state = StateDispatched
				continue
			}
			c.Metrics.Error()
			c.Logger.Warnf("glue: diagnostic during diff: %v", runErr)
			pos = offsetOf(runErr)
			state = StateFailedPromptRetry

		case StateFailedPromptRetry:
			answer, err := c.UI.Choose("[E]dit again, [r]etry, [q]uit?", "Erq", "")
			if err != nil {
				return fmt.Errorf("glue: reading retry choice: %w", err)
			}
			switch answer {
			case 'E', 'e':
				state = StatePrompted
			case 'r':
				state = StateParsed
			case 'q':
				return fmt.Errorf("glue: aborted by user after diagnostic")
			}

		case StateDispatched:
			state = StateEnd

		case StateEnd:
			return nil
		}
	}
}

// offsetOf extracts the byte offset carried by a diff engine error, so
// a retried edit can reopen at the point of failure, mirroring
// edit_pos's line-seeking behavior.
func offsetOf(err error) int64 {
	var syn *ldif.SyntaxError
	if errors.As(err, &syn) {
		return syn.Offset
	}
	var sem *diff.SemanticError
	if errors.As(err, &sem) {
		return sem.Offset
	}
	var herr *diff.HandlerError
	if errors.As(err, &herr) {
		return herr.Offset
	}
	return -1
}

// countingHandler wraps a diff.Handler to bump Session counters as
// each dispatch succeeds, matching spec.md §7's instruction to log/
// count recoverable anomalies without swallowing the original error.
type countingHandler struct {
	diff.Handler
	metrics   *metrics.Session
	graphSink io.Writer
}

func (h countingHandler) record(ev GraphEvent) {
	if h.graphSink != nil {
		WriteGraphEvent(h.graphSink, ev)
	}
}

func (h countingHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	if err := h.Handler.Change(key, oldDN, newDN, mods); err != nil {
		return err
	}
	h.metrics.Change()
	h.record(GraphEvent{Kind: "change", OldDN: oldDN, NewDN: newDN})
	return nil
}

func (h countingHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	if err := h.Handler.Rename(key, oldDN, newEntry); err != nil {
		return err
	}
	h.metrics.Rename()
	h.record(GraphEvent{Kind: "rename", OldDN: oldDN, NewDN: newEntry.DN})
	return nil
}

func (h countingHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	if err := h.Handler.Rename0(key, oldDN, newDN, deleteOldRDN); err != nil {
		return err
	}
	h.metrics.Rename()
	h.record(GraphEvent{Kind: "rename", OldDN: oldDN, NewDN: newDN})
	return nil
}

func (h countingHandler) Add(key int, dn string, mods []*entry.Modification) error {
	if err := h.Handler.Add(key, dn, mods); err != nil {
		return err
	}
	h.metrics.Add()
	h.record(GraphEvent{Kind: "add", NewDN: dn})
	return nil
}

func (h countingHandler) Delete(key int, dn string) error {
	if err := h.Handler.Delete(key, dn); err != nil {
		return err
	}
	h.metrics.Delete()
	h.record(GraphEvent{Kind: "delete", OldDN: dn})
	return nil
}
