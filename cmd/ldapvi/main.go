// Command ldapvi is the interactive directory editor: it prints a
// clean document from a directory snapshot, hands it to an external
// editor, diffs the edited copy against the clean original, and
// dispatches the resulting change operations. Network session
// establishment, authentication and search execution are outside the
// core (spec.md §1's Non-goals); this command reads its starting
// snapshot from a file instead of a live directory connection.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ldapvi-go/ldapvi/config"
	"github.com/ldapvi-go/ldapvi/diff"
	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/ldapvi-go/ldapvi/internal/editor"
	"github.com/ldapvi-go/ldapvi/internal/glue"
	"github.com/ldapvi-go/ldapvi/internal/version"
	"github.com/ldapvi-go/ldapvi/journal"
	"github.com/ldapvi-go/ldapvi/ldif"

	"github.com/alitto/pond"
)

func main() {
	var (
		bases = kingpin.Flag(
			"base",
			"Search base (repeatable; CLI bases fully replace any profile-supplied bases).",
		).Strings()
		profileName = kingpin.Flag(
			"profile",
			"Named profile to load from --rc.",
		).Default(config.DefaultProfile).String()
		rcPath = kingpin.Flag(
			"rc",
			"Profile file to load (defaults to ~/.ldapvirc).",
		).String()
		host = kingpin.Flag(
			"host",
			"Directory server host (overrides profile).",
		).String()
		port = kingpin.Flag(
			"port",
			"Directory server port (overrides profile).",
		).Int()
		bindDN = kingpin.Flag(
			"bind-dn",
			"Bind DN (overrides profile).",
		).String()
		format = kingpin.Flag(
			"format",
			"Output format: native or strict.",
		).String()
		binaryMode = kingpin.Flag(
			"binary-mode",
			"Binary value handling: ascii, utf8 or junk.",
		).String()
		input = kingpin.Flag(
			"input",
			"Directory snapshot file to edit (a prior search result dump).",
		).Required().String()
		graphFlag = kingpin.Flag(
			"graph",
			"Record dispatched operations to --graph-file as a JSON-lines side channel.",
		).Bool()
		graphFile = kingpin.Flag(
			"graph-file",
			"Path for the --graph side channel.",
		).Default("ldapvi-graph.jsonl").String()
		metricsFile = kingpin.Flag(
			"metrics-file",
			"Path to dump Prometheus text-format session metrics to on exit.",
		).String()
		journalFile = kingpin.Flag(
			"journal",
			"Append a sequenced audit record of every dispatched operation to this file.",
		).String()
		cpuProfile = kingpin.Flag(
			"cpuprofile",
			"Write a CPU profile to this directory.",
		).String()
		memProfile = kingpin.Flag(
			"memprofile",
			"Write a memory profile to this directory.",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Short('d').Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("ldapvi")).Author("ldapvi-go")
	kingpin.CommandLine.Help = "Interactively edit directory entries via an external text editor\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	if *cpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProfile)).Stop()
	} else if *memProfile != "" {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*memProfile)).Stop()
	}

	rc := *rcPath
	if rc == "" {
		rc = config.DefaultProfilePath()
	}
	baseCfg, err := config.LoadProfile(rc, *profileName)
	if err != nil {
		logger.Errorf("error loading profile %q from %v: %v", *profileName, rc, err)
		os.Exit(1)
	}
	cliCfg := &config.Config{
		SearchBases: *bases,
		Host:        *host,
		Port:        *port,
		BindDN:      *bindDN,
		Format:      *format,
		BinaryMode:  *binaryMode,
	}
	cfg := config.Merge(baseCfg, cliCfg)
	logger.Infof("%v", version.Print("ldapvi"))
	logger.Infof("Options: %+v", cfg)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	if err := run(logger, cfg, *input, *graphFlag, *graphFile, *metricsFile, *journalFile); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger, cfg *config.Config, inputPath string, enableGraph bool, graphPath, metricsPath, journalPath string) error {
	parser, printerMode, strict := formatFor(cfg)
	printer := ldif.NewPrinter(printerMode)

	entries, err := readSnapshot(parser, inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}
	entries = filterByBases(entries, cfg.SearchBases)
	sorted := glue.SortedByDN(entries)

	pool := pond.New(runtime.NumCPU(), 0, pond.MinWorkers(2))
	defer pool.StopAndWait()

	cycle := glue.NewCycle(printer, parser, pool, editor.System{}, logger)

	cleanFile, err := os.CreateTemp("", "ldapvi-clean-*.txt")
	if err != nil {
		return fmt.Errorf("creating clean document: %w", err)
	}
	defer os.Remove(cleanFile.Name())
	defer cleanFile.Close()

	idx, notes, err := cycle.WriteClean(cleanFile, sorted, strict)
	if err != nil {
		return fmt.Errorf("writing clean document: %w", err)
	}
	for dn, comments := range notes {
		for _, c := range comments {
			logger.Warnf("%s: %s", dn, c)
		}
	}

	dataPath := cleanFile.Name() + ".data"
	if err := copyFile(cleanFile.Name(), dataPath); err != nil {
		return fmt.Errorf("preparing data document: %w", err)
	}
	defer os.Remove(dataPath)

	if enableGraph {
		gf, err := os.Create(graphPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", graphPath, err)
		}
		defer gf.Close()
		cycle.GraphSink = gf
	}

	var handler diff.Handler = &loggingHandler{logger: logger}
	if journalPath != "" {
		j, err := journal.Open(journalPath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		handler = j.Tee(handler)
	}
	if err := cycle.RunInteractive(cleanFile.Name(), dataPath, idx, handler); err != nil {
		return err
	}

	if metricsPath != "" {
		mf, err := os.Create(metricsPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", metricsPath, err)
		}
		defer mf.Close()
		if err := cycle.Metrics.WriteTextTo(mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func formatFor(cfg *config.Config) (ldif.Parser, ldif.BinaryMode, bool) {
	var parser ldif.Parser
	strict := cfg.Format == "strict"
	if strict {
		parser = ldif.Strict{}
	} else {
		parser = ldif.Native{}
	}

	var mode ldif.BinaryMode
	switch cfg.BinaryMode {
	case "ascii":
		mode = ldif.BinaryASCII
	case "junk":
		mode = ldif.BinaryJunk
	default:
		mode = ldif.BinaryUTF8
	}
	return parser, mode, strict
}

func readSnapshot(parser ldif.Parser, path string) ([]*entry.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []*entry.Entry
	pos := int64(0)
	for {
		key, recOffset, err := parser.Peek(f, pos)
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		_, e, next, err := parser.ReadEntry(f, recOffset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		pos = next
	}
	return entries, nil
}

func filterByBases(entries []*entry.Entry, bases []string) []*entry.Entry {
	if len(bases) == 0 {
		return entries
	}
	var filtered []*entry.Entry
	for _, e := range entries {
		for _, base := range bases {
			if hasSuffixDN(e.DN, base) {
				filtered = append(filtered, e)
				break
			}
		}
	}
	return filtered
}

func hasSuffixDN(dn, base string) bool {
	if dn == base {
		return true
	}
	if len(dn) <= len(base) {
		return false
	}
	return dn[len(dn)-len(base):] == base && dn[len(dn)-len(base)-1] == ','
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// loggingHandler dispatches by logging the operation that would be
// sent to the directory. Establishing a network session and executing
// the actual modify/add/delete/modrdn against a server is out of
// scope per spec.md §1's Non-goals; this handler is the seam a real
// LDAP client binds into.
type loggingHandler struct {
	logger *logrus.Logger
}

func (h *loggingHandler) Change(key int, oldDN, newDN string, mods []*entry.Modification) error {
	h.logger.Infof("change %s (%d modifications)", newDN, len(mods))
	return nil
}

func (h *loggingHandler) Rename(key int, oldDN string, newEntry *entry.Entry) error {
	h.logger.Infof("rename %s -> %s", oldDN, newEntry.DN)
	return nil
}

func (h *loggingHandler) Rename0(key int, oldDN, newDN string, deleteOldRDN bool) error {
	h.logger.Infof("rename %s -> %s (deleteOldRDN=%v)", oldDN, newDN, deleteOldRDN)
	return nil
}

func (h *loggingHandler) Add(key int, dn string, mods []*entry.Modification) error {
	h.logger.Infof("add %s (%d attributes)", dn, len(mods))
	return nil
}

func (h *loggingHandler) Delete(key int, dn string) error {
	h.logger.Infof("delete %s", dn)
	return nil
}

var _ diff.Handler = (*loggingHandler)(nil)
