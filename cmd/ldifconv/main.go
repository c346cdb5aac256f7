// Command ldifconv converts a directory document between the native
// and strict textual formats. Unlike cmd/ldapvi it never diffs or
// dispatches anything - it is a straight parse-then-print filter, the
// LDIF-cycle equivalent of cmd/gitfilter's blob-content filter.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ldapvi-go/ldapvi/entry"
	"github.com/ldapvi-go/ldapvi/internal/version"
	"github.com/ldapvi-go/ldapvi/ldif"
)

// ConvertOptions mirrors the teacher's GitFilterOptions shape: a
// plain struct the flag block fills in, handed to the worker function.
type ConvertOptions struct {
	inputFile  string
	outputFile string
	fromStrict bool
	toStrict   bool
	binaryMode string
}

// myWriteCloser bundles a *bufio.Writer with the *os.File it wraps, so
// Close both flushes and closes, the same small adapter the teacher's
// MyWriterCloser is.
type myWriteCloser struct {
	f *os.File
	*bufio.Writer
}

func (mwc *myWriteCloser) Close() error {
	if err := mwc.Flush(); err != nil {
		return err
	}
	if mwc.f != nil {
		return mwc.f.Close()
	}
	return nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return &myWriteCloser{Writer: bufio.NewWriter(os.Stdout)}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &myWriteCloser{f: f, Writer: bufio.NewWriter(f)}, nil
}

func openInput(path string) (*os.File, error) {
	if path == "" || path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

func binaryModeFor(name string) ldif.BinaryMode {
	switch name {
	case "ascii":
		return ldif.BinaryASCII
	case "junk":
		return ldif.BinaryJunk
	default:
		return ldif.BinaryUTF8
	}
}

// convert reads every record of src in its source format and prints
// it in the destination format, record by record, so a very large
// document never needs to be held in memory all at once.
func convert(logger *logrus.Logger, opts ConvertOptions) error {
	in, err := openInput(opts.inputFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", opts.inputFile, err)
	}
	if in != os.Stdin {
		defer in.Close()
	}
	if in == os.Stdin {
		return fmt.Errorf("input must be a seekable file, not stdin")
	}
	var src ldif.Source = in

	var parser ldif.Parser
	if opts.fromStrict {
		parser = ldif.Strict{}
	} else {
		parser = ldif.Native{}
	}
	printer := ldif.NewPrinter(binaryModeFor(opts.binaryMode))

	out, err := openOutput(opts.outputFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", opts.outputFile, err)
	}
	defer out.Close()

	pos := int64(0)
	count := 0
	for {
		key, recOffset, err := parser.Peek(src, pos)
		if err != nil {
			return fmt.Errorf("reading record at offset %d: %w", pos, err)
		}
		if key == "" {
			break
		}

		switch key {
		case ldif.KeyDelete:
			dn, next, err := parser.ReadDelete(src, recOffset)
			if err != nil {
				return err
			}
			if opts.toStrict {
				err = printer.PrintStrictDelete(out, dn)
			} else {
				err = printer.PrintNativeDelete(out, dn)
			}
			if err != nil {
				return err
			}
			pos = next

		case ldif.KeyModify:
			dn, batch, next, err := parser.ReadModify(src, recOffset)
			if err != nil {
				return err
			}
			if opts.toStrict {
				err = printer.PrintStrictModify(out, dn, batch)
			} else {
				err = printer.PrintNativeModify(out, dn, batch)
			}
			if err != nil {
				return err
			}
			pos = next

		case ldif.KeyRename:
			rn, next, err := parser.ReadRename(src, recOffset)
			if err != nil {
				return err
			}
			if err := printRename(printer, out, opts.toStrict, rn); err != nil {
				return err
			}
			pos = next

		default:
			_, e, next, err := parser.ReadEntry(src, recOffset)
			if err != nil {
				return err
			}
			if opts.toStrict {
				err = printer.PrintStrictEntry(out, e, fmt.Sprintf("%d", count))
			} else {
				err = printer.PrintNativeEntry(out, e, fmt.Sprintf("%d", count))
			}
			if err != nil {
				return err
			}
			pos = next
		}
		count++
	}
	logger.Infof("converted %d records", count)
	return nil
}

// printRename mirrors the diff engine's own bare-rename-record
// handling (diff/engine.go): when the record carries no explicit
// newsuperior, the new DN keeps the old superior implicitly, so the
// native form needs the combined DN while the strict form can pass
// the RDN and superior separately.
func printRename(printer *ldif.Printer, out io.Writer, toStrict bool, rn *entry.RenameDescriptor) error {
	if toStrict {
		return printer.PrintStrictRename0(out, rn.OldDN, rn.NewRDN, rn.NewSuperior, rn.DeleteOldRDN)
	}
	newDN := rn.NewRDN
	if rn.NewSuperior != "" {
		newDN = rn.NewRDN + "," + rn.NewSuperior
	}
	return printer.PrintNativeRename0(out, rn.OldDN, newDN, rn.DeleteOldRDN)
}

func main() {
	var (
		input = kingpin.Arg(
			"input",
			"File to convert (must be a seekable file; stdin is rejected).",
		).String()
		output = kingpin.Flag(
			"output",
			"File to write ('-' or omitted means stdout).",
		).Short('o').String()
		from = kingpin.Flag(
			"from",
			"Source format: native or strict.",
		).Default("native").String()
		to = kingpin.Flag(
			"to",
			"Destination format: native or strict.",
		).Default("strict").String()
		binaryMode = kingpin.Flag(
			"binary-mode",
			"Binary value handling: ascii, utf8 or junk.",
		).Default("utf8").String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Short('d').Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("ldifconv")).Author("ldapvi-go")
	kingpin.CommandLine.Help = "Converts a directory document between the native and strict formats\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	logger.Infof("%v", version.Print("ldifconv"))
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	if *from != "native" && *from != "strict" {
		logger.Fatalf("--from must be 'native' or 'strict', got %q", *from)
	}
	if *to != "native" && *to != "strict" {
		logger.Fatalf("--to must be 'native' or 'strict', got %q", *to)
	}

	opts := ConvertOptions{
		inputFile:  *input,
		outputFile: *output,
		fromStrict: *from == "strict",
		toStrict:   *to == "strict",
		binaryMode: *binaryMode,
	}
	logger.Infof("Options: %+v", opts)

	if err := convert(logger, opts); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
