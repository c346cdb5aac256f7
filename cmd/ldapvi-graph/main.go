// Command ldapvi-graph renders the JSON-lines dispatch log a --graph
// run of cmd/ldapvi produces into a Graphviz diagram: one node per
// distinct DN and one edge per rename; a deleted DN's node is drawn
// dashed and red.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/emicklei/dot"
	"github.com/goccy/go-graphviz"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/ldapvi-go/ldapvi/internal/glue"
	"github.com/ldapvi-go/ldapvi/internal/version"
)

func main() {
	var (
		eventsFile = kingpin.Arg(
			"events",
			"JSON-lines graph event file written by cmd/ldapvi --graph.",
		).Required().String()
		dotFile = kingpin.Flag(
			"dot",
			"Also write the raw Graphviz DOT source to this file.",
		).String()
		outputFile = kingpin.Flag(
			"output",
			"Rendered image file to write.",
		).Default("ldapvi-graph.png").Short('o').String()
		format = kingpin.Flag(
			"format",
			"Rendered image format: png or svg.",
		).Default("png").String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("ldapvi-graph")).Author("ldapvi-go")
	kingpin.CommandLine.Help = "Renders a cmd/ldapvi --graph dispatch log as a Graphviz diagram\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	logger.Infof("%v", version.Print("ldapvi-graph"))
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	if err := run(logger, *eventsFile, *dotFile, *outputFile, *format); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger, eventsPath, dotPath, outputPath, format string) error {
	f, err := os.Open(eventsPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", eventsPath, err)
	}
	defer f.Close()

	events, err := glue.ReadGraphEvents(f)
	if err != nil {
		return fmt.Errorf("reading graph events from %s: %w", eventsPath, err)
	}
	logger.Infof("read %d dispatched operations", len(events))

	g := dot.NewGraph(dot.Directed)
	nodes := make(map[string]dot.Node)
	nodeFor := func(dn string) dot.Node {
		if n, ok := nodes[dn]; ok {
			return n
		}
		n := g.Node(dn)
		nodes[dn] = n
		return n
	}

	for _, ev := range events {
		switch ev.Kind {
		case "add":
			nodeFor(ev.NewDN)
		case "delete":
			nodeFor(ev.OldDN).Attr("style", "dashed").Attr("color", "red")
		case "rename":
			g.Edge(nodeFor(ev.OldDN), nodeFor(ev.NewDN), "rename")
		case "change":
			nodeFor(ev.NewDN)
		}
	}

	dotSource := g.String()
	if dotPath != "" {
		if err := os.WriteFile(dotPath, []byte(dotSource), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", dotPath, err)
		}
	}

	gv := graphviz.New()
	parsed, err := graphviz.ParseBytes([]byte(dotSource))
	if err != nil {
		return fmt.Errorf("parsing rendered DOT source: %w", err)
	}

	renderFormat := graphviz.PNG
	if format == "svg" {
		renderFormat = graphviz.SVG
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close()

	if err := gv.Render(parsed, renderFormat, out); err != nil {
		return fmt.Errorf("rendering %s: %w", outputPath, err)
	}
	logger.Infof("wrote %s", outputPath)
	return nil
}
