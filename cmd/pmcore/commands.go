package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/pmcore/pkg/align"
	"github.com/logflow/pmcore/pkg/analysis"
	"github.com/logflow/pmcore/pkg/bpmn"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/logskeleton"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/pmpt"
	"github.com/logflow/pmcore/pkg/ptree"
	"github.com/logflow/pmcore/pkg/replay"
	"github.com/logflow/pmcore/pkg/tui"
	"github.com/logflow/pmcore/pkg/writer"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover a process model from an event log",
	Long: `Discover a process model and write it as PNML (Petri net), PTML (process tree)
or BPMN 2.0 XML, chosen by the output file extension. PTML and BPMN need a
process tree and so one of the inductive miners.

Examples:
  pmcore discover -i orders.xes -o orders.pnml
  pmcore discover -i orders.csv -a inductive_infrequent -o orders.bpmn
  pmcore discover -i orders.xes -a heuristics -o orders.pnml`,
	RunE: runDiscover,
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Token-based replay of an event log on a model",
	Long: `Replay every trace on the model and report token-based fitness.

Examples:
  pmcore replay -i orders.xes -m orders.pnml
  pmcore replay -i orders.xes --diagnostics replay.parquet`,
	RunE: runReplay,
}

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Compute optimal alignments between an event log and a model",
	Long: `Align every trace with the model and report alignment-based fitness and the
most frequent deviations. The search variant and move costs come from the
alignment section of the configuration.

Examples:
  pmcore align -i orders.xes -m orders.pnml
  pmcore align -i orders.xes -a alpha --diagnostics align.parquet`,
	RunE: runAlign,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate fitness, precision, generalization and simplicity",
	RunE:  runEvaluate,
}

var footprintsCmd = &cobra.Command{
	Use:   "footprints",
	Short: "Compare the footprints of an event log and a model",
	RunE:  runFootprints,
}

var skeletonCmd = &cobra.Command{
	Use:   "skeleton",
	Short: "Discover a log skeleton and check the log against it",
	RunE:  runSkeleton,
}

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "List the most frequent variants of an event log",
	RunE:  runVariants,
}

var variantsCompareCmd = &cobra.Command{
	Use:   "compare <left-log> <right-log>",
	Short: "Compare the variant prefix trees of two event logs",
	Args:  cobra.ExactArgs(2),
	RunE:  runVariantsCompare,
}

func init() {
	for _, cmd := range []*cobra.Command{discoverCmd, replayCmd, alignCmd, evaluateCmd, footprintsCmd} {
		addModelFlags(cmd)
	}
	discoverCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Model output file (.pnml, .ptml, .bpmn)")

	for _, cmd := range []*cobra.Command{replayCmd, alignCmd} {
		cmd.Flags().StringVar(&diagnosticsFile, "diagnostics", "", "Write per-trace diagnostics to this Parquet file")
		cmd.Flags().StringVar(&compressionFlag, "compression", "snappy", "Parquet compression (none, snappy, gzip, zstd)")
		cmd.Flags().IntVar(&batchSize, "batch-size", writer.DefaultConfig().BatchSize, "Rows per Parquet record batch")
	}

	for _, cmd := range []*cobra.Command{skeletonCmd, variantsCmd} {
		cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Event log file (required)")
		cmd.MarkFlagRequired("input")
	}
	variantsCmd.Flags().IntVarP(&topK, "top", "k", 10, "Number of variants to list")

	variantsCmd.AddCommand(variantsCompareCmd)
	rootCmd.AddCommand(discoverCmd, replayCmd, alignCmd, evaluateCmd, footprintsCmd, skeletonCmd, variantsCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	start := time.Now()
	m, err := s.model(l)
	if err != nil {
		return err
	}
	if !quiet {
		s.out.Section("model")
		kvs := []tui.KV{
			{Key: "Places", Value: strconv.Itoa(m.Net.Net.NumPlaces())},
			{Key: "Transitions", Value: strconv.Itoa(m.Net.Net.NumTransitions())},
			{Key: "Arcs", Value: strconv.Itoa(m.Net.Net.NumArcs())},
			{Key: "Discovered in", Value: tui.Duration(time.Since(start))},
		}
		if m.Tree != nil {
			kvs = append(kvs, tui.KV{Key: "Tree size", Value: strconv.Itoa(ptree.Size(m.Tree))})
		}
		s.out.KeyValues(kvs)
	}
	if m.Tree != nil {
		fmt.Fprintln(cmd.OutOrStdout(), m.Tree.String())
	}
	if outputFile == "" {
		return nil
	}
	if err := writeModel(outputFile, m); err != nil {
		return err
	}
	if !quiet {
		s.out.Success("model written to " + outputFile)
	}
	return nil
}

func writeModel(path string, m *analysis.Model) error {
	ext := strings.ToLower(filepath.Ext(path))
	if (ext == ".ptml" || ext == ".bpmn") && m.Tree == nil {
		return fmt.Errorf("%s output needs a process tree; use an inductive miner", ext)
	}
	if ext != ".pnml" && ext != ".ptml" && ext != ".bpmn" {
		return fmt.Errorf("unsupported model output %s (want .pnml, .ptml or .bpmn)", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch ext {
	case ".pnml":
		err = petri.WritePNML(f, m.Net)
	case ".ptml":
		err = ptree.WritePTML(f, m.Tree, name)
	case ".bpmn":
		err = bpmn.WriteTree(f, m.Tree, name)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func runReplay(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	m, err := s.model(l)
	if err != nil {
		return err
	}
	res, err := s.an.Replay(s.ctx, m.Net, l)
	if err != nil {
		return err
	}

	s.out.Section("token replay")
	s.out.KeyValues([]tui.KV{
		{Key: "Fitness (log)", Value: tui.Ratio(res.Fitness())},
		{Key: "Fitness (avg trace)", Value: tui.Ratio(res.AverageTraceFitness())},
		{Key: "Fitting traces", Value: tui.Percent(res.PercFitTraces())},
	})
	printReplayDiagnostics(s, res)
	return writeDiagnostics(s, l, res, nil)
}

func printReplayDiagnostics(s *session, res *replay.Result) {
	if quiet || res.Diagnostics == nil {
		return
	}
	var rows [][]string
	for _, a := range byCount(res.Diagnostics.Problems) {
		rows = append(rows, []string{a, "missing tokens", strconv.Itoa(res.Diagnostics.Problems[a])})
	}
	for _, a := range byCount(res.Diagnostics.Unknown) {
		rows = append(rows, []string{a, "unknown to the model", strconv.Itoa(res.Diagnostics.Unknown[a])})
	}
	if len(rows) == 0 {
		return
	}
	s.out.Section("replay problems")
	s.out.Table([]string{"ACTIVITY", "PROBLEM", "EVENTS"}, rows)
}

// byCount returns the keys of m by descending count, ties by name.
func byCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func runAlign(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	m, err := s.model(l)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := s.an.Align(s.ctx, m.Net, l)
	if err != nil {
		return err
	}

	s.out.Section("alignments")
	s.out.KeyValues([]tui.KV{
		{Key: "Fitness (log)", Value: tui.Ratio(res.Fitness())},
		{Key: "Fitness (avg trace)", Value: tui.Ratio(res.AverageFitness())},
		{Key: "Fitting traces", Value: tui.Percent(res.PercFitTraces())},
		{Key: "Failed", Value: strconv.Itoa(res.Failed())},
		{Key: "Aligned in", Value: tui.Duration(time.Since(start))},
	})
	if rows := deviationRows(res, 10); len(rows) > 0 && !quiet {
		s.out.Section("most frequent deviations")
		s.out.Table([]string{"MOVE", "ACTIVITY", "TRACES"}, rows)
	}
	for i, t := range res.Traces {
		if t.Err != nil {
			s.out.Warn(fmt.Sprintf("trace %s: %v", l.Traces[i].CaseID(s.an.Keys.CaseID), t.Err))
		}
	}
	return writeDiagnostics(s, l, nil, res)
}

// deviationRows counts, per move kind and activity, the traces showing
// that deviation and returns the n most frequent.
func deviationRows(res *align.Result, n int) [][]string {
	type dev struct {
		kind, activity string
	}
	counts := make(map[dev]int)
	var order []dev
	for _, t := range res.Traces {
		if t.Alignment == nil {
			continue
		}
		seen := make(map[dev]bool)
		for _, mv := range t.Alignment.Deviations() {
			d := dev{mv.Kind.String(), mv.Activity}
			if d.activity == "" {
				d.activity = mv.Label
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			if counts[d] == 0 {
				order = append(order, d)
			}
			counts[d]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	rows := make([][]string, 0, min(n, len(order)))
	for _, d := range order[:min(n, len(order))] {
		rows = append(rows, []string{d.kind, d.activity, strconv.Itoa(counts[d])})
	}
	return rows
}

func writeDiagnostics(s *session, l *eventlog.EventLog, rep *replay.Result, al *align.Result) error {
	if diagnosticsFile == "" {
		return nil
	}
	rows := writer.Rows(l, s.an.Keys, rep, al)
	cfg := writer.DefaultConfig()
	cfg.BatchSize = batchSize
	cfg.Compression = writer.ParseCompression(compressionFlag)
	cfg.Metadata["pmcore:run_id"] = s.an.RunID
	cfg.Metadata["pmcore:version"] = version
	if err := cfg.AttachPrefixTree(s.an.PrefixTree(l)); err != nil {
		return err
	}

	f, err := os.Create(diagnosticsFile)
	if err != nil {
		return err
	}
	w, err := writer.NewParquetWriter(f, cfg)
	if err != nil {
		f.Close()
		return err
	}
	var bar interface{ Add(int) error }
	if !quiet {
		bar = s.out.Progress(len(rows), "writing diagnostics")
	}
	for lo := 0; lo < len(rows); lo += cfg.BatchSize {
		hi := min(lo+cfg.BatchSize, len(rows))
		if err := w.Write(s.ctx, rows[lo:hi]); err != nil {
			w.Close()
			return err
		}
		if bar != nil {
			bar.Add(hi - lo)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	if !quiet {
		s.out.Success(fmt.Sprintf("%d diagnostic rows written to %s", w.RowsWritten(), diagnosticsFile))
	}
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	m, err := s.model(l)
	if err != nil {
		return err
	}
	rep, err := s.an.Evaluate(s.ctx, m.Net, l)
	if err != nil {
		return err
	}
	s.out.Report(rep)
	return nil
}

func runFootprints(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	m, err := s.model(l)
	if err != nil {
		return err
	}
	dev, err := s.an.CompareFootprints(s.ctx, m.Net, l)
	if err != nil {
		return err
	}

	if !quiet {
		alphabet, cells := s.an.Footprints(l).Table()
		rows := make([][]string, len(alphabet))
		for i, a := range alphabet {
			rows[i] = append([]string{a}, cells[i]...)
		}
		s.out.Section("log footprints")
		s.out.Table(append([]string{""}, alphabet...), rows)
	}

	s.out.Section("footprint conformance")
	if dev.Conforms() {
		s.out.Success("log footprints are allowed by the model")
		return nil
	}
	for _, p := range dev.Relations {
		s.out.Warn(fmt.Sprintf("%s -> %s not allowed by the model", p.A, p.B))
	}
	for _, a := range dev.Start {
		s.out.Warn("unexpected start activity " + a)
	}
	for _, a := range dev.End {
		s.out.Warn("unexpected end activity " + a)
	}
	for _, a := range dev.Activities {
		s.out.Warn("activity unknown to the model: " + a)
	}
	if !dev.MinLengthFit {
		s.out.Warn("traces shorter than the shortest model run")
	}
	return nil
}

func runSkeleton(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	sk, res, err := s.an.Skeleton(s.ctx, l)
	if err != nil {
		return err
	}
	s.out.Section("log skeleton")
	fmt.Fprint(cmd.OutOrStdout(), sk.String())
	s.out.Section("skeleton conformance")
	s.out.KeyValues([]tui.KV{
		{Key: "Fitness", Value: tui.Ratio(res.Fitness())},
		{Key: "Fitting traces", Value: tui.Percent(res.FitTraces())},
	})
	counts := res.DeviationCounts()
	var rows [][]string
	for _, c := range logskeleton.Constraints() {
		if counts[c] > 0 {
			rows = append(rows, []string{c.String(), strconv.Itoa(counts[c])})
		}
	}
	if len(rows) > 0 {
		s.out.Table([]string{"CONSTRAINT", "VIOLATIONS"}, rows)
	}
	return nil
}

func runVariants(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := s.readLog(inputFile)
	if err != nil {
		return err
	}
	v := s.an.Variants(l)
	groups := v.ByFrequency()
	rows := make([][]string, 0, min(topK, len(groups)))
	for i, g := range groups[:min(topK, len(groups))] {
		share := float64(g.Count()) / float64(v.Total())
		rows = append(rows, []string{strconv.Itoa(i + 1), strconv.Itoa(g.Count()), tui.Percent(share), g.String()})
	}
	s.out.Section(fmt.Sprintf("top %d of %d variants", len(rows), v.Len()))
	s.out.Table([]string{"#", "CASES", "SHARE", "VARIANT"}, rows)
	return nil
}

func runVariantsCompare(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	left, err := s.readLog(args[0])
	if err != nil {
		return err
	}
	right, err := s.readLog(args[1])
	if err != nil {
		return err
	}
	d := pmpt.Compare(s.an.PrefixTree(left), s.an.PrefixTree(right))
	s.out.Section("variant comparison")
	fmt.Fprint(cmd.OutOrStdout(), d.String())
	return nil
}
