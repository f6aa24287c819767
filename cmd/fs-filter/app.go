package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"FlowSieve/internal/check"
	"FlowSieve/internal/dispatch"
	"FlowSieve/internal/flowio"
	"FlowSieve/internal/plugin"
	"FlowSieve/internal/repo"
	"FlowSieve/internal/site"
	"FlowSieve/internal/tuple"
)

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type app struct {
	// repository selection
	configPath   string
	classArg     string
	typeArg      string
	flowtypesArg string
	sensorsArg   string
	startDate    string
	endDate      string
	printMissing bool

	// alternate input sources
	inputPipe  string
	xargs      string
	inputFiles []string

	// destinations
	passDests stringList
	failDests stringList
	allDests  stringList
	maxPass   uint64
	maxFail   uint64

	// built-in filter rules
	stimeArg    string
	etimeArg    string
	durationArg string
	sportArg    string
	dportArg    string
	aportArg    string
	protoArg    string
	bytesArg    string
	packetsArg  string
	bppArg      string
	saddrArg    string
	daddrArg    string
	anyaddrArg  string
	notSaddr    string
	notDaddr    string

	// tuple matcher
	tupleFile      string
	tupleFields    string
	tupleDirection string
	tupleDelim     string

	// external filters
	plugins stringList

	// execution
	threads          int
	dryRun           bool
	printFilenames   bool
	printStatistics  bool
	printVolumeStats bool

	// built during setup
	chain         *check.Chain
	dests         *dispatch.DestSet
	nextFile      func() (string, bool)
	activeFilters []plugin.Filter
	cleanups      []func()
}

func newApp() *app {
	return &app{
		chain: &check.Chain{},
		dests: dispatch.NewDestSet(),
	}
}

func (a *app) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&a.configPath, "site-config", "configs/flowsieve.yaml", "site configuration file")
	fs.StringVar(&a.classArg, "class", "", "repository class(es) to read")
	fs.StringVar(&a.typeArg, "type", "", "type(s) within the selected class(es)")
	fs.StringVar(&a.flowtypesArg, "flowtypes", "", "class/type pairs to read; excludes class and type")
	fs.StringVar(&a.sensorsArg, "sensors", "", "sensors to read; default all for the class")
	fs.StringVar(&a.startDate, "start-date", "", "first hour of data to read, YYYY/MM/DD[:HH]")
	fs.StringVar(&a.endDate, "end-date", "", "final hour of data to read, YYYY/MM/DD[:HH]")
	fs.BoolVar(&a.printMissing, "print-missing-files", false, "report repository files that do not exist")

	fs.StringVar(&a.inputPipe, "input-pipe", "", "read records from one stream ('stdin' for standard input)")
	fs.StringVar(&a.xargs, "xargs", "", "read input file names from this file ('-' for standard input)")

	fs.Var(&a.passDests, "pass", "destination for records that pass (repeatable)")
	fs.Var(&a.failDests, "fail", "destination for records that fail (repeatable)")
	fs.Var(&a.allDests, "all", "destination for every record read (repeatable)")
	fs.Uint64Var(&a.maxPass, "max-pass-records", 0, "close pass destinations after this many records")
	fs.Uint64Var(&a.maxFail, "max-fail-records", 0, "close fail destinations after this many records")

	fs.StringVar(&a.stimeArg, "stime", "", "pass flows starting within this time window")
	fs.StringVar(&a.etimeArg, "etime", "", "pass flows ending within this time window")
	fs.StringVar(&a.durationArg, "duration", "", "pass flows whose duration in seconds is in this range")
	fs.StringVar(&a.sportArg, "sport", "", "pass flows whose source port is in this list")
	fs.StringVar(&a.dportArg, "dport", "", "pass flows whose destination port is in this list")
	fs.StringVar(&a.aportArg, "aport", "", "pass flows with either port in this list")
	fs.StringVar(&a.protoArg, "protocol", "", "pass flows whose IP protocol is in this list")
	fs.StringVar(&a.bytesArg, "bytes", "", "pass flows whose byte count is in this range")
	fs.StringVar(&a.packetsArg, "packets", "", "pass flows whose packet count is in this range")
	fs.StringVar(&a.bppArg, "bytes-per-packet", "", "pass flows whose bytes/packet ratio is in this range")
	fs.StringVar(&a.saddrArg, "saddress", "", "pass flows whose source address is in this CIDR list")
	fs.StringVar(&a.daddrArg, "daddress", "", "pass flows whose destination address is in this CIDR list")
	fs.StringVar(&a.anyaddrArg, "anyaddress", "", "pass flows with either address in this CIDR list")
	fs.StringVar(&a.notSaddr, "not-saddress", "", "pass flows whose source address is NOT in this CIDR list")
	fs.StringVar(&a.notDaddr, "not-daddress", "", "pass flows whose destination address is NOT in this CIDR list")

	fs.StringVar(&a.tupleFile, "tuple-file", "", "file of field tuples to match")
	fs.StringVar(&a.tupleFields, "tuple-fields", "", "ordered fields of each tuple-file column")
	fs.StringVar(&a.tupleDirection, "tuple-direction", "forward", "tuple match direction: forward, reverse, or both")
	fs.StringVar(&a.tupleDelim, "tuple-delimiter", "|", "column delimiter of the tuple file")

	fs.Var(&a.plugins, "plugin", "external filter plugin to run (repeatable)")

	fs.IntVar(&a.threads, "threads", 1, "number of worker threads")
	fs.BoolVar(&a.dryRun, "dry-run", false, "print candidate file names and process nothing")
	fs.BoolVar(&a.printFilenames, "print-filenames", false, "print each file name as it is processed")
	fs.BoolVar(&a.printStatistics, "print-statistics", false, "print a one-line record count summary")
	fs.BoolVar(&a.printVolumeStats, "print-volume-statistics", false, "print record, packet, and byte totals")
}

func (a *app) wantStats() bool {
	return a.printStatistics || a.printVolumeStats
}

// setup validates the switch combinations and builds the input source, the
// checker chain, and the destination set. Every error here is a
// configuration error: reported before any file is opened.
func (a *app) setup() error {
	if err := a.setupSource(); err != nil {
		return err
	}
	if err := a.setupChain(); err != nil {
		return err
	}
	return a.setupDests()
}

func (a *app) repositorySwitchGiven() bool {
	return a.startDate != "" || a.endDate != "" || a.classArg != "" ||
		a.typeArg != "" || a.flowtypesArg != "" || a.sensorsArg != ""
}

func (a *app) setupSource() error {
	sources := 0
	if a.repositorySwitchGiven() {
		sources++
	}
	if a.inputPipe != "" {
		sources++
	}
	if a.xargs != "" {
		sources++
	}
	if len(a.inputFiles) > 0 {
		sources++
	}
	switch {
	case sources == 0:
		return fmt.Errorf("no input source: give repository selection switches, file names, input-pipe, or xargs")
	case sources > 1:
		return fmt.Errorf("multiple input sources given; exactly one may be active")
	}

	switch {
	case a.inputPipe != "":
		pipe := a.inputPipe
		done := false
		a.nextFile = func() (string, bool) {
			if done {
				return "", false
			}
			done = true
			return pipe, true
		}
	case a.xargs != "":
		next, cleanup, err := fileListSource(a.xargs)
		if err != nil {
			return fmt.Errorf("invalid xargs: %w", err)
		}
		a.nextFile = next
		a.cleanups = append(a.cleanups, cleanup)
	case len(a.inputFiles) > 0:
		files := a.inputFiles
		idx := 0
		a.nextFile = func() (string, bool) {
			if idx >= len(files) {
				return "", false
			}
			path := files[idx]
			idx++
			return path, true
		}
	default:
		if a.startDate == "" {
			return fmt.Errorf("repository selection requires start-date")
		}
		st, err := site.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("invalid site-config: %w", err)
		}
		sel, err := repo.ParseSelection(st, a.classArg, a.typeArg, a.flowtypesArg, a.sensorsArg)
		if err != nil {
			return err
		}
		sel.Start, sel.End, err = repo.ParseDateRange(a.startDate, a.endDate)
		if err != nil {
			return err
		}
		if a.printMissing {
			sel.Missing = os.Stderr
		}
		enum, err := repo.NewEnumerator(st, sel)
		if err != nil {
			return err
		}
		a.nextFile = enum.Next
	}
	return nil
}

// fileListSource yields the non-blank lines of a file-of-filenames.
func fileListSource(path string) (func() (string, bool), func(), error) {
	var f *os.File
	if path == "-" || path == "stdin" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, nil, err
		}
	}
	sc := bufio.NewScanner(f)
	next := func() (string, bool) {
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				return line, true
			}
		}
		return "", false
	}
	cleanup := func() {
		if f != os.Stdin {
			f.Close()
		}
	}
	return next, cleanup, nil
}

func (a *app) setupChain() error {
	builtin := &check.Builtin{}
	if err := a.configureBuiltin(builtin); err != nil {
		return err
	}
	if builtin.Active() {
		a.chain.Append(builtin)
	}

	if a.tupleFile != "" {
		if a.tupleFields == "" {
			return fmt.Errorf("tuple-file requires tuple-fields")
		}
		fields, err := tuple.ParseFields(strings.Split(a.tupleFields, ","))
		if err != nil {
			return err
		}
		dir, err := tuple.ParseDirection(a.tupleDirection)
		if err != nil {
			return err
		}
		if len(a.tupleDelim) != 1 {
			return fmt.Errorf("tuple-delimiter must be a single character")
		}
		f, err := os.Open(a.tupleFile)
		if err != nil {
			return fmt.Errorf("cannot open tuple-file: %w", err)
		}
		ix, err := tuple.Build(fields, f, a.tupleDelim[0])
		f.Close()
		if err != nil {
			return err
		}
		a.chain.Append(ix.Checker(dir))
	}

	for _, name := range a.plugins {
		f, err := plugin.New(name)
		if err != nil {
			return err
		}
		if err := f.Initialize(); err != nil {
			return fmt.Errorf("plugin %s failed to initialize: %w", name, err)
		}
		a.activeFilters = append(a.activeFilters, f)
		a.chain.Append(f)
	}
	return nil
}

func (a *app) configureBuiltin(b *check.Builtin) error {
	if a.stimeArg != "" {
		lo, hi, err := parseTimeWindow(a.stimeArg)
		if err != nil {
			return fmt.Errorf("invalid stime: %w", err)
		}
		b.SetSTime(lo, hi)
	}
	if a.etimeArg != "" {
		lo, hi, err := parseTimeWindow(a.etimeArg)
		if err != nil {
			return fmt.Errorf("invalid etime: %w", err)
		}
		b.SetETime(lo, hi)
	}
	if a.durationArg != "" {
		lo, hi, err := parseDurationRange(a.durationArg)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		b.SetDuration(lo, hi)
	}
	if a.sportArg != "" {
		if err := b.SetSPorts(a.sportArg); err != nil {
			return err
		}
	}
	if a.dportArg != "" {
		if err := b.SetDPorts(a.dportArg); err != nil {
			return err
		}
	}
	if a.aportArg != "" {
		if err := b.SetAPorts(a.aportArg); err != nil {
			return err
		}
	}
	if a.protoArg != "" {
		if err := b.SetProtocols(a.protoArg); err != nil {
			return err
		}
	}
	if a.bytesArg != "" {
		if err := b.SetBytes(a.bytesArg); err != nil {
			return err
		}
	}
	if a.packetsArg != "" {
		if err := b.SetPackets(a.packetsArg); err != nil {
			return err
		}
	}
	if a.bppArg != "" {
		if err := b.SetBytesPerPacket(a.bppArg); err != nil {
			return err
		}
	}
	if a.saddrArg != "" {
		if err := b.SetSAddress(a.saddrArg, false); err != nil {
			return err
		}
	}
	if a.notSaddr != "" {
		if err := b.SetSAddress(a.notSaddr, true); err != nil {
			return err
		}
	}
	if a.daddrArg != "" {
		if err := b.SetDAddress(a.daddrArg, false); err != nil {
			return err
		}
	}
	if a.notDaddr != "" {
		if err := b.SetDAddress(a.notDaddr, true); err != nil {
			return err
		}
	}
	if a.anyaddrArg != "" {
		if err := b.SetAnyAddress(a.anyaddrArg, false); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) setupDests() error {
	if a.dryRun {
		// dry-run opens nothing; candidate paths go to stdout instead
		return nil
	}

	add := func(g dispatch.GroupID, paths []string) error {
		for _, path := range paths {
			w, err := flowio.Create(path)
			if err != nil {
				return fmt.Errorf("cannot open %s destination %s: %w", g, path, err)
			}
			if err := a.dests.Add(g, w.Name(), w, w.Terminal()); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(dispatch.GroupPass, a.passDests); err != nil {
		return err
	}
	if err := add(dispatch.GroupFail, a.failDests); err != nil {
		return err
	}
	if err := add(dispatch.GroupAll, a.allDests); err != nil {
		return err
	}
	a.dests.SetMaxRecords(dispatch.GroupPass, a.maxPass)
	a.dests.SetMaxRecords(dispatch.GroupFail, a.maxFail)

	total := len(a.passDests) + len(a.failDests) + len(a.allDests)
	if total == 0 && !a.wantStats() {
		return fmt.Errorf("no output destination given; use pass, fail, all, or print-statistics")
	}
	return nil
}

func (a *app) dispatchOptions() dispatch.Options {
	opts := dispatch.Options{
		Chain:     a.chain,
		Dests:     a.dests,
		NextFile:  a.nextFile,
		Threads:   a.threads,
		WantStats: a.wantStats(),
	}
	if a.dryRun {
		opts.DryRun = os.Stdout
	}
	if a.printFilenames {
		opts.PrintFiles = os.Stderr
	}
	return opts
}

func (a *app) teardown() {
	if err := a.dests.CloseAll(); err != nil {
		log.Printf("Error closing destination: %v", err)
	}
	for _, f := range a.activeFilters {
		f.Finalize()
	}
	for _, cleanup := range a.cleanups {
		cleanup()
	}
}

// parseTimeWindow parses "T1-T2" (inclusive) or a single "T". A bare day
// covers the whole day; a bare hour covers that hour.
func parseTimeWindow(s string) (lo, hi time.Time, err error) {
	loArg, hiArg, isRange := strings.Cut(s, "-")
	lo, loHadHour, err := repo.ParseDate(loArg)
	if err != nil {
		return lo, hi, err
	}
	if !isRange {
		if loHadHour {
			return lo, lo.Add(time.Hour - time.Millisecond), nil
		}
		return lo, lo.Add(24*time.Hour - time.Millisecond), nil
	}
	hi, hiHadHour, err := repo.ParseDate(hiArg)
	if err != nil {
		return lo, hi, err
	}
	if hiHadHour {
		hi = hi.Add(time.Hour - time.Millisecond)
	} else {
		hi = hi.Add(24*time.Hour - time.Millisecond)
	}
	if hi.Before(lo) {
		return lo, hi, fmt.Errorf("window %q is backwards", s)
	}
	return lo, hi, nil
}

// parseDurationRange parses a range of whole seconds.
func parseDurationRange(s string) (lo, hi time.Duration, err error) {
	lo64, hi64, err := check.ParseCountRange(s)
	if err != nil {
		return 0, 0, err
	}
	lo = time.Duration(lo64) * time.Second
	hi = time.Duration(math.MaxInt64)
	if hi64 < uint64(math.MaxInt64)/uint64(time.Second) {
		hi = time.Duration(hi64) * time.Second
	}
	return lo, hi, nil
}
