// Command fs-glob enumerates hourly flow files in the repository for a
// selection of classes, types, sensors, and hours, printing one existing
// file path per line.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"FlowSieve/internal/repo"
	"FlowSieve/internal/site"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fs-glob: ")

	var (
		configPath   = flag.String("site-config", "configs/flowsieve.yaml", "site configuration file")
		classArg     = flag.String("class", "", "repository class(es) to enumerate")
		typeArg      = flag.String("type", "", "type(s) within the selected class(es)")
		flowtypesArg = flag.String("flowtypes", "", "class/type pairs to enumerate; excludes class and type")
		sensorsArg   = flag.String("sensors", "", "sensors to enumerate; default all for the class")
		startDate    = flag.String("start-date", "", "first hour to enumerate, YYYY/MM/DD[:HH]")
		endDate      = flag.String("end-date", "", "final hour to enumerate, YYYY/MM/DD[:HH]")
		printMissing = flag.Bool("print-missing-files", false, "report candidate files that do not exist")
		countOnly    = flag.Bool("count", false, "print an upper bound on the file count and exit")
	)
	flag.Parse()

	if *startDate == "" {
		fmt.Fprintln(os.Stderr, "fs-glob: start-date is required")
		flag.Usage()
		os.Exit(1)
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "fs-glob: unexpected argument %q\n", flag.Arg(0))
		os.Exit(1)
	}

	st, err := site.Load(*configPath)
	if err != nil {
		log.Fatalf("invalid site-config: %v", err)
	}
	sel, err := repo.ParseSelection(st, *classArg, *typeArg, *flowtypesArg, *sensorsArg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sel.Start, sel.End, err = repo.ParseDateRange(*startDate, *endDate)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *printMissing {
		sel.Missing = os.Stderr
	}

	enum, err := repo.NewEnumerator(st, sel)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *countOnly {
		fmt.Println(enum.CountUpperBound())
		return
	}
	for {
		path, ok := enum.Next()
		if !ok {
			break
		}
		fmt.Println(path)
	}
}
