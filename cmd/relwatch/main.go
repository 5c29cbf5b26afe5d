// relwatch opens a persistent row store, prints its contents as a
// table, and optionally applies a mutation while watching the delta
// observers receive.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/storage"
)

func main() {
	var dirPath string
	var filePath string
	var badgerPath string
	var schemeSpec string
	var primaryKey string
	var setSpec string
	var whereSpec string

	flag.StringVar(&dirPath, "dir", "", "row-plist directory path")
	flag.StringVar(&filePath, "file", "", "single plist file path")
	flag.StringVar(&badgerPath, "badger", "", "badger database path")
	flag.StringVar(&schemeSpec, "scheme", "", "comma-separated attribute names")
	flag.StringVar(&primaryKey, "pk", "id", "primary key attribute (dir stores)")
	flag.StringVar(&setSpec, "set", "", "mutation to apply: attr=value[,attr=value...]")
	flag.StringVar(&whereSpec, "where", "", "mutation predicate: attr=value")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inspect a stored relation and watch mutation deltas.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -dir rows/ -scheme id,name\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -file prefs.plist -scheme key,value\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -badger data/ -scheme id,name -set name=kat -where id=1\n", os.Args[0])
	}
	flag.Parse()

	if schemeSpec == "" {
		log.Fatal("missing -scheme")
	}
	scheme := relational.NewScheme(strings.Split(schemeSpec, ",")...)

	store, err := openStore(dirPath, filePath, badgerPath, scheme, primaryKey)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	rel := storage.NewStoredRelation(store)
	defer rel.Close()

	fmt.Println(relational.FormatRelationTable(rel))

	if setSpec == "" {
		return
	}
	if whereSpec == "" {
		log.Fatal("-set requires -where")
	}

	remove := rel.AddChangeObserver(func(change relational.RelationChange) {
		added, _ := change.AddedRows()
		removed, _ := change.RemovedRows()
		for _, row := range added {
			fmt.Printf("%s %s\n", color.GreenString("+"), row)
		}
		for _, row := range removed {
			fmt.Printf("%s %s\n", color.RedString("-"), row)
		}
	})
	defer remove()

	if err := rel.Update(parseWhere(whereSpec), parseValues(setSpec)); err != nil {
		log.Fatalf("Update failed: %v", err)
	}

	fmt.Println(relational.FormatRelationTable(rel))
}

func openStore(dirPath, filePath, badgerPath string, scheme relational.Scheme, primaryKey string) (storage.Store, error) {
	switch {
	case dirPath != "":
		return storage.NewRowDirStore(dirPath, scheme, relational.Attr(primaryKey), nil)
	case filePath != "":
		return storage.NewPlistFileStore(filePath, scheme)
	case badgerPath != "":
		return storage.NewBadgerStore(badgerPath, scheme)
	}
	return nil, fmt.Errorf("one of -dir, -file, -badger is required")
}

func parseWhere(spec string) relational.SelectExpression {
	name, value, ok := strings.Cut(spec, "=")
	if !ok {
		log.Fatalf("bad -where %q", spec)
	}
	return relational.AttrEq(name, parseValue(value))
}

func parseValues(spec string) relational.Row {
	row := relational.Row{}
	for _, part := range strings.Split(spec, ",") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			log.Fatalf("bad -set entry %q", part)
		}
		row[relational.Attr(name)] = parseValue(value)
	}
	return row
}

func parseValue(s string) relational.Value {
	if s == "null" {
		return nil
	}
	var i int64
	if _, err := fmt.Sscanf(s, "%d", &i); err == nil && fmt.Sprintf("%d", i) == s {
		return i
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err == nil && strings.ContainsAny(s, ".eE") {
		return f
	}
	return s
}
