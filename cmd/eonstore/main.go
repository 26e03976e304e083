// Command eonstore is an interactive shell over an eonstore database
// file, in the shape of the teacher's cmd/turdb.
//
// Usage:
//
//	eonstore [--create] <path>
package main

import (
	"flag"
	"fmt"
	"os"

	"eonstore"
	"eonstore/internal/cli"
)

func main() {
	create := flag.Bool("create", false, "create a new store file instead of opening an existing one")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: eonstore [--create] <path>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	var s *eonstore.Store
	var err error
	if *create {
		s, err = eonstore.Create(path)
	} else {
		s, err = eonstore.Open(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "eonstore: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	repl := cli.NewREPL(s, os.Stdout)
	defer repl.Close()
	repl.Run()
}
