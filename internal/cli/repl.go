// Package cli implements C12: an interactive shell over a Store, in the
// shape of the teacher's pkg/cli REPL but dispatching dot-commands
// instead of parsing SQL, and using github.com/peterh/liner for
// readline-style editing and history instead of a hand-rolled
// bufio.Reader shell.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"eonstore"
)

// REPL drives an interactive session against one open Store: it tracks
// at most one in-flight transaction plus every Handle constructed or
// looked up during it, so a later .rm can refer back to an id without
// re-specifying its type (.get and .set still take int|str).
type REPL struct {
	store *eonstore.Store
	line  *liner.State
	out   io.Writer

	txn       *eonstore.Txn
	intHandle map[eonstore.ObjectID]*eonstore.Handle[int64]
	strHandle map[eonstore.ObjectID]*eonstore.Handle[string]
}

// NewREPL wraps an already-open store with an interactive shell reading
// from the terminal (via liner) and writing to out.
func NewREPL(s *eonstore.Store, out io.Writer) *REPL {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	return &REPL{
		store:     s,
		line:      l,
		out:       out,
		intHandle: make(map[eonstore.ObjectID]*eonstore.Handle[int64]),
		strHandle: make(map[eonstore.ObjectID]*eonstore.Handle[string]),
	}
}

// Close releases the terminal line editor. It does not close the Store.
func (r *REPL) Close() error {
	return r.line.Close()
}

// Run reads and dispatches commands until EOF or .quit.
func (r *REPL) Run() {
	r.store.Logger().Info("repl started")
	defer r.store.Logger().Info("repl exiting")
	fmt.Fprintln(r.out, "eonstore shell. Enter .help for commands, .quit to exit.")
	for {
		input, err := r.line.Prompt(r.prompt())
		if err != nil { // io.EOF or liner.ErrPromptAborted
			fmt.Fprintln(r.out)
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if input == ".quit" || input == ".exit" {
			return
		}
		if err := r.dispatch(input); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *REPL) prompt() string {
	if r.txn != nil {
		return "eonstore*> "
	}
	return "eonstore> "
}

func (r *REPL) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case ".help":
		r.printHelp()
		return nil
	case ".begin":
		return r.cmdBegin()
	case ".commit":
		return r.cmdCommit()
	case ".rollback":
		return r.cmdRollback()
	case ".construct":
		return r.cmdConstruct(args)
	case ".get":
		return r.cmdGet(args)
	case ".set":
		return r.cmdSet(args)
	case ".rm":
		return r.cmdRemove(args)
	case ".stats":
		return r.cmdStats()
	default:
		return fmt.Errorf("unrecognized command %q, try .help", cmd)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, `.begin                          start a transaction
.construct int <value>         construct a new int64 object
.construct str <value>         construct a new string object
.get int|str <id>              read an object at the current (or an implicit) transaction
.set int|str <id> <value>      mutate an object within the current transaction
.rm <id>                       remove an object within the current transaction
.commit                        commit the current transaction
.rollback                      discard the current transaction
.stats                         print allocator and object counts
.quit                           exit`)
}

func (r *REPL) cmdBegin() error {
	if r.txn != nil {
		return fmt.Errorf("a transaction is already open")
	}
	txn, err := r.store.Begin(context.Background())
	if err != nil {
		return err
	}
	r.txn = txn
	return nil
}

func (r *REPL) cmdCommit() error {
	if r.txn == nil {
		return fmt.Errorf("no transaction is open")
	}
	err := r.txn.Commit()
	r.txn = nil
	if err != nil {
		r.store.Logger().Warn("transaction commit failed", "error", err)
	}
	return err
}

func (r *REPL) cmdRollback() error {
	if r.txn == nil {
		return fmt.Errorf("no transaction is open")
	}
	err := r.txn.Rollback()
	r.txn = nil
	return err
}

// withImplicitTxn runs fn against the open transaction, or a fresh
// one-shot transaction committed immediately afterward if none is open
// — so .get works as a quick read-only probe between .begin sessions.
func (r *REPL) withImplicitTxn(fn func(*eonstore.Txn) error) error {
	if r.txn != nil {
		return fn(r.txn)
	}
	txn, err := r.store.Begin(context.Background())
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit()
}

func (r *REPL) cmdConstruct(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: .construct int|str <value>")
	}
	if r.txn == nil {
		return fmt.Errorf(".construct requires an open transaction (.begin first)")
	}
	switch args[0] {
	case "int":
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return err
		}
		h := eonstore.Construct(r.txn, r.store, v, eonstore.Int64Codec)
		r.intHandle[h.ID()] = h
		fmt.Fprintf(r.out, "id=%d\n", h.ID())
		return nil
	case "str":
		v := strings.Join(args[1:], " ")
		h := eonstore.Construct(r.txn, r.store, v, eonstore.StringCodec)
		r.strHandle[h.ID()] = h
		fmt.Fprintf(r.out, "id=%d\n", h.ID())
		return nil
	default:
		return fmt.Errorf("unknown type %q, want int or str", args[0])
	}
}

func (r *REPL) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: .get int|str <id>")
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	return r.withImplicitTxn(func(txn *eonstore.Txn) error {
		switch args[0] {
		case "int":
			h, err := r.resolveInt(txn, id)
			if err != nil {
				return err
			}
			v, err := h.Read(txn)
			if err != nil {
				return err
			}
			fmt.Fprintln(r.out, v)
			return nil
		case "str":
			h, err := r.resolveStr(txn, id)
			if err != nil {
				return err
			}
			v, err := h.Read(txn)
			if err != nil {
				return err
			}
			fmt.Fprintln(r.out, v)
			return nil
		default:
			return fmt.Errorf("unknown type %q, want int or str", args[0])
		}
	})
}

func (r *REPL) cmdSet(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: .set int|str <id> <value>")
	}
	if r.txn == nil {
		return fmt.Errorf(".set requires an open transaction (.begin first)")
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "int":
		v, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return err
		}
		h, err := r.resolveInt(r.txn, id)
		if err != nil {
			return err
		}
		ptr, err := h.Mutate(r.txn)
		if err != nil {
			return err
		}
		*ptr = v
		return nil
	case "str":
		v := strings.Join(args[2:], " ")
		h, err := r.resolveStr(r.txn, id)
		if err != nil {
			return err
		}
		ptr, err := h.Mutate(r.txn)
		if err != nil {
			return err
		}
		*ptr = v
		return nil
	default:
		return fmt.Errorf("unknown type %q, want int or str", args[0])
	}
}

func (r *REPL) cmdRemove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: .rm <id>")
	}
	if r.txn == nil {
		return fmt.Errorf(".rm requires an open transaction (.begin first)")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if h, ok := r.intHandle[id]; ok {
		h.Remove(r.txn)
		return nil
	}
	if h, ok := r.strHandle[id]; ok {
		h.Remove(r.txn)
		return nil
	}
	return fmt.Errorf("id %d was never constructed or looked up this session", id)
}

func (r *REPL) cmdStats() error {
	used, freed, objects := r.store.Stats()
	fmt.Fprintf(r.out, "allocated=%d freed=%d objects=%d\n", used, freed, objects)
	return nil
}

func (r *REPL) resolveInt(txn *eonstore.Txn, id eonstore.ObjectID) (*eonstore.Handle[int64], error) {
	if h, ok := r.intHandle[id]; ok {
		return h, nil
	}
	h, err := eonstore.Lookup(txn, r.store, id, eonstore.Int64Codec)
	if err != nil {
		return nil, err
	}
	r.intHandle[id] = h
	return h, nil
}

func (r *REPL) resolveStr(txn *eonstore.Txn, id eonstore.ObjectID) (*eonstore.Handle[string], error) {
	if h, ok := r.strHandle[id]; ok {
		return h, nil
	}
	h, err := eonstore.Lookup(txn, r.store, id, eonstore.StringCodec)
	if err != nil {
		return nil, err
	}
	r.strHandle[id] = h
	return h, nil
}

func parseID(s string) (eonstore.ObjectID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return eonstore.ObjectID(n), nil
}
