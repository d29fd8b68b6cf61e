// Command bptreedb is a minimal reference driver over the bptreedb
// library: it reads a command count and that many commands from its
// input, applies them to a tree rooted at a path prefix, and writes
// find results to its output. It exists to exercise the public API end
// to end; parsing and formatting here are not part of the core.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oda/bptreedb"
)

// Driver adapts the line protocol described in the package doc to a *bptreedb.Tree.
type Driver struct {
	Tree *bptreedb.Tree
	K    int
}

// Run reads a line holding the command count, then that many command
// lines, from r, writing find results to w. It stops early if ctx is canceled.
func (d *Driver) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return fmt.Errorf("bptreedb: invalid command count %q: %w", scanner.Text(), err)
	}

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			return fmt.Errorf("bptreedb: expected %d commands, got %d", n, i)
		}
		if err := d.runOne(scanner.Text(), bw); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *Driver) runOne(line string, w *bufio.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("bptreedb: empty command line")
	}

	switch fields[0] {
	case "insert", "delete":
		if len(fields) != 3 {
			return fmt.Errorf("bptreedb: %s requires a key and a value, got %q", fields[0], line)
		}
		val, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return fmt.Errorf("bptreedb: invalid value %q: %w", fields[2], err)
		}
		key := d.padKey(fields[1])
		if fields[0] == "insert" {
			return d.Tree.Insert(key, uint32(val))
		}
		return d.Tree.Erase(key, uint32(val))

	case "find":
		if len(fields) != 2 {
			return fmt.Errorf("bptreedb: find requires a key, got %q", line)
		}
		var out []uint32
		if err := d.Tree.Find(d.padKey(fields[1]), &out); err != nil {
			return err
		}
		return writeValues(w, out)

	default:
		return fmt.Errorf("bptreedb: unknown command %q", fields[0])
	}
}

func writeValues(w *bufio.Writer, vals []uint32) error {
	if len(vals) == 0 {
		_, err := w.WriteString("null\n")
		return err
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	_, err := w.WriteString(strings.Join(parts, " ") + "\n")
	return err
}

// padKey pads s with zero bytes, or truncates it, to exactly K bytes.
func (d *Driver) padKey(s string) []byte {
	b := make([]byte, d.K)
	copy(b, s)
	return b
}
