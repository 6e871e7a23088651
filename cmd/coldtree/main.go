// coldtree is an interactive REPL over a single on-disk tree, grounded
// on a bufio.Scanner db> loop, generalized from SQL statement dispatch
// to direct put/get/dump commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"coldtree/extent"
	"coldtree/nodelayout"
	"coldtree/objrecord"
	"coldtree/super"
	"coldtree/tree"
	"coldtree/txn"
)

func main() {
	path := flag.String("f", "coldtree.idx", "path to the extent file")
	flag.Parse()

	em, err := extent.OpenOnDisk(*path)
	if err != nil {
		log.Fatalf("open %s: %v", *path, err)
	}
	defer em.Close()

	txns := txn.NewManager()
	t := tree.New(em, super.NewTracker(em))

	tx := txns.Begin()
	if _, _, ok, err := readRootOrMkfs(t, tx.ID); err != nil {
		log.Fatalf("mkfs: %v", err)
	} else if !ok {
		fmt.Println("initialized a fresh tree")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("coldtree> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}

		if err := dispatch(t, em, tx.ID, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}

	if err := em.Commit(context.Background(), tx.ID); err != nil {
		log.Fatalf("final commit: %v", err)
	}
	if err := txns.Commit(tx.ID); err != nil {
		log.Fatalf("txn commit: %v", err)
	}
}

// readRootOrMkfs loads the tree's root if one exists, or formats a
// fresh empty tree if the extent file was just created.
func readRootOrMkfs(t *tree.Tree, txID uint64) (extent.Laddr, uint8, bool, error) {
	addr, level, ok, err := t.Root.GetRootLaddr(context.Background(), txID)
	if err != nil {
		return 0, 0, false, err
	}
	if ok {
		return addr, level, true, nil
	}
	if err := t.Mkfs(context.Background(), txID); err != nil {
		return 0, 0, false, err
	}
	return 0, 0, false, nil
}

func dispatch(t *tree.Tree, em extent.Manager, txID uint64, line string) error {
	ctx := context.Background()
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch strings.ToLower(cmd) {
	case "put":
		if len(args) != 5 {
			return fmt.Errorf("usage: put <key> <segment_id> <offset> <length> <checksum>")
		}
		rec, err := parseRecord(args[1:])
		if err != nil {
			return err
		}
		cur, inserted, err := t.Insert(ctx, txID, []byte(args[0]), rec)
		if err != nil {
			return err
		}
		got, err := cur.GetValue()
		if err != nil {
			return err
		}
		if inserted {
			fmt.Printf("inserted %s -> %s\n", args[0], got.String())
		} else {
			fmt.Printf("already present: %s -> %s\n", args[0], got.String())
		}
		return flushTx(em, txID)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <key>")
		}
		res, err := t.LowerBound(ctx, txID, []byte(args[0]))
		if err != nil {
			return err
		}
		if res.Match != nodelayout.MatchEQ {
			fmt.Printf("%s not found\n", args[0])
			return nil
		}
		rec, err := res.Cursor.GetValue()
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", args[0], rec.String())
		return nil

	case "smallest":
		cur, err := t.LookupSmallest(ctx, txID)
		if err != nil {
			return err
		}
		return printCursor(cur)

	case "largest":
		cur, err := t.LookupLargest(ctx, txID)
		if err != nil {
			return err
		}
		return printCursor(cur)

	case "dump":
		return t.Dump(ctx, txID, os.Stdout)

	case "dumpbrief":
		return t.DumpBrief(ctx, txID, os.Stdout)

	default:
		return fmt.Errorf("unknown command %q (put/get/smallest/largest/dump/dumpbrief/exit)", cmd)
	}
}

func printCursor(cur *tree.Cursor) error {
	rec, err := cur.GetValue()
	if err != nil {
		fmt.Println("(empty tree)")
		return nil
	}
	fmt.Println(rec.String())
	return nil
}

func parseRecord(args []string) (objrecord.Record, error) {
	segID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return objrecord.Record{}, fmt.Errorf("segment_id: %w", err)
	}
	offset, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return objrecord.Record{}, fmt.Errorf("offset: %w", err)
	}
	length, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return objrecord.Record{}, fmt.Errorf("length: %w", err)
	}
	checksum, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return objrecord.Record{}, fmt.Errorf("checksum: %w", err)
	}
	return objrecord.Record{
		Loc:      objrecord.Pointer{SegmentID: uint32(segID), Offset: uint32(offset)},
		Length:   length,
		Checksum: checksum,
	}, nil
}

// flushTx commits the transaction's pending overlay to disk. This REPL
// runs one long-lived transaction ID across the whole session and
// keeps reusing it after each commit — the extent manager's overlay is
// keyed by txID, not tied to a single commit — so each write needs to
// be durable before the next command relies on it.
func flushTx(em extent.Manager, txID uint64) error {
	return em.Commit(context.Background(), txID)
}
