// proof-verify recomputes the event_log hash chain from a CSV export and
// checks it against an expected head hash, offline.
//
// Export with:
//
//	\copy (SELECT seq, prev_hash, payload_canonical, hash FROM event_log ORDER BY seq) TO 'events.csv' CSV
package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
)

type row struct {
	Seq       string
	PrevHex   string
	Canonical string
	HashHex   string
}

func chainHash(prev, canonical string) string {
	sum := sha256.Sum256([]byte(prev + "|" + canonical))
	return hex.EncodeToString(sum[:])
}

func main() {
	var (
		inPath   = flag.String("in", "", "CSV exported from event_log (seq, prev_hash, payload_canonical, hash)")
		headHash = flag.String("head", "", "expected head hash hex; empty skips the head check")
	)
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	f, err := os.Open(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(2)
	}
	defer f.Close()

	rd := csv.NewReader(bufio.NewReader(f))
	rd.FieldsPerRecord = 4

	var (
		prev  string
		count int
		head  string
	)
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			os.Exit(2)
		}
		r := row{Seq: rec[0], PrevHex: rec[1], Canonical: rec[2], HashHex: rec[3]}

		if r.PrevHex != prev {
			fmt.Fprintf(os.Stderr, "seq %s: prev_hash mismatch: got %s want %s\n", r.Seq, r.PrevHex, prev)
			os.Exit(1)
		}
		want := chainHash(r.PrevHex, r.Canonical)
		if r.HashHex != want {
			fmt.Fprintf(os.Stderr, "seq %s: hash mismatch: got %s want %s\n", r.Seq, r.HashHex, want)
			os.Exit(1)
		}
		prev = r.HashHex
		head = r.HashHex
		count++
	}

	if *headHash != "" && head != *headHash {
		fmt.Fprintf(os.Stderr, "head mismatch: got %s want %s\n", head, *headHash)
		os.Exit(1)
	}

	fmt.Printf("chain ok: %d events, head %s\n", count, head)
}
