// Package workload reads and generates the sequences of accesses that drive a
// cache.
//
// A workload file has one access per line. A read is `r <address>`, a write
// is `w <address> <value>`. Numbers can be decimal, or hexadecimal with a 0x
// prefix. Everything after a `#` is a comment, and blank lines are skipped.
package workload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/mem/cache"
)

// ErrSyntax is returned when a workload line cannot be parsed.
var ErrSyntax = errors.New("workload syntax error")

// ErrNoAddresses is returned when random requests are asked for an empty
// memory.
var ErrNoAddresses = errors.New("no addresses to generate requests for")

// A Request is one access of a workload.
type Request struct {
	Mode    cache.AccessMode
	Address uint64
	Value   uint64

	// Line is the line number in the workload file, 0 for generated requests.
	Line int
}

// Parse reads all the requests from r.
func Parse(r io.Reader) ([]Request, error) {
	var requests []Request

	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		req, err := parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrSyntax, lineNumber, err)
		}

		req.Line = lineNumber
		requests = append(requests, req)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

func parseFields(fields []string) (Request, error) {
	switch strings.ToLower(fields[0]) {
	case "r", "read":
		if len(fields) != 2 {
			return Request{}, fmt.Errorf("read takes 1 operand, got %d",
				len(fields)-1)
		}

		address, err := parseNumber(fields[1])
		if err != nil {
			return Request{}, err
		}

		return Request{Mode: cache.Read, Address: address}, nil
	case "w", "write":
		if len(fields) != 3 {
			return Request{}, fmt.Errorf("write takes 2 operands, got %d",
				len(fields)-1)
		}

		address, err := parseNumber(fields[1])
		if err != nil {
			return Request{}, err
		}

		value, err := parseNumber(fields[2])
		if err != nil {
			return Request{}, err
		}

		return Request{Mode: cache.Write, Address: address, Value: value}, nil
	default:
		return Request{}, fmt.Errorf("unknown operation %q", fields[0])
	}
}

func parseNumber(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}

	return n, nil
}

// Format writes the requests in the format that Parse reads.
func Format(w io.Writer, requests []Request) error {
	for _, req := range requests {
		var err error

		switch req.Mode {
		case cache.Write:
			_, err = fmt.Fprintf(w, "w %d %d\n", req.Address, req.Value)
		default:
			_, err = fmt.Fprintf(w, "r %d\n", req.Address)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Random generates n requests to addresses in [0, capacity). A writeRatio
// share of them, in [0, 1], are writes of random values. The same seed
// always gives the same requests. Zero requests need no addresses; any other
// count with a zero capacity returns ErrNoAddresses.
func Random(
	n int,
	capacity uint64,
	writeRatio float64,
	seed uint64,
) ([]Request, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative request count %d", n)
	}

	if n == 0 {
		return []Request{}, nil
	}

	if capacity == 0 {
		return nil, fmt.Errorf("%w: %d requests", ErrNoAddresses, n)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	requests := make([]Request, n)

	for i := range requests {
		requests[i].Address = rng.Uint64N(capacity)

		if rng.Float64() < writeRatio {
			requests[i].Mode = cache.Write
			requests[i].Value = rng.Uint64N(1 << 16)
		}
	}

	return requests, nil
}
