package main

import (
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-ndexec/internal/ndarray"
)

// maxLoggedElements bounds the output printed by the log format.
const maxLoggedElements = 64

// report summarises one execution.
type report struct {
	Op      string    `cbor:"op"`
	Backend string    `cbor:"backend"`
	DType   string    `cbor:"dtype"`
	Shape   []int     `cbor:"shape"`
	Axis    *int      `cbor:"axis,omitempty"`
	Values  []float64 `cbor:"values"`
	Elapsed int64     `cbor:"elapsed_ns"`
}

func newReport(op, backend string, out *ndarray.NDArray, axis *int, elapsed time.Duration) report {
	return report{
		Op:      op,
		Backend: backend,
		DType:   out.DType().String(),
		Shape:   out.Shape(),
		Axis:    axis,
		Values:  out.ToFloat64s(),
		Elapsed: elapsed.Nanoseconds(),
	}
}

// writeOutput renders out in the requested format: "log", "arrow" (an Arrow
// IPC stream of one record) or "cbor" (the report).
func writeOutput(w io.Writer, format string, rep report, out *ndarray.NDArray, mem memory.Allocator) error {
	switch format {
	case "", "log":
		ev := log.Info().
			Str("op", rep.Op).
			Str("backend", rep.Backend).
			Str("dtype", rep.DType).
			Ints("shape", rep.Shape).
			Dur("elapsed", time.Duration(rep.Elapsed))
		if rep.Axis != nil {
			ev = ev.Int("axis", *rep.Axis)
		}
		if out.Length() <= maxLoggedElements {
			ev = ev.Str("result", out.String())
		}
		ev.Msg("Executed op")
		return nil
	case "arrow":
		rec := out.ToRecord(mem)
		defer rec.Release()
		return writeArrowStream(w, rec)
	case "cbor":
		return cbor.NewEncoder(w).Encode(rep)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func writeArrowStream(w io.Writer, rec arrow.Record) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
