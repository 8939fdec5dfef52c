package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/config"
	"github.com/23skdu/longbow-ndexec/internal/executioner"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

func newTestExecutioner(t *testing.T) *executioner.Executioner {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = "reference"
	e, err := executioner.New(cfg)
	require.NoError(t, err)
	return e
}

func TestParseFlags(t *testing.T) {
	shape, err := parseShape("", 8)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, shape)

	shape, err = parseShape(" 2, 3,4", 8)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, shape)

	_, err = parseShape("2,0", 8)
	assert.ErrorIs(t, err, ndarray.ErrInvalidShape)
	_, err = parseShape("2,x", 8)
	assert.ErrorIs(t, err, ndarray.ErrInvalidShape)

	_, ok, err := parseAxis("")
	require.NoError(t, err)
	assert.False(t, ok)
	axis, ok, err := parseAxis("-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, axis)
	_, _, err = parseAxis("rows")
	assert.ErrorIs(t, err, ndarray.ErrIndexOutOfBounds)

	require.NoError(t, checkBudget([]int{1024, 1024}, buffer.Double, "8MiB"))
	assert.ErrorIs(t, checkBudget([]int{1024, 1025}, buffer.Double, "8MiB"), ndarray.ErrInvalidShape)
	require.NoError(t, checkBudget([]int{1 << 20, 1 << 20}, buffer.Half, "0"))
	assert.Error(t, checkBudget([]int{4}, buffer.Float, "lots"))

	args, err := parseArgs("0, 2.5")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2.5}, args)
	_, err = parseArgs("1,,2")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	prevBackend, prevDebug, prevOrdinal := *backendName, *debug, *ordinal
	t.Cleanup(func() { *backendName, *debug, *ordinal = prevBackend, prevDebug, prevOrdinal })

	*backendName = "parallel"
	*debug = true
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "parallel", cfg.Backend)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 0, cfg.Device)

	t.Setenv(config.EnvDevice, "2")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Device)
	*ordinal = 3
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Device)

	*backendName = ""
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Default().Backend, cfg.Backend)
}

func TestOpSpecBuild(t *testing.T) {
	e := newTestExecutioner(t)
	f := ndarray.NewFactory(buffer.Double, memory.DefaultAllocator)
	x, err := input(f, []int{2, 3})
	require.NoError(t, err)
	want := []float64{1, 2, 3, 4, 5, 6}
	require.Equal(t, want, x.ToFloat64s())

	for _, typ := range ops.Types() {
		t.Run(typ.String(), func(t *testing.T) {
			op, err := opSpec{name: typ.String(), scalar: 2, bias: true}.build(x)
			require.NoError(t, err)
			assert.Equal(t, typ, op.Type())
			_, err = e.ExecAndReturn(context.Background(), op)
			require.NoError(t, err)
			assert.Equal(t, want, x.ToFloat64s(), "input is never written")
		})
	}

	op, err := opSpec{name: "pow"}.build(x)
	require.NoError(t, err)
	z, err := e.Exec(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 9, 16, 25, 36}, z.ToFloat64s())

	op, err = opSpec{name: "sub"}.build(x)
	require.NoError(t, err)
	z, err = e.Exec(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, []float64{-5, -3, -1, 1, 3, 5}, z.ToFloat64s())

	op, err = opSpec{name: "var", bias: false}.build(x)
	require.NoError(t, err)
	assert.False(t, op.BiasCorrected())

	_, err = opSpec{name: "matmul"}.build(x)
	assert.ErrorIs(t, err, ops.ErrIllegalOpKind)
}

func TestWriteOutput(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	f := ndarray.NewFactory(buffer.Double, memory.DefaultAllocator)
	x, err := input(f, []int{2, 3})
	require.NoError(t, err)
	axis := 0
	rep := newReport("max", "reference", x, &axis, time.Millisecond)

	t.Run("Arrow", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeOutput(&buf, "arrow", rep, x, mem))

		rdr, err := ipc.NewReader(&buf, ipc.WithAllocator(mem))
		require.NoError(t, err)
		defer rdr.Release()
		require.True(t, rdr.Next())
		rec := rdr.Record()
		col := rec.Column(0).(*array.Float64)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, col.Float64Values())

		md := rdr.Schema().Metadata()
		i := md.FindKey("shape")
		require.GreaterOrEqual(t, i, 0)
		assert.Equal(t, "2,3", md.Values()[i])
	})

	t.Run("CBOR", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeOutput(&buf, "cbor", rep, x, mem))
		var got report
		require.NoError(t, cbor.NewDecoder(&buf).Decode(&got))
		assert.Equal(t, "max", got.Op)
		assert.Equal(t, []int{2, 3}, got.Shape)
		require.NotNil(t, got.Axis)
		assert.Equal(t, 0, *got.Axis)
		assert.Equal(t, "double", got.DType)
		assert.Equal(t, int64(time.Millisecond), got.Elapsed)
	})

	t.Run("Log", func(t *testing.T) {
		assert.NoError(t, writeOutput(&bytes.Buffer{}, "log", rep, x, mem))
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Error(t, writeOutput(&bytes.Buffer{}, "csv", rep, x, mem))
	})
}

func TestMux(t *testing.T) {
	mux := newMux(nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ndexec_soak_iterations_total")
}

func TestSoak(t *testing.T) {
	e := newTestExecutioner(t)
	f := ndarray.NewFactory(buffer.Float, memory.DefaultAllocator)
	x, err := input(f, []int{4, 8})
	require.NoError(t, err)
	before := x.Dup()

	stats, err := soak(context.Background(), e, opSpec{name: "exp"}, x, nil, 50*time.Millisecond, 2)
	require.NoError(t, err)
	assert.Positive(t, stats.iterations)
	assert.Equal(t, stats.iterations*32, stats.elements)
	assert.True(t, x.Equal(before))

	axis := 1
	stats, err = soak(context.Background(), e, opSpec{name: "sum"}, x, &axis, 20*time.Millisecond, 1)
	require.NoError(t, err)
	assert.Positive(t, stats.iterations)

	_, err = soak(context.Background(), e, opSpec{name: "nope"}, x, nil, 20*time.Millisecond, 1)
	assert.ErrorIs(t, err, ops.ErrIllegalOpKind)
}
