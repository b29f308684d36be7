package wasm

// Minimal WebAssembly binary encoder for building plugin fixtures.

const (
	typeI64Result = iota
	typePrefSet
)

var funcTypes = [][]byte{
	// () -> i64
	{0x60, 0x00, 0x01, 0x7e},
	// (i32, i32, i32, i32) -> i32
	{0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f},
}

type wasmImport struct {
	module, name string
	typ          byte
}

type wasmFunc struct {
	export string
	typ    byte
	body   []byte
}

type wasmData struct {
	offset int32
	bytes  string
}

type wasmModule struct {
	imports []wasmImport
	funcs   []wasmFunc
	data    []wasmData
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func section(id byte, count int, items ...[]byte) []byte {
	payload := uleb(uint64(count))
	for _, item := range items {
		payload = append(payload, item...)
	}
	out := []byte{id}
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

// i64Const returns a function body yielding v.
func i64Const(v int64) []byte {
	return append(append([]byte{0x42}, sleb(v)...), 0x0b)
}

// packed returns a function body yielding ptr<<32 | len.
func packed(ptr, length uint32) []byte {
	return i64Const(int64(uint64(ptr)<<32 | uint64(length)))
}

func i32Const(v int32) []byte {
	return append([]byte{0x41}, sleb(int64(v))...)
}

// callImportThen calls import 0 with args, drops its result and returns v.
func callImportThen(v int64, args ...int32) []byte {
	var body []byte
	for _, a := range args {
		body = append(body, i32Const(a)...)
	}
	body = append(body, 0x10, 0x00, 0x1a)
	return append(body, i64Const(v)...)
}

// loopForever is a body that spins in "loop br 0 end" before returning v.
func loopForever(v int64) []byte {
	return append([]byte{0x03, 0x40, 0x0c, 0x00, 0x0b}, i64Const(v)...)
}

func (m wasmModule) encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	out = append(out, section(1, len(funcTypes), funcTypes...)...)

	if len(m.imports) > 0 {
		items := make([][]byte, 0, len(m.imports))
		for _, imp := range m.imports {
			item := append(name(imp.module), name(imp.name)...)
			items = append(items, append(item, 0x00, imp.typ))
		}
		out = append(out, section(2, len(items), items...)...)
	}

	funcs := make([][]byte, 0, len(m.funcs))
	for _, f := range m.funcs {
		funcs = append(funcs, []byte{f.typ})
	}
	out = append(out, section(3, len(funcs), funcs...)...)

	// One memory of one page.
	out = append(out, section(5, 1, []byte{0x00, 0x01})...)

	exports := [][]byte{append(name("memory"), 0x02, 0x00)}
	for i, f := range m.funcs {
		if f.export == "" {
			continue
		}
		idx := uleb(uint64(len(m.imports) + i))
		exports = append(exports, append(append(name(f.export), 0x00), idx...))
	}
	out = append(out, section(7, len(exports), exports...)...)

	bodies := make([][]byte, 0, len(m.funcs))
	for _, f := range m.funcs {
		body := append([]byte{0x00}, f.body...)
		bodies = append(bodies, append(uleb(uint64(len(body))), body...))
	}
	out = append(out, section(10, len(bodies), bodies...)...)

	if len(m.data) > 0 {
		segs := make([][]byte, 0, len(m.data))
		for _, d := range m.data {
			seg := []byte{0x00}
			seg = append(seg, i32Const(d.offset)...)
			seg = append(seg, 0x0b)
			seg = append(seg, name(d.bytes)...)
			segs = append(segs, seg)
		}
		out = append(out, section(11, len(segs), segs...)...)
	}

	return out
}
