package protocol

import (
	"reflect"
	"testing"
)

func TestEncoderDecoderPrimitives(t *testing.T) {
	var e encoder
	e.byte(0x7f)
	e.bool(true)
	e.bool(false)
	e.uint64(1 << 40)
	e.uint32(1 << 20)
	e.bytes([]byte{1, 2, 3})
	e.string("hello")
	e.strings([]string{"a", "b", "c"})
	e.stringMap(map[string]string{"k": "v"})

	d := newDecoder(e.bytesOut())

	if b, err := d.byte(); err != nil || b != 0x7f {
		t.Fatalf("byte: %v %v", b, err)
	}
	if v, err := d.bool(); err != nil || v != true {
		t.Fatalf("bool: %v %v", v, err)
	}
	if v, err := d.bool(); err != nil || v != false {
		t.Fatalf("bool: %v %v", v, err)
	}
	if v, err := d.uint64(); err != nil || v != 1<<40 {
		t.Fatalf("uint64: %v %v", v, err)
	}
	if v, err := d.uint32(); err != nil || v != 1<<20 {
		t.Fatalf("uint32: %v %v", v, err)
	}
	if v, err := d.bytes(); err != nil || !reflect.DeepEqual(v, []byte{1, 2, 3}) {
		t.Fatalf("bytes: %v %v", v, err)
	}
	if v, err := d.string(); err != nil || v != "hello" {
		t.Fatalf("string: %v %v", v, err)
	}
	if v, err := d.strings(); err != nil || !reflect.DeepEqual(v, []string{"a", "b", "c"}) {
		t.Fatalf("strings: %v %v", v, err)
	}
	if v, err := d.stringMap(); err != nil || !reflect.DeepEqual(v, map[string]string{"k": "v"}) {
		t.Fatalf("stringMap: %v %v", v, err)
	}
}

func TestDecoderEmptyCollectionsAreNil(t *testing.T) {
	var e encoder
	e.strings(nil)
	e.stringMap(nil)

	d := newDecoder(e.bytesOut())
	if v, err := d.strings(); err != nil || v != nil {
		t.Fatalf("strings: %v %v, want nil", v, err)
	}
	if v, err := d.stringMap(); err != nil || v != nil {
		t.Fatalf("stringMap: %v %v, want nil", v, err)
	}
}

func TestDecoderRejectsTruncatedInput(t *testing.T) {
	d := newDecoder([]byte{0, 0, 0, 10, 1, 2})
	if _, err := d.bytes(); err == nil {
		t.Fatal("expected error for truncated bytes field")
	}
}

func TestDecoderRejectsEmptyInput(t *testing.T) {
	d := newDecoder(nil)
	if _, err := d.uint32(); err == nil {
		t.Fatal("expected error decoding uint32 from empty input")
	}
}
