package wasmhost

// DemoGuest returns a minimal WASM guest for the demo module. It imports
// "demo" "add" and re-exports it as "add", so calling the guest exercises
// the full host boundary: guest export -> host function -> native Add.
//
// The binary is assembled by hand; the text form is:
//
//	(module
//	  (import "demo" "add" (func $add (param i64 i64) (result i64)))
//	  (func (export "add") (param i64 i64) (result i64)
//	    local.get 0
//	    local.get 1
//	    call $add))
func DemoGuest() []byte {
	return []byte{
		// \0asm, version 1
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		// type section: (i64, i64) -> i64
		0x01, 0x07, 0x01, 0x60, 0x02, 0x7e, 0x7e, 0x01, 0x7e,
		// import section: "demo" "add" func type 0
		0x02, 0x0c, 0x01, 0x04, 'd', 'e', 'm', 'o', 0x03, 'a', 'd', 'd', 0x00, 0x00,
		// function section: one func, type 0
		0x03, 0x02, 0x01, 0x00,
		// export section: "add" -> func 1
		0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x01,
		// code section: local.get 0, local.get 1, call 0
		0x0a, 0x0a, 0x01, 0x08, 0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b,
	}
}
