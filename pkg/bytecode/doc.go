// Package bytecode defines the ZED instruction set, the compiler that
// lowers parsed programs into it, and the stack-based virtual machine
// that executes the result.
//
// The bytecode format is designed for:
//   - Compact representation (1-byte opcodes, embedded immediates)
//   - Fast decoding (little-endian fixed-width operands)
//   - Easy serialization (.zbc files are the raw event byte strings)
//
// # Architecture Overview
//
//   - Opcodes: ~45 stack-based instructions covering literals,
//     arithmetic, control flow, scope management, variable and global
//     access, calls, record-range rules and redirection. Most
//     instructions embed a 2-byte source offset used by runtime
//     diagnostics.
//
//   - Compiler: lowers the parser's five event node lists into five
//     independently decodable byte strings. Nested function bodies and
//     rule actions are compiled in their own emission contexts so each
//     byte sequence is self-contained. Conditionals, loops and the
//     short-circuit operators are resolved by back-patching 2-byte
//     absolute jump targets.
//
//   - VM: a stack interpreter sharing one scope stack and one set of
//     globals across all five events. Function definitions carry a
//     64-bit content hash; the VM caches decoded closures by hash and
//     fast-skips definitions it has already seen via the skip operand.
//
// # Operand order
//
// Binary operands are pushed left then right. Subscripts push the index
// before the container. Call and builtin arguments are pushed in
// reverse order so the VM pops them in natural order. Reversing either
// side of this contract alone breaks the compiler/VM ABI.
//
// # Byte order
//
// All embedded 16-bit and 64-bit operands are little-endian, on every
// host. This pins down what the original implementation left
// host-endian; .zbc files produced by a big-endian build of the
// original are not readable here.
package bytecode
