// Package vm implements the tuuvm execution engine.
//
// A Context owns one heap and everything needed to run code in it: the
// bootstrap type hierarchy, the symbol and global tables, method dispatch
// with inline caches, the activation record chain, the bytecode interpreter
// and the hooks used by the compiler and the JIT.
//
// # Values and the collector
//
// Values are tuple.Tuple words. Heap tuples are virtual addresses that the
// moving collector rewrites, so Go code must not keep a heap tuple in a local
// variable across a call that can reach a safepoint (FunctionApply, a send,
// a backward jump, CollectGarbage). Tuples that must survive belong in a
// rooted place: an activation record, a GCRootsRecord, or a Handle.
// Allocation never collects.
//
// # Unwinding
//
// Non-local control transfers (return into a frame, break, continue,
// exceptions) are Go panics carrying an *unwindSignal aimed at a record on
// the chain. Only the frame that pushed the target record recovers it; every
// other frame pops its own record on the way out.
package vm
