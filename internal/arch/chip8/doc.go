// Package chip8 provides the CHIP-8 architecture support of the register tracker.
//
// # CHIP-8 Architecture Overview
//
// CHIP-8 is an interpreted programming language developed in the 1970s for simple games
// and applications on early microcomputers.
//
// # Memory Layout
//
// CHIP-8 systems have 4KB of memory (0x000-MaxAddress):
//   - 0x000-0x1FF: Interpreter area (not used for user programs)
//   - ProgramStart-MaxAddress: User program and data area
//
// # Registers
//
// The tracker follows 16 general-purpose 8-bit registers (V0-VF, ids 0-15)
// and the 16-bit index register I (id RegI). CHIP-8 has no addressable stack,
// the call stack is kept by the interpreter.
//
// # Register Tracking
//
// All instructions are 2 bytes (16 bits) and stored big endian. The
// interpreter clears all registers before the program starts, so values
// reaching the program start are known to be zero.
//
// The only indirect jump is JP V0, nnn which jumps to V0 + nnn. Its targets
// are resolved by tracking V0 backwards from the jump. Skip instructions are
// conditional jumps over the next instruction, their conditions guard the
// paths in the register tracker.
package chip8
