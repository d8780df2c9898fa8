// Package logx configures chime's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// The Service owns the sinks and can swap them at runtime via Apply(),
// so loggers handed out early stay live across config reloads.
package logx
