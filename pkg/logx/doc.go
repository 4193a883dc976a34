// Package logx configures xqueue's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - Optional file output JSON-structured (useful under cron, where stdout
//     goes to the cron log and the JSON file feeds later inspection)
package logx
