// Package logx is the bot's structured logger.
//
// A thin wrapper over zerolog:
//   - console output with short timestamp and file:line caller
//   - optional JSON file sink
//   - optional ops chat sink (min level, rate limited, never blocks callers)
package logx
