// Package viz renders simulation progress and results in the terminal.
//
//   - [Model]: a Bubble Tea view that follows a running [sim.Job], plotting
//     velocity against the target as the run advances
//   - [PlotSeries], [SummaryTable]: static renderings used by the CLI
//
// # Key Bindings
//
//	Q / Ctrl+C - cancel the run and quit
//	?          - toggle help
package viz
