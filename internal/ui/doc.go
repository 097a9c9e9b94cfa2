// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI watches one render task through its lifecycle:
//  1. [WatchView] : Poll the task, animating a spinner and progress bar
//  2. [DoneView] : Display the final snapshot (artifact or error)
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving polled
// snapshots as messages. Polling happens on a fixed interval so a watched
// task behaves the same as any other API consumer; there is no privileged
// channel into the scheduler.
//
// Keyboard bindings: c requests cancellation, q quits (the task keeps running server-side).
package ui
