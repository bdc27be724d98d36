// Package execution runs a child process and captures both of its output
// streams in real time.
//
// The main components are:
//   - Launcher: starts the child with piped stdout and stderr (ExecLauncher)
//   - StreamReader: splits one pipe into lines and pushes them onto a LineQueue
//   - LineQueue: unbounded FIFO between a reader and the drainer, closed by a sentinel
//   - drainer: consumes both queues on the caller's goroutine and forwards each line
//   - EventSink: live destination for lines (LogSink, WriterSink, MultiSink, livestream.Hub)
//   - aggregator: keeps every line and settles the process into a Result
//
// Executor.Execute ties them together. Every line read ends up in the Result
// whether or not the sink accepted it, and a failing sink never stops the drain.
package execution
