package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	ConsoleLogSuffix   = "_console_output.log"
	ResultJSONSuffix   = "_result.json"
	AllLogsFilename    = "all.log"
	SummaryFilename    = "summary.log"
)

// ResultSink is an interface for different ways of consuming suite results
type ResultSink interface {
	// Consume processes a single suite result
	Consume(result *types.SuiteResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger writes the artifacts of one run below <baseDir>/testrun-<runID>.
type FileLogger struct {
	baseDir      string
	logDir       string
	filter       *reporting.NoiseFilter
	mu           sync.Mutex
	sinks        []ResultSink
	asyncWriters map[string]*AsyncFile
	runID        string
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates the run directory and the default sinks. filter may
// be nil, in which case stderr is written unfiltered.
func NewFileLogger(baseDir string, runID string, filter *reporting.NoiseFilter) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, dir := range []string{baseDir, logDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		filter:       filter,
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}
	logger.sinks = []ResultSink{
		&AllLogsFileSink{logger: logger},
		&ConsoleLogSink{logger: logger},
		&RawJSONSink{logger: logger},
		reporting.NewTextSummarySink(logDir),
	}

	return logger, nil
}

// AddSink registers an extra consumer of suite results.
func (l *FileLogger) AddSink(sink ResultSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.asyncWriters {
		_ = writer.Close()
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// GetDirectoryForRunID returns the path for a specific runID
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	if runID == l.runID {
		return l.logDir, nil
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// LogSuiteResult feeds a suite result to all sinks
func (l *FileLogger) LogSuiteResult(result *types.SuiteResult, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	l.mu.Lock()
	sinks := append([]ResultSink(nil), l.sinks...)
	l.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Consume(result, runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// Complete finalizes all sinks and closes all file writers
func (l *FileLogger) Complete(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	l.mu.Lock()
	sinks := append([]ResultSink(nil), l.sinks...)
	l.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Complete(runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}

	l.closeAllWriters()
	return nil
}

// GetBaseDir returns the run directory
func (l *FileLogger) GetBaseDir() string {
	return l.logDir
}

// GetRunID returns the current runID
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetSummaryFile returns the path to the summary file
func (l *FileLogger) GetSummaryFile() string {
	return filepath.Join(l.logDir, SummaryFilename)
}

// GetAllLogsFile returns the path to the all logs file
func (l *FileLogger) GetAllLogsFile() string {
	return filepath.Join(l.logDir, AllLogsFilename)
}

// GetConsoleLogFile returns the console log path of a suite
func (l *FileLogger) GetConsoleLogFile(suite string) string {
	return filepath.Join(l.logDir, safeFilename(suite)+ConsoleLogSuffix)
}

// GetResultJSONFile returns the raw result path of a suite
func (l *FileLogger) GetResultJSONFile(suite string) string {
	return filepath.Join(l.logDir, safeFilename(suite)+ResultJSONSuffix)
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	r := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
		"...", "",
	)
	return r.Replace(s)
}

func plainLines(lines []execution.Line) string {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = stripansi.Strip(l.Text)
	}
	return strings.Join(texts, "\n")
}

// ConsoleLogSink writes <suite>_console_output.log for every suite: a header,
// the stdout lines, the stderr lines without noise and the exit code.
type ConsoleLogSink struct {
	logger *FileLogger
}

// Consume writes the console log of one suite
func (s *ConsoleLogSink) Consume(result *types.SuiteResult, runID string) error {
	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", baseDir, err)
	}

	res := s.logger.filter.Apply(result.Result)
	name := result.Metadata.Name
	rule := strings.Repeat("=", 50)

	var content strings.Builder
	fmt.Fprintf(&content, "%s Console Output\n", name)
	fmt.Fprintf(&content, "%s\n", rule)
	fmt.Fprintf(&content, "Test Suite: %s\n", name)
	fmt.Fprintf(&content, "Run ID: %s\n", runID)
	fmt.Fprintf(&content, "Command: %s\n", strings.Join(res.Argv, " "))
	fmt.Fprintf(&content, "Start Time: %s\n", res.StartedAt.Format(time.DateTime))
	fmt.Fprintf(&content, "Duration: %s\n", reporting.FormatDuration(result.Duration))
	fmt.Fprintf(&content, "%s\n\n", rule)
	content.WriteString("STDOUT:\n")
	content.WriteString(plainLines(res.Stdout))
	content.WriteString("\n\nSTDERR:\n")
	content.WriteString(plainLines(res.Stderr))
	fmt.Fprintf(&content, "\n\nProcess Exit Code: %d\n", res.ExitCode)
	if result.Error != nil {
		fmt.Fprintf(&content, "Error: %v\n", result.Error)
	}

	path := filepath.Join(baseDir, safeFilename(name)+ConsoleLogSuffix)
	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("failed to write console log %s: %w", path, err)
	}
	return nil
}

// Complete is a no-op for ConsoleLogSink
func (s *ConsoleLogSink) Complete(runID string) error {
	return nil
}

// AllLogsFileSink appends every suite's output to all.log in run order
type AllLogsFileSink struct {
	logger *FileLogger
}

// Consume appends a suite block to all.log
func (s *AllLogsFileSink) Consume(result *types.SuiteResult, runID string) error {
	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	writer, err := s.logger.getAsyncWriter(filepath.Join(baseDir, AllLogsFilename))
	if err != nil {
		return err
	}

	res := s.logger.filter.Apply(result.Result)
	name := result.Metadata.Name

	var content strings.Builder
	fmt.Fprintf(&content, "\n=== %s ===\n", name)
	fmt.Fprintf(&content, "Status: %s  Exit Code: %d  Duration: %s\n\n",
		result.Status, res.ExitCode, reporting.FormatDuration(result.Duration))
	if len(res.Stdout) > 0 {
		fmt.Fprintf(&content, "%s\n", plainLines(res.Stdout))
	}
	if len(res.Stderr) > 0 {
		fmt.Fprintf(&content, "--- %s Errors ---\n", name)
		fmt.Fprintf(&content, "%s\n", plainLines(res.Stderr))
	}
	fmt.Fprintf(&content, "=== End of %s ===\n", name)

	return writer.Write([]byte(content.String()))
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

// RawJSONSink writes the unfiltered execution result of each suite as JSON
type RawJSONSink struct {
	logger *FileLogger
}

type rawSuiteResult struct {
	Suite    string            `json:"suite"`
	Status   types.TestStatus  `json:"status"`
	TimedOut bool              `json:"timed_out,omitempty"`
	Error    string            `json:"error,omitempty"`
	Result   *execution.Result `json:"result"`
}

// Consume writes <suite>_result.json
func (s *RawJSONSink) Consume(result *types.SuiteResult, runID string) error {
	baseDir, err := s.logger.GetDirectoryForRunID(runID)
	if err != nil {
		return err
	}
	raw := rawSuiteResult{
		Suite:    result.Metadata.Name,
		Status:   result.Status,
		TimedOut: result.TimedOut,
		Result:   result.Result,
	}
	if result.Error != nil {
		raw.Error = result.Error.Error()
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result for %s: %w", result.Metadata.Name, err)
	}
	path := filepath.Join(baseDir, safeFilename(result.Metadata.Name)+ResultJSONSuffix)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Complete is a no-op for RawJSONSink
func (s *RawJSONSink) Complete(runID string) error {
	return nil
}
