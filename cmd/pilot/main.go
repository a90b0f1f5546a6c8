// Package main provides the pilot headless task runner. It loads a YAML
// task file, executes every task through one automation engine, and
// writes a JSON summary suitable for CI pipelines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/pilot/pkg/config"
	"github.com/entrhq/pilot/pkg/engine"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/perf"
	"github.com/entrhq/pilot/pkg/types"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	TaskFile    string
	OutputFile  string
	Headed      bool
	Timeout     time.Duration
	ShowVersion bool
}

// taskFile is the YAML document listing the tasks to run.
type taskFile struct {
	Tasks []taskSpec `yaml:"tasks"`
}

// taskSpec is one task entry in the task file.
type taskSpec struct {
	Kind       types.TaskKind   `yaml:"kind"`
	Priority   types.Priority   `yaml:"priority"`
	Timeout    types.Duration   `yaml:"timeout"`
	MaxRetries int              `yaml:"max_retries"`
	Config     types.TaskConfig `yaml:"config"`
}

// summary is the JSON document written when all tasks finish.
type summary struct {
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Results   []*types.Result `json:"results"`
	Report    perf.Report     `json:"report"`
}

func main() {
	cliConfig := parseFlags()

	if cliConfig.ShowVersion {
		fmt.Printf("pilot v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cliConfig); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "pilot: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags.
func parseFlags() *CLIConfig {
	cliConfig := &CLIConfig{}

	flag.StringVar(&cliConfig.ConfigFile, "config", "", "Path to engine configuration file (YAML)")
	flag.StringVar(&cliConfig.TaskFile, "tasks", "", "Path to task file (YAML, required)")
	flag.StringVar(&cliConfig.OutputFile, "output", "", "Output file for the JSON summary (default stdout)")
	flag.BoolVar(&cliConfig.Headed, "headed", false, "Run the browser with a visible window")
	flag.DurationVar(&cliConfig.Timeout, "timeout", 10*time.Minute, "Overall run timeout")
	flag.BoolVar(&cliConfig.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Pilot - Headless Browser Task Runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pilot -tasks tasks.yaml [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run a task file against the default configuration\n")
		fmt.Fprintf(os.Stderr, "  pilot -tasks checkout-tasks.yaml\n\n")
		fmt.Fprintf(os.Stderr, "  # Use a custom engine configuration and save the summary\n")
		fmt.Fprintf(os.Stderr, "  pilot -tasks smoke.yaml -config pilot.yaml -output summary.json\n\n")
	}

	flag.Parse()
	return cliConfig
}

// run loads configuration and tasks, executes them, and writes the summary.
func run(ctx context.Context, cliConfig *CLIConfig) error {
	if cliConfig.TaskFile == "" {
		flag.Usage()
		return fmt.Errorf("a task file is required")
	}

	ctx, cancel := context.WithTimeout(ctx, cliConfig.Timeout)
	defer cancel()

	engineConfig := config.Default()
	if cliConfig.ConfigFile != "" {
		loaded, err := config.Load(cliConfig.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		engineConfig = loaded
	}
	if cliConfig.Headed {
		engineConfig.Headless = false
	}

	tasks, err := loadTasks(cliConfig.TaskFile, engineConfig)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("task file %s contains no tasks", cliConfig.TaskFile)
	}

	logger := logging.New("pilot")
	defer func() { _ = logger.Sync() }()

	eng, err := engine.New(engineConfig, logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Cleanup() }()

	if err := eng.Initialize(ctx); err != nil {
		return err
	}

	events := eng.Subscribe(len(tasks) + 8)
	defer eng.Unsubscribe(events)

	pending := make(map[string]bool, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, task := range tasks {
		id, submitErr := eng.SubmitTask(task)
		if submitErr != nil {
			return fmt.Errorf("failed to submit task: %w", submitErr)
		}
		pending[id] = true
		order = append(order, id)
	}

	if err := awaitTasks(ctx, logger, events, pending); err != nil {
		return err
	}

	out := summary{Report: eng.PerformanceReport()}
	for _, id := range order {
		result, resultErr := eng.TaskResult(id)
		if resultErr != nil {
			return resultErr
		}
		out.Results = append(out.Results, result)
		if result.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}

	if err := writeSummary(cliConfig.OutputFile, out); err != nil {
		return err
	}
	if out.Failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", out.Failed, len(order))
	}
	return nil
}

// awaitTasks drains engine events until every submitted task has finished.
func awaitTasks(ctx context.Context, logger *zap.Logger, events <-chan types.Event, pending map[string]bool) error {
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("run cancelled with %d tasks outstanding: %w", len(pending), ctx.Err())
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("engine shut down with %d tasks outstanding", len(pending))
			}
			switch event.Type {
			case types.EventTaskCompleted, types.EventTaskFailed:
				if pending[event.TaskID] {
					delete(pending, event.TaskID)
					logger.Info("task finished",
						zap.String("task_id", event.TaskID),
						zap.String("event", string(event.Type)))
				}
			case types.EventEngineError:
				logger.Error("engine error", zap.Error(event.Err))
			}
		}
	}
	return nil
}

// loadTasks reads the YAML task file and builds tasks with the engine's
// default budgets applied where the file leaves them unset.
func loadTasks(path string, engineConfig config.EngineConfig) ([]*types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse task file: %w", err)
	}

	tasks := make([]*types.Task, 0, len(file.Tasks))
	for _, spec := range file.Tasks {
		kind := spec.Kind
		if kind == "" {
			kind = types.TaskKindWorkflow
		}
		priority := spec.Priority
		if priority == "" {
			priority = types.PriorityMedium
		}

		task := types.NewTask(kind, priority, spec.Config)
		task.Timeout = engineConfig.Timeout
		task.MaxRetries = engineConfig.Retries
		if spec.Timeout > 0 {
			task.Timeout = spec.Timeout
		}
		if spec.MaxRetries > 0 {
			task.MaxRetries = spec.MaxRetries
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// writeSummary marshals the summary to the output file, or stdout when no
// file was given.
func writeSummary(path string, out summary) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
