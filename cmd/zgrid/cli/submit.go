package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"zgrid/internal/api"
	"zgrid/internal/worker"
)

var (
	submitID       string
	submitName     string
	submitPriority int32
	submitCommand  string
	submitModule   string
	submitFunction string
	submitTasks    string
	submitSealed   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job to the coordinator",
	Long: `Submit a job. --command submits a simple command job; --module/--function
submit a function job, or a grid job when --tasks points at a task file:

    [[tasks]]
    task_id = 0
    args    = "first argument payload"`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitID, "id", "", "job id (required)")
	submitCmd.Flags().StringVar(&submitName, "name", "", "friendly name (defaults to the id)")
	submitCmd.Flags().Int32Var(&submitPriority, "priority", 100, "dispatch priority weight (> 0)")
	submitCmd.Flags().StringVar(&submitCommand, "command", "", "command line for a simple command job")
	submitCmd.Flags().StringVar(&submitModule, "module", "", "module name for a function or grid job")
	submitCmd.Flags().StringVar(&submitFunction, "function", "", "function name for a function or grid job")
	submitCmd.Flags().StringVar(&submitTasks, "tasks", "", "TOML task file; makes this a grid job")
	submitCmd.Flags().BoolVar(&submitSealed, "all-tasks-added", true, "seal the grid job after these tasks")
	rootCmd.AddCommand(submitCmd)
}

type taskFile struct {
	Tasks []taskEntry `toml:"tasks"`
}

type taskEntry struct {
	TaskID int64  `toml:"task_id"`
	Args   string `toml:"args"`
}

func loadTasks(path string) ([]api.GridTask, error) {
	var tf taskFile
	if _, err := toml.DecodeFile(path, &tf); err != nil {
		return nil, fmt.Errorf("decode task file %s: %w", path, err)
	}
	tasks := make([]api.GridTask, len(tf.Tasks))
	for i, t := range tf.Tasks {
		tasks[i] = api.GridTask{TaskID: t.TaskID, PickledFunctionArguments: []byte(t.Args)}
	}
	return tasks, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if submitID == "" {
		return fmt.Errorf("--id is required")
	}
	name := submitName
	if name == "" {
		name = submitID
	}

	job := &api.Job{JobID: submitID, JobFriendlyName: name, Priority: submitPriority}
	switch {
	case submitCommand != "":
		argv, err := worker.ParseCommandLine(submitCommand)
		if err != nil {
			return err
		}
		job.PyCommand = &api.PyCommandJob{CommandLine: argv}
	case submitModule != "" && submitFunction != "":
		fn := &api.PyFunctionJob{ModuleName: submitModule, FunctionName: submitFunction}
		if submitTasks != "" {
			tasks, err := loadTasks(submitTasks)
			if err != nil {
				return err
			}
			job.PyGrid = &api.PyGridJob{Function: fn, Tasks: tasks, AllTasksAdded: submitSealed}
		} else {
			job.PyFunction = fn
		}
	default:
		return fmt.Errorf("either --command or --module and --function are required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resp, err := coordinatorClient(cfg).AddJob(cmd.Context(), job)
	if err != nil {
		return err
	}

	if jsonOut {
		printJSON(resp)
		return nil
	}
	switch resp.State {
	case api.AddJobIsDuplicate:
		fmt.Printf("job %s already exists\n", submitID)
	default:
		fmt.Printf("job %s added\n", submitID)
	}
	return nil
}

var (
	addTasksFile   string
	addTasksSealed bool
)

var addTasksCmd = &cobra.Command{
	Use:   "add-tasks <job_id>",
	Short: "Add tasks to an existing grid job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := loadTasks(addTasksFile)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = coordinatorClient(cfg).AddTasksToGridJob(cmd.Context(), &api.AddTasksToGridJobRequest{
			JobID:         args[0],
			Tasks:         tasks,
			AllTasksAdded: addTasksSealed,
		})
		if err != nil {
			return err
		}
		fmt.Printf("added %d tasks to %s\n", len(tasks), args[0])
		return nil
	},
}

func init() {
	addTasksCmd.Flags().StringVar(&addTasksFile, "tasks", "", "TOML task file (required)")
	addTasksCmd.Flags().BoolVar(&addTasksSealed, "all-tasks-added", false, "seal the grid job after these tasks")
	_ = addTasksCmd.MarkFlagRequired("tasks")
	rootCmd.AddCommand(addTasksCmd)
}
