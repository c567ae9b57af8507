package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job_id>...",
	Short: "Show simple-job states",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		states, err := coordinatorClient(cfg).GetSimpleJobStates(cmd.Context(), args)
		if err != nil {
			return err
		}

		if jsonOut {
			printJSON(states)
			return nil
		}
		fmt.Printf("%-30s %-22s %-8s %s\n", "JOB", "STATE", "PID", "RETURN")
		for i, s := range states {
			ret := ""
			if s.ReturnCode != 0 {
				ret = fmt.Sprintf("%d", s.ReturnCode)
			}
			fmt.Printf("%-30s %-22s %-8d %s\n", args[i], s.State, s.PID, ret)
		}
		return nil
	},
}

var tasksIgnore []int64

var tasksCmd = &cobra.Command{
	Use:   "tasks <job_id>",
	Short: "Show grid task states for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		states, err := coordinatorClient(cfg).GetGridTaskStates(cmd.Context(), args[0], tasksIgnore)
		if err != nil {
			return err
		}

		if jsonOut {
			printJSON(states)
			return nil
		}
		fmt.Printf("%-8s %-22s %-8s %s\n", "TASK", "STATE", "PID", "RETURN")
		for _, t := range states {
			ret := ""
			if t.ProcessState.ReturnCode != 0 {
				ret = fmt.Sprintf("%d", t.ProcessState.ReturnCode)
			}
			fmt.Printf("%-8d %-22s %-8d %s\n", t.TaskID, t.ProcessState.State, t.ProcessState.PID, ret)
		}
		fmt.Printf("Total: %d tasks\n", len(states))
		return nil
	},
}

func init() {
	tasksCmd.Flags().Int64SliceVar(&tasksIgnore, "ignore", nil, "task ids to leave out")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tasksCmd)
}
