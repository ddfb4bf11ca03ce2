package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"gemini-vision/src/singleinstance"
)

type stressOptions struct {
	n         int
	mode      string
	deadline  time.Duration
	prompt    string
	portStart int
	portEnd   int
}

type runOnceClient interface {
	TryRunOnce(ctx context.Context, req singleinstance.Request) (bool, string, error)
}

// tally counts client outcomes.
type tally struct {
	ok, busy, notDelegated, err atomic.Int32
}

func (t *tally) String() string {
	return fmt.Sprintf("ok=%d busy=%d no-resident=%d err=%d", t.ok.Load(), t.busy.Load(), t.notDelegated.Load(), t.err.Load())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation to a resident gemini-vision",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != "std" && opts.mode != "clip" {
				return fmt.Errorf("invalid mode %q: want std or clip", opts.mode)
			}
			client := singleinstance.NewClient(singleinstance.PortRange{Start: opts.portStart, End: opts.portEnd})
			return runWithOptions(cmd.OutOrStdout(), client, *opts)
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "std", "std|clip: run-once-std (stdout) or run-once (clipboard)")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "prompt sent with each request")
	cmd.Flags().IntVar(&opts.portStart, "port-start", 0, "first resident port (0 uses SINGLEINSTANCE_PORT_START)")
	cmd.Flags().IntVar(&opts.portEnd, "port-end", 0, "last resident port (0 uses SINGLEINSTANCE_PORT_END)")

	return cmd
}

func runWithOptions(out io.Writer, client runOnceClient, opts stressOptions) error {
	var wg sync.WaitGroup
	var t tally
	req := singleinstance.Request{OutputToStdout: opts.mode == "std", Prompt: opts.prompt}

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			delegated, _, err := client.TryRunOnce(ctx, req)
			switch {
			case err != nil && strings.Contains(strings.ToLower(err.Error()), "busy"):
				t.busy.Add(1)
			case err != nil:
				t.err.Add(1)
			case delegated:
				t.ok.Add(1)
			default:
				t.notDelegated.Add(1)
			}
		}()
	}
	wg.Wait()
	fmt.Fprintf(out, "launched=%d %s elapsed=%s\n", opts.n, &t, time.Since(start).Round(time.Millisecond))
	return nil
}
