package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/api"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
	"github.com/VanDung-dev/HieraTime-Engine/engine"
)

type computeOptions struct {
	file    string
	remote  string
	token   string
	timeout  time.Duration
	indent   bool
	arrowOut string
}

func newComputeCommand(a *app) *cobra.Command {
	var opts computeOptions

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Evaluate one JSON request and print the JSON result",
		Long: `Evaluate a request of the form

  {"op": "add_duration",
   "lhs": {"type": "timestamp[ms]", "values": [0, null]},
   "rhs": {"type": "duration[s]", "values": [60]}}

read from --file or stdin. With --remote the request is sent to a running
server instead of being evaluated locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompute(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "request file (default stdin)")
	flags.StringVar(&opts.remote, "remote", "", "evaluate on the server at this TCP address")
	flags.StringVar(&opts.token, "token", "", "auth token for --remote")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for --remote")
	flags.BoolVar(&opts.indent, "indent", false, "indent the JSON output")
	flags.StringVar(&opts.arrowOut, "arrow-out", "", "also write the result to this path as an Arrow IPC file")
	flags.String("overflow", "", "overflow policy (error, null)")
	a.bind(cmd, "engine.overflow_policy", "overflow")

	return cmd
}

func (a *app) runCompute(cmd *cobra.Command, opts computeOptions) error {
	data, err := readInput(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}

	conv := harrow.NewConverter(nil)
	req, err := conv.DecodeJSONRequest(data)
	if err != nil {
		return fmt.Errorf("%s: %w", api.ErrorCodeFor(err), err)
	}
	defer req.Release()

	var result arrow.Array
	if opts.remote != "" {
		result, err = computeRemote(cmd.Context(), req, opts)
	} else {
		executor := engine.NewExecutor(nil, a.cfg.Engine.ChunkSize, nil)
		result, err = executor.Run(cmd.Context(), req.Op, req.LHS, req.RHS,
			temporal.WithOverflowPolicy(a.cfg.Overflow()))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", api.ErrorCodeFor(err), err)
	}
	defer result.Release()

	if opts.arrowOut != "" {
		if err := a.writeResultFile(opts.arrowOut, req.Op, result); err != nil {
			return err
		}
	}

	out, err := conv.EncodeJSONResult(req.Op, result)
	if err != nil {
		return err
	}
	if opts.indent {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			return err
		}
		out = buf.Bytes()
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func (a *app) writeResultFile(path string, op temporal.Op, result arrow.Array) error {
	codec, err := harrow.NewIPCCodec(nil, a.cfg.IPC.Compression)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	record := harrow.NewResultRecord(op, result)
	defer record.Release()

	if err := codec.WriteIPCFile(f, []arrow.Record{record}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func computeRemote(ctx context.Context, req *harrow.Request, opts computeOptions) (arrow.Array, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client, err := api.Dial(ctx, opts.remote, api.ClientOptions{Token: opts.token, Timeout: opts.timeout})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.Compute(req.Op, req.LHS, req.RHS)
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return data, nil
}
