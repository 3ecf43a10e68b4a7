package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/born-ml/cgraph/internal/autodiff"
	"github.com/born-ml/cgraph/internal/graphspec"
)

type traceOptions struct {
	verbose    bool
	otel       bool
	metrics    bool
	clearGrads bool
}

func newTraceCmd() *cobra.Command {
	var opts traceOptions
	cmd := &cobra.Command{
		Use:   "trace <graph.yaml>",
		Short: "Build a graph from YAML and print its ranks and backward order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log scheduler decisions to stderr")
	cmd.Flags().BoolVar(&opts.otel, "otel", false, "export spans to stderr")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "export metrics to stderr on exit")
	cmd.Flags().BoolVar(&opts.clearGrads, "clear-grads", true, "zero gradient accumulators before the pass")
	return cmd
}

func runTrace(ctx context.Context, out, errOut io.Writer, path string, opts traceOptions) (err error) {
	file, err := graphspec.Load(path)
	if err != nil {
		return err
	}

	graphOpts := []autodiff.Option{autodiff.WithName(file.Name)}
	if opts.verbose {
		handler := slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelDebug})
		graphOpts = append(graphOpts, autodiff.WithLogger(slog.New(handler)))
	}
	if opts.otel {
		exporter, exportErr := stdouttrace.New(stdouttrace.WithWriter(errOut), stdouttrace.WithPrettyPrint())
		if exportErr != nil {
			return fmt.Errorf("create span exporter: %w", exportErr)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer func() { err = errors.Join(err, tp.Shutdown(context.Background())) }()
		graphOpts = append(graphOpts, autodiff.WithTracerProvider(tp))
	}
	if opts.metrics {
		exporter, exportErr := stdoutmetric.New(stdoutmetric.WithWriter(errOut), stdoutmetric.WithPrettyPrint())
		if exportErr != nil {
			return fmt.Errorf("create metric exporter: %w", exportErr)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
		defer func() { err = errors.Join(err, mp.Shutdown(context.Background())) }()
		graphOpts = append(graphOpts, autodiff.WithMeterProvider(mp))
	}

	built, err := file.Build(autodiff.NewGraph(graphOpts...))
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}

	fmt.Fprintf(out, "graph %s: %d functions, %d terminals\n", displayName(file), len(file.Functions), len(built.Terminals))
	for _, spec := range file.Functions {
		fn := built.Functions[spec.Name]
		fmt.Fprintf(out, "  %-12s rank %d\n", fn.Name(), fn.Rank())
	}

	if err := built.Forward(ctx); err != nil {
		return err
	}
	order, err := built.Backward(ctx, autodiff.BackwardConfig{ClearGrads: opts.clearGrads})
	fmt.Fprintf(out, "backward order: %s\n", strings.Join(order, ", "))
	if err != nil {
		return err
	}

	for _, src := range file.Sources {
		v := built.Variables[src.Name]
		if v.NeedGrad() {
			fmt.Fprintf(out, "grad %s: %v\n", src.Name, v.Grad().AsFloat32())
		}
	}
	return nil
}

func displayName(f *graphspec.File) string {
	if f.Name == "" {
		return "(unnamed)"
	}
	return f.Name
}
