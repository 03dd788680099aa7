package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
	"github.com/theory-cloud/stacktheory/pkg/logger"
	"github.com/theory-cloud/stacktheory/pkg/sanitization"
	"github.com/theory-cloud/stacktheory/pkg/simulator"
	"github.com/theory-cloud/stacktheory/pkg/state"
	"github.com/theory-cloud/stacktheory/pkg/synth"
	"github.com/theory-cloud/stacktheory/pkg/topology"
)

var formatFlag = &cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "output format (text, json)"}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "emit the provisioning plan for a topology",
		ArgsUsage: "<topology>",
		Flags: []cli.Flag{
			formatFlag,
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "also write the JSON plan to this file"},
			&cli.BoolFlag{Name: "no-prior", Usage: "ignore recorded state and plan every node as a create"},
		},
		Action: func(c *cli.Context) error {
			cfg, plan, err := buildPlan(c, !c.Bool("no-prior"))
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				raw, err := plan.JSON()
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, append(raw, '\n'), 0o600); err != nil {
					return fmt.Errorf("write plan: %w", err)
				}
			}
			if c.String("format") == "json" {
				return writeJSON(c.App.Writer, redactPlan(plan))
			}
			printPlan(c.App.Writer, cfg.StackName(), plan)
			return nil
		},
	}
}

func graphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "print the dependency graph of a topology",
		ArgsUsage: "<topology>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dot", Usage: "render Graphviz DOT"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			nodes, err := loadTopology(c, cfg)
			if err != nil {
				return err
			}
			g, err := planner(cfg).Build(nodes)
			if err != nil {
				return err
			}
			levels, err := g.Levels()
			if err != nil {
				return err
			}
			edges, err := g.ResolveEdges()
			if err != nil {
				return err
			}

			w := c.App.Writer
			if c.Bool("dot") {
				fmt.Fprintf(w, "digraph %q {\n  rankdir=LR;\n", cfg.StackName())
				for _, n := range g.Nodes() {
					fmt.Fprintf(w, "  %q [label=\"%s\\n%s\"];\n", n.ID(), n.ID(), n.Kind())
				}
				for _, e := range edges {
					fmt.Fprintf(w, "  %q -> %q;\n", e.To, e.From)
				}
				fmt.Fprintln(w, "}")
				return nil
			}
			for i, level := range levels {
				fmt.Fprintf(w, "level %d: %s\n", i, strings.Join(level, ", "))
			}
			for _, e := range edges {
				fmt.Fprintf(w, "%s -> %s\n", e.From, e.To)
			}
			return nil
		},
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:      "apply",
		Usage:     "provision a topology against the simulated cloud and record state",
		ArgsUsage: "<topology>",
		Flags: []cli.Flag{
			formatFlag,
			&cli.IntFlag{Name: "concurrency", Value: deploy.DefaultConcurrency, Usage: "maximum nodes provisioned at once"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "per-node provisioning timeout"},
			&cli.DurationFlag{Name: "latency", Usage: "simulated provisioning latency per node"},
			&cli.StringSliceFlag{Name: "fail", Usage: "node id the simulator fails (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			cfg, plan, err := buildPlan(c, true)
			if err != nil {
				return err
			}
			store, err := openStore(c, cfg)
			if err != nil {
				return err
			}
			publisher, err := openPublisher(c.Context, cfg)
			if err != nil {
				return err
			}

			simOpts := []simulator.Option{simulator.WithLatency(c.Duration("latency"))}
			if cfg.AccountID != "" {
				simOpts = append(simOpts, simulator.WithAccount(cfg.AccountID))
			}
			if cfg.Region != "" {
				simOpts = append(simOpts, simulator.WithRegion(cfg.Region))
			}
			for _, id := range c.StringSlice("fail") {
				simOpts = append(simOpts, simulator.WithFailure(id, nil))
			}
			backend := deploy.ProvisionTimeout(simulator.New(simOpts...), c.Duration("timeout"))

			executor := deploy.NewExecutor(backend,
				deploy.WithStore(store),
				deploy.WithPublisher(publisher),
				deploy.WithLogger(logger.Logger()),
				deploy.WithConcurrency(c.Int("concurrency")),
			)
			d, execErr := executor.Execute(c.Context, plan)
			if d != nil {
				if c.String("format") == "json" {
					if err := writeJSON(c.App.Writer, d); err != nil {
						return err
					}
				} else {
					printDeployment(c.App.Writer, d)
				}
			}
			return execErr
		},
	}
}

func synthCommand() *cli.Command {
	return &cli.Command{
		Name:      "synth",
		Usage:     "render a topology as an AWS CDK cloud assembly",
		ArgsUsage: "<topology>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "cdk.out", Usage: "cloud assembly directory"},
			&cli.StringFlag{Name: "asset", Usage: "function code directory (defaults to a placeholder)"},
		},
		Action: func(c *cli.Context) error {
			cfg, plan, err := buildPlan(c, false)
			if err != nil {
				return err
			}
			dir, err := synth.Synth(plan, synth.Options{
				OutDir:    c.String("out"),
				Account:   cfg.AccountID,
				Region:    cfg.Region,
				AssetPath: c.String("asset"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, dir)
			return nil
		},
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "inspect and edit recorded resources",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "list the resources recorded for a stack",
				ArgsUsage: "[stack]",
				Flags:     []cli.Flag{formatFlag},
				Action: func(c *cli.Context) error {
					stack, store, err := stateTarget(c)
					if err != nil {
						return err
					}
					resources, err := store.Load(c.Context, stack)
					if err != nil {
						return err
					}
					for i := range resources {
						resources[i].Properties = sanitization.SanitizeProperties(resources[i].Properties)
						resources[i].Outputs = sanitization.SanitizeProperties(resources[i].Outputs)
					}
					if c.String("format") == "json" {
						return writeJSON(c.App.Writer, resources)
					}
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "NODE\tKIND\tDEPLOYMENT\tUPDATED")
					for _, r := range resources {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.NodeID, r.Kind, r.DeploymentID, r.UpdatedAt.Format(time.RFC3339))
					}
					return tw.Flush()
				},
			},
			{
				Name:      "rm",
				Usage:     "forget a recorded resource without deleting it",
				ArgsUsage: "<node> [stack]",
				Action: func(c *cli.Context) error {
					node := c.Args().First()
					if node == "" {
						return cli.Exit("a node id is required", exitUsage)
					}
					stack, store, err := stateTarget(c)
					if err != nil {
						return err
					}
					if c.Args().Len() > 1 {
						stack = c.Args().Get(1)
					}
					return store.Delete(c.Context, stack, node)
				},
			},
		},
	}
}

func topologiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "topologies",
		Usage: "list built-in topologies",
		Action: func(c *cli.Context) error {
			for _, name := range topology.Builtins() {
				fmt.Fprintln(c.App.Writer, name)
			}
			return nil
		},
	}
}

func planner(cfg config.Config) *stacktheory.Planner {
	return stacktheory.New(
		stacktheory.WithLogger(logger.Logger()),
		stacktheory.WithStackName(cfg.StackName()),
	)
}

// buildPlan loads config and the topology and plans it, against recorded
// state when withPrior is set.
func buildPlan(c *cli.Context, withPrior bool) (config.Config, *stacktheory.Plan, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return cfg, nil, err
	}
	nodes, err := loadTopology(c, cfg)
	if err != nil {
		return cfg, nil, err
	}
	var prior stacktheory.Prior
	if withPrior {
		store, err := openStore(c, cfg)
		if err != nil {
			return cfg, nil, err
		}
		resources, err := store.Load(c.Context, cfg.StackName())
		if err != nil {
			return cfg, nil, err
		}
		prior = state.ToPrior(resources)
	}
	plan, err := planner(cfg).Plan(c.Context, nodes, prior)
	return cfg, plan, err
}

func stateTarget(c *cli.Context) (string, state.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return "", nil, err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return "", nil, err
	}
	stack := cfg.StackName()
	if c.Command.Name == "show" && c.Args().Present() {
		stack = c.Args().First()
	}
	return stack, store, nil
}

func redactPlan(plan *stacktheory.Plan) *stacktheory.Plan {
	out := *plan
	out.Operations = make([]stacktheory.ProvisionOperation, len(plan.Operations))
	for i, op := range plan.Operations {
		op.ResolvedProperties = sanitization.SanitizeProperties(op.ResolvedProperties)
		out.Operations[i] = op
	}
	return &out
}

func printPlan(w io.Writer, stack string, plan *stacktheory.Plan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tOPERATION\tKIND\tNODE\tDEPENDS ON")
	for _, op := range plan.Operations {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", op.Level, op.Operation, op.Kind, op.NodeID, strings.Join(op.DependsOn, ","))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%s: %d to create, %d to update, %d to delete\n", stack, plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete)
}

func printDeployment(w io.Writer, d *deploy.Deployment) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tOPERATION\tSTATUS\tERROR")
	for _, r := range d.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.NodeID, r.Operation, r.Status, r.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\ndeployment %s of %s: %s\n", d.ID, d.Stack, d.Status)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
