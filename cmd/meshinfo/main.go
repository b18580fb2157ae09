// Command meshinfo builds meshes from YAML configs, prints their summaries
// and saves tree meshes to a snapshot database.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/notargets/discretize/config"
	"github.com/notargets/discretize/mesh"
	"github.com/notargets/discretize/operators"
	"github.com/notargets/discretize/store"
	"github.com/notargets/discretize/tree"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type app struct {
	verbose bool
	workers int
	db      string
	logger  *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:          "meshinfo",
		Short:        "Build and inspect discretization meshes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if a.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().IntVar(&a.workers, "workers", 1, "operator assembly goroutines")
	root.PersistentFlags().StringVar(&a.db, "db", "meshes.db", "snapshot database")

	root.AddCommand(a.buildCmd(), a.saveCmd(), a.loadCmd(), a.listCmd())
	return root
}

func (a *app) meshOptions() []mesh.Option {
	return []mesh.Option{mesh.WithLogger(a.logger), mesh.WithWorkers(a.workers)}
}

func (a *app) buildMesh(path string) (mesh.BaseMesh, *config.MeshConfig, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := c.Build(a.meshOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", path, err)
	}
	return m, c, nil
}

func (a *app) buildCmd() *cobra.Command {
	var assemble bool
	cmd := &cobra.Command{
		Use:   "build <config.yaml>",
		Short: "Build a mesh and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := a.buildMesh(args[0])
			if err != nil {
				return err
			}
			if assemble {
				if err := assembleAll(m); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), m.Summary())
			return nil
		},
	}
	cmd.Flags().BoolVar(&assemble, "operators", false, "assemble the differential operators before printing")
	return cmd
}

// assembleAll builds the operators the mesh supports so the summary reports
// their cache entries.
func assembleAll(m mesh.BaseMesh) error {
	if _, err := m.Divergence(); err != nil {
		return err
	}
	if _, _, err := m.FaceInnerProduct(operators.Scalar(1), operators.InnerProductOptions{}); err != nil {
		return err
	}
	if t, err := m.Topology(); err == nil && t.HasEdges() {
		if _, err := m.EdgeCurl(); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) saveCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "save <config.yaml>",
		Short: "Build a tree mesh and store its state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, c, err := a.buildMesh(args[0])
			if err != nil {
				return err
			}
			t, ok := m.(*tree.Mesh)
			if !ok {
				return fmt.Errorf("save: only tree meshes have state, got a %v mesh", m.Kind())
			}
			s, err := store.Open(a.db, store.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer s.Close()
			if name == "" {
				name = args[0]
			}
			id, err := s.Save(cmd.Context(), name, t, c)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "snapshot name (default the config path)")
	return cmd
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <id>",
		Short: "Restore a stored tree mesh and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}
			s, err := store.Open(a.db, store.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer s.Close()
			t, err := s.Restore(cmd.Context(), id, tree.WithLogger(a.logger), tree.WithWorkers(a.workers))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), t.Summary())
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tree meshes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.db, store.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer s.Close()
			list, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, in := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %6d cells  %s\n", in.ID, in.Name, in.Cells, in.Created.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
