package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"machinepulse/internal/config"
	"machinepulse/internal/db"
	"machinepulse/internal/engine"
	"machinepulse/internal/fanout"
	"machinepulse/internal/metrics"
	"machinepulse/internal/migrate"
	"machinepulse/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "mp",
	Short: "MachinePulse CLI",
	Long: `MachinePulse tracks manufacturing machines and production throughput,
derives OEE and related KPIs, raises alerts on stop transitions, and pushes
machine and production updates to WebSocket subscribers in real time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MACHINEPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("plant", "plant-1", "plant id used when no config file exists")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("plant", rootCmd.PersistentFlags().Lookup("plant"))
}

func registerCommands() {
	rootCmd.AddCommand(machineCmd())
	rootCmd.AddCommand(productionCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEngine(ctx context.Context, fn func(ctx context.Context, e *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace, viper.GetString("plant"))
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg, nil))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	return t
}

func machineCmd() *cobra.Command {
	m := &cobra.Command{Use: "machine", Short: "Manage machines"}
	m.AddCommand(machineCreateCmd())
	m.AddCommand(machineListCmd())
	m.AddCommand(machineStatusCmd())
	return m
}

func machineCreateCmd() *cobra.Command {
	var name, line string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.CreateMachine(ctx, name, line, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "machine name")
	cmd.Flags().StringVar(&line, "line", "", "production line")
	return cmd
}

func machineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListMachines(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "LINE", "STATUS", "LAST HEARTBEAT")
				for _, m := range items {
					t.AppendRow(table.Row{m.ID, m.Name, m.Line, m.Status, m.LastHeartbeat})
				}
				t.Render()
				return nil
			})
		},
	}
}

func machineStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <machine-id>",
		Short: "Set machine status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.SetMachineStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "running, stopped or maintenance")
	return cmd
}

func productionCmd() *cobra.Command {
	p := &cobra.Command{Use: "production", Short: "Record and inspect production output"}
	p.AddCommand(productionRecordCmd())
	p.AddCommand(productionListCmd())
	p.AddCommand(productionStatsCmd())
	return p
}

func productionRecordCmd() *cobra.Command {
	var machineID, start, end string
	var quantity, defects int
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record production output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				actor := viper.GetString("actor-id")
				v, err := e.RecordProduction(ctx, engine.ProductionOptions{
					MachineID:  machineID,
					OperatorID: actor,
					Quantity:   quantity,
					Defects:    defects,
					StartTime:  start,
					EndTime:    end,
					ActorID:    actor,
				})
				if err != nil {
					return err
				}
				return printJSON(v)
			})
		},
	}
	cmd.Flags().StringVar(&machineID, "machine", "", "machine id")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "units produced")
	cmd.Flags().IntVar(&defects, "defects", 0, "defective units")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC3339)")
	return cmd
}

func productionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List production records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListProduction(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "MACHINE", "OPERATOR", "QTY", "DEFECTS", "START", "END")
				for _, v := range items {
					t.AppendRow(table.Row{v.ID, v.Machine.Name, v.Operator.Name, v.Quantity, v.Defects, v.StartTime, v.EndTime})
				}
				t.Render()
				return nil
			})
		},
	}
}

func productionStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Production KPIs over all records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				t := newTable("METRIC", "VALUE")
				t.AppendRow(table.Row{"total quantity", m.TotalQuantity})
				t.AppendRow(table.Row{"total defects", m.TotalDefects})
				t.AppendRow(table.Row{"total records", m.TotalRecords})
				t.AppendRow(table.Row{"total hours", fmt.Sprintf("%.2f", m.TotalHours)})
				t.AppendRow(table.Row{"defect rate %", fmt.Sprintf("%.2f", metrics.Round2(m.DefectRate))})
				t.AppendRow(table.Row{"quality rate %", fmt.Sprintf("%.2f", metrics.Round2(m.QualityRate))})
				t.AppendRow(table.Row{"availability %", fmt.Sprintf("%.2f", metrics.Round2(m.Availability))})
				t.AppendRow(table.Row{"OEE %", fmt.Sprintf("%.2f", metrics.Round2(m.OEE))})
				t.Render()
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregated production report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rep, err := e.Report(ctx, start, end)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				t := newTable("GROUP", "KEY", "QTY", "DEFECTS", "RECORDS")
				for name, g := range rep.ByMachine {
					t.AppendRow(table.Row{"machine", name, g.TotalQuantity, g.TotalDefects, g.Records})
				}
				for day, g := range rep.ByDate {
					t.AppendRow(table.Row{"date", day, g.TotalQuantity, g.TotalDefects, g.Records})
				}
				t.Render()
				fmt.Printf("productions=%d machines=%d alerts=%d unresolved=%d\n",
					rep.Summary.TotalProductions, rep.Summary.TotalMachines,
					rep.Summary.TotalAlerts, rep.Summary.UnresolvedAlerts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "inclusive start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "inclusive end (YYYY-MM-DD or RFC3339)")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("TS", "TYPE", "ENTITY", "ACTOR", "PAYLOAD")
				for _, ev := range items {
					t.AppendRow(table.Row{ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.ActorID, ev.Payload})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API and WebSocket fan-out",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace, viper.GetString("plant"))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			hub := fanout.NewHub(logger, prometheus.DefaultRegisterer)
			go hub.Run(ctx)

			e := engine.New(conn, cfg, logger)
			e.Notifier = hub

			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("MACHINEPULSE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("MACHINEPULSE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				Hub:      hub,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelShutdown()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving MachinePulse API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.String("db", db.Path(workspace)))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "trust X-Actor-Id without a token (dev only)")
	return cmd
}
