//go:build !wasm

package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tinywasm/zorm"
)

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "zormc",
		Short: "zormc generates zorm record types and queries databases through zorm sessions.",
		Long: `zormc generates zorm record types and queries databases through zorm sessions.

The gen command scans model.go and models.go files for structs with db tags
and writes a <file>_zorm.go next to each of them.

The get and query commands connect with a config file (--config) whose
settings can be overridden with ZORM_ environment variables or flags.`,
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	rc.PersistentFlags().String("driver", "", "Database driver (mysql or postgres); overrides the config file.")
	rc.PersistentFlags().String("dsn", "", "Data source name; overrides the config file.")

	rc.AddCommand(newGenCommand(stderr))
	rc.AddCommand(newGetCommand(stdout))
	rc.AddCommand(newQueryCommand(stdout, stderr))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newGenCommand(stderr io.Writer) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate record types for the model structs under a directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := zorm.NewGen()
			g.SetRootDir(dir)
			g.SetLog(func(messages ...any) {
				fmt.Fprintln(stderr, messages...)
			})
			return g.Run()
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Root directory to scan.")
	return cmd
}

// loadConfig reads the config file and applies the connection flags set on
// the command line.
func loadConfig(flags *pflag.FlagSet) (*zorm.Config, error) {
	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := zorm.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if flags.Changed("driver") {
		if cfg.Driver, err = flags.GetString("driver"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("dsn") {
		if cfg.DSN, err = flags.GetString("dsn"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func openSession(flags *pflag.FlagSet) (*zorm.Session, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	m, err := zorm.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connecting")
	}
	return m.NewSession(), nil
}

// dynamicSchema declares a schema from command line flags. Every column but
// the id passes database values through unchanged.
func dynamicSchema(table, alias, idColumn string, intID bool, columns []string) (*zorm.Schema, error) {
	schema := zorm.NewSchema(table, alias, nil)
	var id zorm.IDField
	if intID {
		id = zorm.NewStringIntField(idColumn)
	} else {
		id = zorm.NewStringField(idColumn)
	}
	fields := []zorm.Field{id}
	for _, c := range columns {
		if c == idColumn {
			continue
		}
		fields = append(fields, zorm.NewGenericField[any](c, zorm.ConstraintNullable))
	}
	if err := schema.SetIDField(id); err != nil {
		return nil, err
	}
	if err := schema.SetFields(fields...); err != nil {
		return nil, err
	}
	return schema, nil
}

func newGetCommand(stdout io.Writer) *cobra.Command {
	var (
		table    string
		alias    string
		idColumn string
		intID    bool
		columns  []string
	)
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Load one record by id and print its columns.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if table == "" {
				return errors.New("--table is required")
			}
			if len(columns) == 0 {
				return errors.New("--columns is required")
			}
			schema, err := dynamicSchema(table, alias, idColumn, intID, columns)
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			p, err := s.Get(schema, args[0])
			if err != nil {
				return err
			}
			r := p.Base()
			rows := make([][]any, 0, schema.NumFields())
			for _, f := range schema.Fields() {
				v, err := r.GetFieldValue(f)
				if err != nil {
					return err
				}
				rows = append(rows, []any{f.Name(), v})
			}
			return writeTable(stdout, []any{"column", "value"}, rows)
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table name.")
	cmd.Flags().StringVar(&alias, "alias", "", "Table alias; defaults to the table name.")
	cmd.Flags().StringVar(&idColumn, "id-column", "id", "Name of the id column.")
	cmd.Flags().BoolVar(&intID, "int-id", false, "The id column holds integers.")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to load.")
	return cmd
}

func newQueryCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SELECT statement and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			res, err := s.SelectQuery().CustomQuery(args[0]).Execute()
			if err != nil {
				return err
			}
			header, rows := resultRows(res)
			if err := writeTable(stdout, header, rows); err != nil {
				return err
			}
			fmt.Fprintf(stderr, "%d rows, %d queries\n", len(rows), s.NumQueries())
			return nil
		},
	}
}
