package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nenet-io/nenet-core/pkg/cli"
	"github.com/nenet-io/nenet-core/pkg/config"
	"github.com/nenet-io/nenet-core/pkg/store"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "Config/NEngineConfig.ini", "path to NEngineConfig.ini")
	rootCmd.AddCommand(platesCmd)
	rootCmd.AddCommand(metadataCmd)
}

func openStore() (store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Database.Path
	if cfg.Database.Type == "mysql" || cfg.Database.Type == "2" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Database)
	}
	return store.Open(cfg.Database.Type, dsn)
}

var platesCmd = &cobra.Command{
	Use:   "plates",
	Short: "List loaded plates",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		plates, err := st.LoadPlates()
		if err != nil {
			return err
		}

		table := cli.NewTable("PK_ID", "TYPE", "STATION", "IP", "PORT", "PARENT", "HARD_ADDR")
		for _, p := range plates {
			table.Row(
				strconv.Itoa(p.PKID),
				strconv.Itoa(p.PlateTypeID),
				p.StationName,
				p.IPAddr,
				strconv.Itoa(p.IPPort),
				strconv.Itoa(p.PlateParentID),
				strconv.Itoa(p.HardAddr),
			)
		}
		table.Flush()
		return nil
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "List loaded metadata elements",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		metas, err := st.LoadMeta()
		if err != nil {
			return err
		}

		table := cli.NewTable("PK_ID", "TYPE", "CONTROL", "HARD_ADDR", "TPORT", "CURRENT", "KIND")
		for _, m := range metas {
			table.Row(
				strconv.Itoa(m.PKID),
				strconv.Itoa(m.PlateTypeID),
				strconv.Itoa(m.PlateControlID),
				strconv.Itoa(m.PlateHardAddr),
				strconv.Itoa(m.Tport),
				strconv.Itoa(m.CurrentValue),
				strconv.Itoa(m.KindID),
			)
		}
		table.Flush()
		return nil
	},
}
