// Package nenet wires components A-L into a runnable daemon: ordered
// startup (§4.H), and the reverse teardown sequence.
package nenet

import (
	"fmt"
	"path/filepath"

	"github.com/nenet-io/nenet-core/pkg/audit"
	"github.com/nenet-io/nenet-core/pkg/authz"
	"github.com/nenet-io/nenet-core/pkg/can"
	"github.com/nenet-io/nenet-core/pkg/config"
	"github.com/nenet-io/nenet-core/pkg/hardware"
	"github.com/nenet-io/nenet-core/pkg/metadata"
	"github.com/nenet-io/nenet-core/pkg/nerr"
	"github.com/nenet-io/nenet-core/pkg/singleton"
	"github.com/nenet-io/nenet-core/pkg/state"
	"github.com/nenet-io/nenet-core/pkg/store"
	"github.com/nenet-io/nenet-core/pkg/udpmux"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// App holds every initialized subsystem, wired the way the teacher's own
// App struct carries settings/network/permChecker across commands.
type App struct {
	Shared *state.Shared
	Store  store.Store
	Audit  audit.Logger
	Meta   *metadata.Manager
	CAN    can.Bus
	Lock   *singleton.Lock
}

// Bootstrap runs the full startup order from §4.H:
// configure log sink (by caller) -> init CAN (optional) -> load INI ->
// init store -> load plates/metadata/flows -> build hardware map ->
// init metadata manager.
func Bootstrap(configPath, auditPath string) (*App, error) {
	lock, err := singleton.TryLock("nenetd")
	if err != nil {
		return nil, err
	}

	app := &App{Lock: lock}

	app.CAN = can.NullBus{}
	if err := app.CAN.Open(0, 0); err != nil {
		util.Warnf("CAN interface initialization failed or not available: %v", err)
	}

	util.Infof("loading INI configuration from %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		lock.Release()
		return nil, err
	}

	app.Shared = state.New()
	app.Shared.SetConfig(cfg)

	dsn := cfg.Database.Path
	if cfg.Database.Type == "mysql" || cfg.Database.Type == "2" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Database)
	}
	st, err := store.Open(cfg.Database.Type, dsn)
	if err != nil {
		lock.Release()
		return nil, err
	}
	app.Store = st

	plates, err := st.LoadPlates()
	if err != nil {
		util.Warnf("failed to load plates: %v", err)
	}
	metas, err := st.LoadMeta()
	if err != nil {
		util.Warnf("failed to load metadata: %v", err)
	}
	flows, err := st.LoadFlows()
	if err != nil {
		util.Warnf("failed to load flows: %v", err)
	}

	controllers, stats := hardware.Build(plates, metas)
	util.WithFields(map[string]interface{}{
		"type2": stats.Type2Count, "type3": stats.Type3Count,
		"type4": stats.Type4Count, "type5": stats.Type5Count,
		"orphans": stats.OrphanChildren,
	}).Info("hardware map built")
	app.Shared.SetLoaded(plates, metas, flows, controllers)

	auditLogger, err := audit.NewFileLogger(auditPath, audit.RotationConfig{MaxSize: 10 << 20, MaxBackups: 5})
	if err != nil {
		util.Warnf("failed to open audit log at %s: %v", auditPath, err)
	} else {
		app.Audit = auditLogger
		audit.SetDefaultLogger(auditLogger)
	}

	checker := authz.NewChecker(cfg.QJCustom)
	mux := udpmux.New()
	app.Meta = metadata.New(app.Shared, mux, st, checker)
	if err := app.Meta.Initialize(); err != nil {
		lock.Release()
		return nil, &nerr.BindError{Reason: err.Error()}
	}

	app.Shared.LogState("After DataInit")
	util.Infof("welcome to NENet core")
	return app, nil
}

// Shutdown reverses Bootstrap's order: stop the metadata manager, stop CAN,
// close the store, clear shared state.
func (a *App) Shutdown() {
	if a.Meta != nil {
		a.Meta.Close()
	}
	if a.CAN != nil {
		a.CAN.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Audit != nil {
		a.Audit.Close()
	}
	if a.Shared != nil {
		a.Shared.ClearAll()
	}
	if a.Lock != nil {
		a.Lock.Release()
	}
}

// DefaultConfigPath mirrors the original's applicationDirPath()/Config/NEngineConfig.ini
// convention, resolved relative to the daemon's working directory.
func DefaultConfigPath(baseDir string) string {
	return filepath.Join(baseDir, "Config", "NEngineConfig.ini")
}

// DefaultAuditPath places the audit log alongside the daemon's other logs.
func DefaultAuditPath(baseDir string) string {
	return filepath.Join(baseDir, "logs", "audit.jsonl")
}
