// Package config loads the INI configuration file described in spec §6
// using gopkg.in/ini.v1, the ecosystem-standard Go INI library.
package config

import (
	"gopkg.in/ini.v1"

	"github.com/nenet-io/nenet-core/pkg/nerr"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// Database holds the [DATABASE] section.
type Database struct {
	Type string // "sqlite"/"1" or "mysql"/"2"
	Path string // sqlite file path
}

// MySQL holds the [MYSQL] section.
type MySQL struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Log holds the [LOG] section.
type Log struct {
	Level         string
	Path          string
	ConsoleOutput bool
}

// Network holds the [IP] section.
type Network struct {
	NECIP  string
	NECPort int
	NEMIP  string
	NEMPort int
	NEDIP  string
	NEDPort int
	QIIP   string
	QIPort int

	NENetIP       string
	NENetExIP     string
	NENetNECPort  int
	InterfacePort int
}

// HardIO holds the [HardIO] section (CAN bus parameters; §1 non-goal). The
// fields are loaded but not read elsewhere: startup opens the `can` seam
// before the INI file is loaded, with channel and baudrate 0.
type HardIO struct {
	CANType     string
	CANChannel  int
	CANBaudrate int
}

// JFPlate holds the [JFPlate] section. ConnectTimeoutMS is loaded but not
// applied: jfplate.Link dials without a timeout.
type JFPlate struct {
	ConnectTimeoutMS int
}

// Config is the fully parsed INI configuration (§6).
type Config struct {
	Database Database
	MySQL    MySQL
	Log      Log
	Network  Network
	HardIO   HardIO
	JFPlate  JFPlate
	// QJCustom maps an authz permission name to a list of allowed
	// "ip:port" strings or CIDR ranges (repurposed per SPEC_FULL §4.K).
	QJCustom map[string][]string
}

// Load parses the INI file at path into a Config, applying the defaults
// named in spec §6.
func Load(path string) (Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Config{}, &nerr.ConfigError{Path: path, Details: err.Error()}
	}

	var c Config

	db := f.Section("DATABASE")
	c.Database.Type = db.Key("Type").MustString("sqlite")
	c.Database.Path = db.Key("Path").MustString("nenet.db")

	my := f.Section("MYSQL")
	c.MySQL.Host = my.Key("Host").MustString("localhost")
	c.MySQL.Port = my.Key("Port").MustInt(3306)
	c.MySQL.User = my.Key("User").MustString("root")
	c.MySQL.Password = my.Key("Password").MustString("")
	c.MySQL.Database = my.Key("Database").MustString("nenet")

	lg := f.Section("LOG")
	c.Log.Level = lg.Key("Level").MustString("INFO")
	c.Log.Path = lg.Key("Path").MustString("logs/nenet.log")
	c.Log.ConsoleOutput = lg.Key("ConsoleOutput").MustBool(true)

	ip := f.Section("IP")
	c.Network.NECIP = ip.Key("NEC_IP").MustString("")
	c.Network.NECPort = ip.Key("NEC_Port").MustInt(0)
	c.Network.NEMIP = ip.Key("NEM_IP").MustString("")
	c.Network.NEMPort = ip.Key("NEM_Port").MustInt(0)
	c.Network.NEDIP = ip.Key("NED_IP").MustString("")
	c.Network.NEDPort = ip.Key("NED_Port").MustInt(0)
	c.Network.QIIP = ip.Key("QI_IP").MustString("127.0.0.1")
	c.Network.QIPort = ip.Key("QI_Port").MustInt(0)
	c.Network.NENetIP = ip.Key("NENet_IP").MustString("127.0.0.1")
	c.Network.NENetExIP = ip.Key("NENetEx_IP").MustString("127.0.0.1")
	c.Network.NENetNECPort = ip.Key("NENet_NEC_Port").MustInt(6001)
	c.Network.InterfacePort = ip.Key("Interface_Port").MustInt(7000)

	hw := f.Section("HardIO")
	c.HardIO.CANType = hw.Key("CAN_Type").MustString("USBCAN")
	c.HardIO.CANChannel = hw.Key("CAN_Channel").MustInt(0)
	c.HardIO.CANBaudrate = hw.Key("CAN_Baudrate").MustInt(500000)

	jf := f.Section("JFPlate")
	c.JFPlate.ConnectTimeoutMS = jf.Key("ConnectTimeoutMS").MustInt(5000)

	c.QJCustom = make(map[string][]string)
	qj := f.Section("QJCustom")
	for _, key := range qj.Keys() {
		c.QJCustom[key.Name()] = util.SplitCommaSeparated(key.String())
	}

	if c.Database.Type != "sqlite" && c.Database.Type != "1" &&
		c.Database.Type != "mysql" && c.Database.Type != "2" {
		return Config{}, &nerr.ConfigError{Path: path, Section: "DATABASE", Details: "unknown database type " + c.Database.Type}
	}

	return c, nil
}
