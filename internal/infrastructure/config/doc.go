// Package config loads config.yaml for acbridge and acctl.
//
// Values come from built-in defaults, then the file, then ACBRIDGE_*
// environment variables. Put secrets (MQTT password, InfluxDB token, JWT
// secret) in the environment and keep the file mode 0600.
//
// Device profiles and recorded IR codes are not configuration; they live
// in the library named by bridge.devices_file.
//
//	cfg, err := config.Load(os.Getenv("ACBRIDGE_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	lib, err := ircode.OpenLibrary(cfg.Bridge.DevicesFile)
package config
