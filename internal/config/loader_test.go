package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/okian/attribd/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DBPath, convey.ShouldEqual, "data/attribd.sqlite")
				convey.So(cfg.SessionTimeoutMinutes, convey.ShouldEqual, 30)
				convey.So(cfg.DefaultLookbackDays, convey.ShouldEqual, 30)
				convey.So(cfg.TimeDecayHalfLifeDays, convey.ShouldEqual, 7)
				convey.So(cfg.AnomalyThreshold, convey.ShouldEqual, 0.25)
				convey.So(cfg.CAPISweepIntervalMinutes, convey.ShouldEqual, 0)
				convey.So(cfg.CAPIMaxAttempts, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ATTRIBD_ADDR", ":8080")
			_ = os.Setenv("ATTRIBD_DB_PATH", "/tmp/events.sqlite")
			_ = os.Setenv("ATTRIBD_SESSION_TIMEOUT_MINUTES", "45")
			_ = os.Setenv("ATTRIBD_META_PIXEL_ID", "px1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/events.sqlite")
				convey.So(cfg.SessionTimeoutMinutes, convey.ShouldEqual, 45)
				convey.So(cfg.MetaPixelID, convey.ShouldEqual, "px1")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
db_path: "/var/lib/attribd/events.sqlite"
default_lookback_days: 14
time_decay_half_life_days: 3.5
capi_sweep_interval_minutes: 10
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ATTRIBD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DBPath, convey.ShouldEqual, "/var/lib/attribd/events.sqlite")
				convey.So(cfg.DefaultLookbackDays, convey.ShouldEqual, 14)
				convey.So(cfg.TimeDecayHalfLifeDays, convey.ShouldEqual, 3.5)
				convey.So(cfg.CAPISweepIntervalMinutes, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
default_lookback_days: 14
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ATTRIBD_CONFIG", tmpFile)
			_ = os.Setenv("ATTRIBD_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DefaultLookbackDays, convey.ShouldEqual, 14)
				convey.So(cfg.DBPath, convey.ShouldEqual, "data/attribd.sqlite")
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("ATTRIBD_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("ATTRIBD_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an empty db path", func() {
			_ = os.Setenv("ATTRIBD_DB_PATH", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "db_path must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-positive session timeout", func() {
			_ = os.Setenv("ATTRIBD_SESSION_TIMEOUT_MINUTES", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "session_timeout_minutes must be positive")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-positive anomaly threshold", func() {
			_ = os.Setenv("ATTRIBD_ANOMALY_THRESHOLD", "-0.1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "anomaly_threshold must be positive")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"ATTRIBD_CONFIG",
		"ATTRIBD_ADDR",
		"ATTRIBD_DB_PATH",
		"ATTRIBD_SESSION_TIMEOUT_MINUTES",
		"ATTRIBD_DEFAULT_LOOKBACK_DAYS",
		"ATTRIBD_ANOMALY_THRESHOLD",
		"ATTRIBD_META_PIXEL_ID",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "attribd-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
