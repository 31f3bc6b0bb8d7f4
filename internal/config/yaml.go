// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vocalsnr/internal/log"
)

// Source names accepted in audio.sources, in the order they are tried.
const (
	SourceRaw        = "raw"
	SourceMicrophone = "microphone"
	SourceMiniaudio  = "miniaudio"
	SourceWAV        = "wav"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`                                                     // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn warning error"` // Logging level.
	Audio     AudioConfig     `yaml:"audio"`                                                     // Capture device selection.
	Session   SessionConfig   `yaml:"session"`                                                   // Capture session behaviour.
	Transport TransportConfig `yaml:"transport"`                                                 // Event transports used by serve.
	Metrics   MetricsConfig   `yaml:"metrics"`                                                   // Prometheus endpoint.
	History   HistoryConfig   `yaml:"history"`                                                   // Session history file.
}

// AudioConfig selects how audio is acquired. Capture parameters themselves
// (rate, channels, window) are constants and cannot be set here.
type AudioConfig struct {
	InputDevice          int      `yaml:"input_device" validate:"gte=-1"`                                 // PortAudio device index for the raw source (-1 for default).
	Sources              []string `yaml:"sources" validate:"min=1,dive,oneof=raw microphone miniaudio wav"` // Candidate order.
	InputFile            string   `yaml:"input_file"`                                                     // WAV file replayed ahead of the device candidates.
	MicrophonePermission bool     `yaml:"microphone_permission"`                                          // Whether capture is permitted at all.
}

// SessionConfig holds settings for the capture engine and its dispatcher.
type SessionConfig struct {
	JoinTimeout          time.Duration `yaml:"join_timeout" validate:"min=1ms"`   // Bounded wait for the capture goroutine.
	DispatchQueue        int           `yaml:"dispatch_queue" validate:"min=1"`  // Pending callback capacity.
	DedupMicrophoneState bool          `yaml:"dedup_microphone_state"`           // Drop repeated identical microphone notifications.
	TestDuration         time.Duration `yaml:"test_duration" validate:"gte=0"`   // Default length of a CLI test (0 runs until stopped).
}

// TransportConfig holds settings related to sending session events over the network.
type TransportConfig struct {
	WebSocketAddress string        `yaml:"websocket_address" validate:"omitempty,hostname_port"`  // Listen address for the event stream.
	UDPEnabled       bool          `yaml:"udp_enabled"`                                           // Enable periodic UDP status packets.
	UDPTargetAddress string        `yaml:"udp_target_address" validate:"omitempty,hostname_port"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval" validate:"min=1ms"`                  // Interval between UDP packets.
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" validate:"omitempty,hostname_port"`
}

// HistoryConfig holds the session history settings.
type HistoryConfig struct {
	Path            string `yaml:"path"`             // History file; empty disables history.
	RestoreBaseline bool   `yaml:"restore_baseline"` // Seed the engine with the last stored noise power.
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:          MinDeviceID,
			Sources:              []string{SourceRaw, SourceMicrophone, SourceMiniaudio},
			MicrophonePermission: true,
		},
		Session: SessionConfig{
			JoinTimeout:   500 * time.Millisecond,
			DispatchQueue: 256,
		},
		Transport: TransportConfig{
			WebSocketAddress: ":8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
		History: HistoryConfig{
			Path:            "history.yaml",
			RestoreBaseline: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A ".env" file in the working directory is loaded into the process
// environment before overrides are applied. The final configuration is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile never overrides variables already set in the environment.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		errs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s %s", fe.Namespace(), validationMessage(fe)))
		}
		return errors.Join(errs...)
	}
	if c.Transport.UDPEnabled && c.Transport.UDPTargetAddress == "" {
		return errors.New("transport.udp_target_address must be set when UDP is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New("metrics.address must be set when metrics are enabled")
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "hostname_port":
		return "must be a host:port address"
	default:
		return fmt.Sprintf("failed validation '%s'", fe.Tag())
	}
}

// applyEnvOverrides applies ENV_* variables on top of file and default values.
// Unparseable values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Infof("Config: overriding debug from env: %v", bVal)
		} else {
			log.Warnf("Config: ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(val)
		log.Infof("Config: overriding log_level from env: %s", val)
	}

	// ENV_INPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.InputDevice = iVal
			log.Infof("Config: overriding audio.input_device from env: %d", iVal)
		} else {
			log.Warnf("Config: ignoring ENV_INPUT_DEVICE=%q: %v", val, err)
		}
	}
	// ENV_MIC_PERMISSION
	if val, ok := os.LookupEnv("ENV_MIC_PERMISSION"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Audio.MicrophonePermission = bVal
			log.Infof("Config: overriding audio.microphone_permission from env: %v", bVal)
		} else {
			log.Warnf("Config: ignoring ENV_MIC_PERMISSION=%q: %v", val, err)
		}
	}

	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		log.Infof("Config: overriding transport.websocket_address from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Infof("Config: overriding transport.udp_enabled from env: %v", bVal)
		} else {
			log.Warnf("Config: ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Infof("Config: overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			log.Infof("Config: overriding transport.udp_send_interval from env: %s", dur)
		} else {
			log.Warnf("Config: ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
}
