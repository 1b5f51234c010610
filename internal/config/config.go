package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lawinko/vision-detector/internal/detection"
)

type Config struct {
	Port     int
	Password string

	ModelBackend    string // tflite, onnx or opencv
	ModelPath       string
	ModelConfigPath string // graph description, opencv backend only
	OnnxLibraryPath string
	ModelThreads    int
	InputSize       int // model input is InputSize x InputSize RGB
	LabelsPath      string

	TargetWidth         int // 0 = use the frame size
	TargetHeight        int
	ConfidenceThreshold float64
	ThresholdMin        float64
	ThresholdMax        float64
	FrameProcessorFPS   float64 // max frames processed per second, 0 = unlimited

	CameraDevice string // index or URL for a local capture device, empty = disabled
	CameraName   string
	CamerasPort  int               // UDP port for network cameras, 0 = disabled
	CameraNames  map[string]string // IP -> camera name

	LogDirectory string
	LogMaxSizeMB int
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                getEnvAsInt("PORT", 8080),
		Password:            getEnv("PASSWORD", "detector"),
		ModelBackend:        strings.ToLower(getEnv("MODEL_BACKEND", "tflite")),
		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1.tflite")),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco.pbtxt")),
		OnnxLibraryPath:     getEnv("ONNX_LIBRARY_PATH", ""),
		ModelThreads:        getEnvAsInt("MODEL_THREADS", runtime.NumCPU()),
		InputSize:           getEnvAsInt("INPUT_SIZE", 300),
		LabelsPath:          getEnv("LABELS_PATH", filepath.Join(".", "models", "labels.json")),
		TargetWidth:         getEnvAsInt("TARGET_WIDTH", 0),
		TargetHeight:        getEnvAsInt("TARGET_HEIGHT", 0),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		ThresholdMin:        getEnvAsFloat("THRESHOLD_MIN", 0.1),
		ThresholdMax:        getEnvAsFloat("THRESHOLD_MAX", 0.9),
		FrameProcessorFPS:   getEnvAsFloat("FRAME_PROCESSOR_FPS", 3),
		CameraDevice:        getEnv("CAMERA_DEVICE", ""),
		CameraName:          getEnv("CAMERA_NAME", "local"),
		CamerasPort:         getEnvAsInt("CAMERAS_PORT", 0),
		CameraNames:         parseCameraNames(getEnv("CAMERA_NAMES", "")),
		LogDirectory:        getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogMaxSizeMB:        getEnvAsInt("LOG_MAX_SIZE_MB", 10),
	}
}

// Target returns the configured render resolution. A zero dimension means the
// caller should fall back to the frame size.
func (c *Config) Target() detection.Resolution {
	return detection.Resolution{Width: c.TargetWidth, Height: c.TargetHeight}
}

// ClampThreshold limits a user supplied threshold to [ThresholdMin, ThresholdMax].
func (c *Config) ClampThreshold(v float64) float64 {
	if v < c.ThresholdMin {
		return c.ThresholdMin
	}
	if v > c.ThresholdMax {
		return c.ThresholdMax
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// parseCameraNames parses "ip=name,ip=name" pairs.
func parseCameraNames(value string) map[string]string {
	names := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		ip, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || ip == "" || name == "" {
			continue
		}
		names[strings.TrimSpace(ip)] = strings.TrimSpace(name)
	}
	return names
}
