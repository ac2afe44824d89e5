package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Model backends accepted by MODEL_BACKEND.
const (
	BackendOpenCV = "opencv"
	BackendONNX   = "onnx"
)

// Race policies accepted by RACE_POLICY.
const (
	PolicyLatest     = "latest"
	PolicyCompletion = "completion"
)

type Config struct {
	Port      int
	StaticDir string
	LogDir    string
	DBPath    string

	ModelBackend    string
	ModelPath       string
	ModelConfigPath string // OpenCV only, empty for ONNX/Caffe-in-one files
	LabelsPath      string
	ModelName       string
	InputSize       int
	Mean            [3]float64
	Scale           float64
	SwapRB          bool
	Softmax         bool

	ONNXLibraryPath string
	ONNXInputName   string
	ONNXOutputName  string
	ONNXClasses     int // output width; 0 means one per label

	TopK             int
	InferenceWorkers int
	QueueSize        int

	ProgressStep     int
	ProgressInterval time.Duration
	ProgressCap      int

	RacePolicy  string
	MaxUploadMB int
	PreviewMB   int
	SessionTTL  time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	modelDir := filepath.Join(".", "models")
	cfg := &Config{
		Port:      getEnvAsInt("PORT", 8080),
		StaticDir: getEnv("STATIC_DIR", "static"),
		LogDir:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DBPath:    getEnv("DB_PATH", filepath.Join(".", "data", "classifier.db")),

		ModelBackend:    strings.ToLower(getEnv("MODEL_BACKEND", BackendOpenCV)),
		ModelPath:       getEnv("MODEL_PATH", filepath.Join(modelDir, "mobilenet_v2.onnx")),
		ModelConfigPath: getEnv("MODEL_CONFIG_PATH", ""),
		LabelsPath:      getEnv("LABELS_PATH", filepath.Join(modelDir, "imagenet_labels.txt")),
		ModelName:       getEnv("MODEL_NAME", "mobilenet_v2"),
		InputSize:       getEnvAsInt("MODEL_INPUT_SIZE", 224),
		Mean:            getEnvAsTriple("MODEL_MEAN", [3]float64{127.5, 127.5, 127.5}),
		Scale:           getEnvAsFloat("MODEL_SCALE", 1.0/127.5),
		SwapRB:          getEnvAsBool("MODEL_SWAP_RB", true),
		Softmax:         getEnvAsBool("MODEL_SOFTMAX", true),

		ONNXLibraryPath: getEnv("ONNX_LIBRARY_PATH", ""),
		ONNXInputName:   getEnv("ONNX_INPUT_NAME", "input"),
		ONNXOutputName:  getEnv("ONNX_OUTPUT_NAME", "output"),
		ONNXClasses:     getEnvAsInt("ONNX_OUTPUT_CLASSES", 0),

		TopK:             getEnvAsInt("TOP_K", 3),
		InferenceWorkers: getEnvAsInt("INFERENCE_WORKERS", 2),
		QueueSize:        getEnvAsInt("QUEUE_SIZE", 32),

		ProgressStep:     getEnvAsInt("PROGRESS_STEP", 5),
		ProgressInterval: getEnvAsDuration("PROGRESS_INTERVAL", 100*time.Millisecond),
		ProgressCap:      getEnvAsInt("PROGRESS_CAP", 95),

		RacePolicy:  strings.ToLower(getEnv("RACE_POLICY", PolicyLatest)),
		MaxUploadMB: getEnvAsInt("MAX_UPLOAD_MB", 10),
		PreviewMB:   getEnvAsInt("PREVIEW_BUDGET_MB", 256),
		SessionTTL:  getEnvAsDuration("SESSION_TTL", 30*time.Minute),
	}
	cfg.normalize()
	return cfg
}

// normalize clamps values that would break the progress or worker invariants.
func (c *Config) normalize() {
	if c.InferenceWorkers < 1 {
		c.InferenceWorkers = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
	if c.TopK < 1 {
		c.TopK = 1
	}
	if c.ProgressStep < 1 {
		c.ProgressStep = 1
	}
	if c.ProgressCap < 0 || c.ProgressCap > 99 {
		c.ProgressCap = 95
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 100 * time.Millisecond
	}
	if c.MaxUploadMB < 1 {
		c.MaxUploadMB = 10
	}
	if c.RacePolicy != PolicyCompletion {
		c.RacePolicy = PolicyLatest
	}
	if c.ModelBackend != BackendONNX {
		c.ModelBackend = BackendOpenCV
	}
}

// PreviewBudgetBytes bounds the memory held by live previews; 0 is unbounded.
func (c *Config) PreviewBudgetBytes() int64 {
	if c.PreviewMB <= 0 {
		return 0
	}
	return int64(c.PreviewMB) << 20
}

// MaxUploadBytes is the multipart limit derived from MaxUploadMB.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsTriple parses "r,g,b" into three floats.
func getEnvAsTriple(key string, defaultValue [3]float64) [3]float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return defaultValue
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out[i] = f
	}
	return out
}
