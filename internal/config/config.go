package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	ModelDir             string
	ScorerArchiveURL     string
	ClassifierArchiveURL string

	ScorerModelFile    string
	ScorerRecipeFile   string
	ClassifierGraph    string
	ClassifierLabelMap string
	ClassifierUIDMap   string

	FetchTimeoutSeconds int
	FetchMaxBytes       int64

	WorkerPoolSize int
	TopK           int

	APIRateLimitRPS      float64
	APIRateLimitBurst    int
	APIMaxInFlight       int
	BackendRetryAttempts int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		ModelDir:             mustEnv("MODEL_DIR", "/tmp/imagenet"),
		ScorerArchiveURL:     mustEnv("SCORER_ARCHIVE_URL", "https://modeldepot.io/assets/uploads/models/models/5005730b-eff1-4700-a553-c13f9bc97a53_nsfw_model.zip"),
		ClassifierArchiveURL: mustEnv("CLASSIFIER_ARCHIVE_URL", "http://download.tensorflow.org/models/image/imagenet/inception-2015-12-05.tgz"),

		ScorerModelFile:    mustEnv("SCORER_MODEL_FILE", "nsfw_model/open_nsfw.onnx"),
		ScorerRecipeFile:   mustEnv("SCORER_RECIPE_FILE", "nsfw_model/preprocess.json"),
		ClassifierGraph:    mustEnv("CLASSIFIER_GRAPH_FILE", "classify_image_graph_def.pb"),
		ClassifierLabelMap: mustEnv("CLASSIFIER_LABEL_MAP_FILE", "imagenet_2012_challenge_label_map_proto.pbtxt"),
		ClassifierUIDMap:   mustEnv("CLASSIFIER_UID_MAP_FILE", "imagenet_synset_to_human_label_map.txt"),

		FetchTimeoutSeconds: mustEnvInt("FETCH_TIMEOUT_SECONDS", 25),
		FetchMaxBytes:       int64(mustEnvInt("FETCH_MAX_BYTES", 32<<20)),

		WorkerPoolSize: mustEnvInt("WORKER_POOL_SIZE", 0),
		TopK:           mustEnvInt("CLASSIFICATION_TOP_K", 5),

		APIRateLimitRPS:      mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:    mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:       mustEnvInt("API_MAX_IN_FLIGHT", 0),
		BackendRetryAttempts: mustEnvInt("BACKEND_RETRY_ATTEMPTS", 2),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
