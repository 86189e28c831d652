// Package config loads runtime settings for both services from the
// environment, following the same typed-parsing-with-defaults idiom used
// throughout this codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// STTConfig holds every tunable for the STT server (Service A).
type STTConfig struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	IdleTimeout time.Duration

	AuthRequired  bool
	AuthJWTSecret string

	SourceSampleRateDefault int
	OutputSampleRate        int
	FrameMS                 int

	QueueMax       int
	DropGuardQ     int
	QBytesHardCap  int
	MaxBufMS       int
	DropBufToMS    int
	TailSilenceSec float64

	TargetPeak float64
	MaxGain    float64

	MaxRollbackChars     int
	MinRewriteIntervalMS int64
	RewriteConfirmN      int
	PatchMaxHz           float64
	MicroMaxChars        int

	HistoryMode     string // "off" | "file" | "postgres" | "both"
	HistoryFilePath string
	DatabaseURL     string

	ShutdownJoinTimeout time.Duration
}

// TranslatorConfig holds every tunable for the translator server (Service B).
type TranslatorConfig struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	ReanchorMaxTailChars  int
	HardRewriteTailChars  int
	PunctStableCount      int
	PunctMaxWaitMS        int64
	SegPauseMS            int64
	SegMinWords           int
	SegMaxWords           int
	SegMaxChars           int
	BeatStableCount       int
	TranslateDelayWords   int
	TranslateDelayRelease int64

	CommitQueueMax   int
	CommitBatchSize  int
	MTSerialize      bool
	CompatVIDelta    bool
	ResetClearsHistory bool

	HistoryMode     string
	HistoryFilePath string
	DatabaseURL     string

	ShutdownJoinTimeout time.Duration
}

// LoadSTT reads environment variables and applies safe defaults for Service A.
func LoadSTT() (STTConfig, error) {
	cfg := STTConfig{
		BindAddr:         envOrDefault("STT_BIND_ADDR", ":8081"),
		MetricsNamespace: envOrDefault("STT_METRICS_NAMESPACE", "sttserver"),
		AllowAnyOrigin:   false,

		IdleTimeout: 20 * time.Second,

		AuthRequired:  false,
		AuthJWTSecret: stringsTrimSpace("STT_AUTH_JWT_SECRET"),

		SourceSampleRateDefault: 48000,
		OutputSampleRate:        16000,
		FrameMS:                 20,

		QueueMax:       256,
		DropGuardQ:     192,
		QBytesHardCap:  8 << 20,
		MaxBufMS:       4000,
		DropBufToMS:    2000,
		TailSilenceSec: 0.6,

		TargetPeak: 0.89,
		MaxGain:    12.0,

		MaxRollbackChars:     24,
		MinRewriteIntervalMS: 600,
		RewriteConfirmN:      2,
		PatchMaxHz:           12.0,
		MicroMaxChars:        40,

		HistoryMode:     envOrDefault("STT_HISTORY_MODE", "off"),
		HistoryFilePath: envOrDefault("STT_HISTORY_FILE", "stt_history.txt"),
		DatabaseURL:     stringsTrimSpace("STT_DATABASE_URL"),

		ShutdownTimeout:     15 * time.Second,
		ShutdownJoinTimeout: 12 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("STT_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return STTConfig{}, err
	}
	if cfg.ShutdownJoinTimeout, err = durationFromEnv("STT_SHUTDOWN_JOIN_TIMEOUT", cfg.ShutdownJoinTimeout); err != nil {
		return STTConfig{}, err
	}
	if cfg.IdleTimeout, err = durationFromEnv("STT_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return STTConfig{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("STT_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return STTConfig{}, err
	}
	if cfg.AuthRequired, err = boolFromEnv("STT_AUTH_REQUIRED", cfg.AuthRequired); err != nil {
		return STTConfig{}, err
	}
	if cfg.SourceSampleRateDefault, err = intFromEnv("STT_SOURCE_SAMPLE_RATE_DEFAULT", cfg.SourceSampleRateDefault); err != nil {
		return STTConfig{}, err
	}
	if cfg.FrameMS, err = intFromEnv("STT_FRAME_MS", cfg.FrameMS); err != nil {
		return STTConfig{}, err
	}
	if cfg.QueueMax, err = intFromEnv("STT_QUEUE_MAX", cfg.QueueMax); err != nil {
		return STTConfig{}, err
	}
	if cfg.DropGuardQ, err = intFromEnv("STT_DROP_GUARD_Q", cfg.DropGuardQ); err != nil {
		return STTConfig{}, err
	}
	if cfg.QBytesHardCap, err = intFromEnv("STT_QBYTES_HARD_CAP", cfg.QBytesHardCap); err != nil {
		return STTConfig{}, err
	}
	if cfg.MaxBufMS, err = intFromEnv("STT_MAX_BUF_MS", cfg.MaxBufMS); err != nil {
		return STTConfig{}, err
	}
	if cfg.DropBufToMS, err = intFromEnv("STT_DROP_BUF_TO_MS", cfg.DropBufToMS); err != nil {
		return STTConfig{}, err
	}
	if cfg.TailSilenceSec, err = floatFromEnv("STT_TAIL_SILENCE_SEC", cfg.TailSilenceSec); err != nil {
		return STTConfig{}, err
	}
	if cfg.TargetPeak, err = floatFromEnv("STT_TARGET_PEAK", cfg.TargetPeak); err != nil {
		return STTConfig{}, err
	}
	if cfg.MaxGain, err = floatFromEnv("STT_MAX_GAIN", cfg.MaxGain); err != nil {
		return STTConfig{}, err
	}
	if cfg.MaxRollbackChars, err = intFromEnv("STT_MAX_ROLLBACK_CHARS", cfg.MaxRollbackChars); err != nil {
		return STTConfig{}, err
	}
	if v, err2 := durationFromEnv("STT_MIN_REWRITE_INTERVAL", time.Duration(cfg.MinRewriteIntervalMS)*time.Millisecond); err2 != nil {
		return STTConfig{}, err2
	} else {
		cfg.MinRewriteIntervalMS = v.Milliseconds()
	}
	if cfg.RewriteConfirmN, err = intFromEnv("STT_REWRITE_CONFIRM_N", cfg.RewriteConfirmN); err != nil {
		return STTConfig{}, err
	}
	if cfg.PatchMaxHz, err = floatFromEnv("STT_PATCH_MAX_HZ", cfg.PatchMaxHz); err != nil {
		return STTConfig{}, err
	}
	if cfg.MicroMaxChars, err = intFromEnv("STT_MICRO_MAX_CHARS", cfg.MicroMaxChars); err != nil {
		return STTConfig{}, err
	}

	if cfg.QueueMax <= 0 {
		return STTConfig{}, fmt.Errorf("STT_QUEUE_MAX must be positive")
	}
	if cfg.DropGuardQ <= 0 || cfg.DropGuardQ > cfg.QueueMax {
		return STTConfig{}, fmt.Errorf("STT_DROP_GUARD_Q must be in (0, STT_QUEUE_MAX]")
	}
	if cfg.FrameMS <= 0 {
		return STTConfig{}, fmt.Errorf("STT_FRAME_MS must be positive")
	}
	if cfg.OutputSampleRate <= 0 {
		return STTConfig{}, fmt.Errorf("output sample rate must be positive")
	}
	if cfg.RewriteConfirmN <= 0 {
		return STTConfig{}, fmt.Errorf("STT_REWRITE_CONFIRM_N must be positive")
	}
	if cfg.PatchMaxHz <= 0 {
		return STTConfig{}, fmt.Errorf("STT_PATCH_MAX_HZ must be positive")
	}
	switch cfg.HistoryMode {
	case "off", "file", "postgres", "both":
	default:
		return STTConfig{}, fmt.Errorf("STT_HISTORY_MODE must be one of off|file|postgres|both")
	}
	if (cfg.HistoryMode == "postgres" || cfg.HistoryMode == "both") && cfg.DatabaseURL == "" {
		return STTConfig{}, fmt.Errorf("STT_DATABASE_URL required when STT_HISTORY_MODE uses postgres")
	}

	return cfg, nil
}

// LoadTranslator reads environment variables and applies safe defaults for Service B.
func LoadTranslator() (TranslatorConfig, error) {
	cfg := TranslatorConfig{
		BindAddr:         envOrDefault("TR_BIND_ADDR", ":8082"),
		MetricsNamespace: envOrDefault("TR_METRICS_NAMESPACE", "translator"),
		AllowAnyOrigin:   false,

		ReanchorMaxTailChars: 48,
		HardRewriteTailChars: 96,
		PunctStableCount:     2,
		PunctMaxWaitMS:       900,
		SegPauseMS:           700,
		SegMinWords:          3,
		SegMaxWords:          18,
		SegMaxChars:          140,
		BeatStableCount:      3,
		TranslateDelayWords:  2,
		TranslateDelayRelease: 1200,

		CommitQueueMax:     64,
		CommitBatchSize:    4,
		MTSerialize:        true,
		CompatVIDelta:      false,
		ResetClearsHistory: false,

		HistoryMode:     envOrDefault("TR_HISTORY_MODE", "off"),
		HistoryFilePath: envOrDefault("TR_HISTORY_FILE", "translator_history.txt"),
		DatabaseURL:     stringsTrimSpace("TR_DATABASE_URL"),

		ShutdownTimeout:     15 * time.Second,
		ShutdownJoinTimeout: 12 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("TR_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.ShutdownJoinTimeout, err = durationFromEnv("TR_SHUTDOWN_JOIN_TIMEOUT", cfg.ShutdownJoinTimeout); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("TR_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.ReanchorMaxTailChars, err = intFromEnv("TR_REANCHOR_MAX_TAIL_CHARS", cfg.ReanchorMaxTailChars); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.HardRewriteTailChars, err = intFromEnv("TR_HARD_REWRITE_TAIL_CHARS", cfg.HardRewriteTailChars); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.PunctStableCount, err = intFromEnv("TR_PUNCT_STABLE_COUNT", cfg.PunctStableCount); err != nil {
		return TranslatorConfig{}, err
	}
	if v, err2 := durationFromEnv("TR_PUNCT_MAX_WAIT", time.Duration(cfg.PunctMaxWaitMS)*time.Millisecond); err2 != nil {
		return TranslatorConfig{}, err2
	} else {
		cfg.PunctMaxWaitMS = v.Milliseconds()
	}
	if v, err2 := durationFromEnv("TR_SEG_PAUSE", time.Duration(cfg.SegPauseMS)*time.Millisecond); err2 != nil {
		return TranslatorConfig{}, err2
	} else {
		cfg.SegPauseMS = v.Milliseconds()
	}
	if cfg.SegMinWords, err = intFromEnv("TR_SEG_MIN_WORDS", cfg.SegMinWords); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.SegMaxWords, err = intFromEnv("TR_SEG_MAX_WORDS", cfg.SegMaxWords); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.SegMaxChars, err = intFromEnv("TR_SEG_MAX_CHARS", cfg.SegMaxChars); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.BeatStableCount, err = intFromEnv("TR_BEAT_STABLE_COUNT", cfg.BeatStableCount); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.TranslateDelayWords, err = intFromEnv("TR_TRANSLATE_DELAY_WORDS", cfg.TranslateDelayWords); err != nil {
		return TranslatorConfig{}, err
	}
	if v, err2 := durationFromEnv("TR_TRANSLATE_DELAY_RELEASE", time.Duration(cfg.TranslateDelayRelease)*time.Millisecond); err2 != nil {
		return TranslatorConfig{}, err2
	} else {
		cfg.TranslateDelayRelease = v.Milliseconds()
	}
	if cfg.CommitQueueMax, err = intFromEnv("TR_COMMIT_QUEUE_MAX", cfg.CommitQueueMax); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.CommitBatchSize, err = intFromEnv("TR_COMMIT_BATCH_SIZE", cfg.CommitBatchSize); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.MTSerialize, err = boolFromEnv("TR_MT_SERIALIZE", cfg.MTSerialize); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.CompatVIDelta, err = boolFromEnv("TR_COMPAT_VI_DELTA", cfg.CompatVIDelta); err != nil {
		return TranslatorConfig{}, err
	}
	if cfg.ResetClearsHistory, err = boolFromEnv("TR_RESET_CLEARS_HISTORY", cfg.ResetClearsHistory); err != nil {
		return TranslatorConfig{}, err
	}

	if cfg.SegMinWords <= 0 || cfg.SegMaxWords < cfg.SegMinWords {
		return TranslatorConfig{}, fmt.Errorf("TR_SEG_MIN_WORDS/TR_SEG_MAX_WORDS misconfigured")
	}
	if cfg.CommitBatchSize <= 0 {
		return TranslatorConfig{}, fmt.Errorf("TR_COMMIT_BATCH_SIZE must be positive")
	}
	switch cfg.HistoryMode {
	case "off", "file", "postgres", "both":
	default:
		return TranslatorConfig{}, fmt.Errorf("TR_HISTORY_MODE must be one of off|file|postgres|both")
	}
	if (cfg.HistoryMode == "postgres" || cfg.HistoryMode == "both") && cfg.DatabaseURL == "" {
		return TranslatorConfig{}, fmt.Errorf("TR_DATABASE_URL required when TR_HISTORY_MODE uses postgres")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
