package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Headers       map[string]string `json:"headers"`
	ListenPort    int               `json:"listen_port"`
	CacheDir      string            `json:"cache_dir"`
	MaxFileSizeMB int64             `json:"max_file_size_mb"`
	MaxRetries    int               `json:"max_retries"`
	FFmpegPath    string            `json:"ffmpeg_path"`
}

// Default returns the built-in configuration used when no config file exists.
func Default() Config {
	return Config{
		Headers: map[string]string{
			"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		ListenPort:    8084,
		CacheDir:      "./cache",
		MaxFileSizeMB: 200,
		MaxRetries:    3,
		FFmpegPath:    "ffmpeg",
	}
}

// Load reads a JSON config file on top of the defaults. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}
