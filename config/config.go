package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from the
// environment with sane defaults; an optional YAML settings file overrides
// the prompt templates and generation defaults.
type Config struct {
	ListenAddr  string
	StoreRoot   string
	BackupRoot  string
	SessionFile string

	Ollama     Ollama
	Diffusion  Diffusion
	Generation Generation
}

// Ollama configures the language-model backend.
type Ollama struct {
	BaseURL       string
	ChatModel     string
	PrompterModel string
}

// Diffusion configures the image-generation backend.
type Diffusion struct {
	BaseURL string
}

// Generation carries the fixed txt2img defaults and the prompt templates
// used when composing image prompts.
type Generation struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Steps       int     `yaml:"steps"`
	AvatarSteps int     `yaml:"avatar_steps"`
	CfgScale    float64 `yaml:"cfg_scale"`
	Sampler     string  `yaml:"sampler"`
	Scheduler   string  `yaml:"scheduler"`

	NegativePrompt  string `yaml:"negative_prompt"`
	QualityTags     string `yaml:"quality_tags"`
	AvatarTemplate  string `yaml:"avatar_template"`
	PrompterSystem  string `yaml:"prompter_system"`
	PrompterRequest string `yaml:"prompter_request"`
}

// settingsFile is the YAML shape of the optional settings override.
type settingsFile struct {
	ChatModel     string     `yaml:"chat_model"`
	PrompterModel string     `yaml:"prompter_model"`
	Generation    Generation `yaml:"generation"`
}

// Load builds the configuration from environment variables, then applies the
// optional settings file named by SETTINGS_FILE (or ./settings.yaml when
// present).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		StoreRoot:   getenv("STORE_ROOT", "chat_data"),
		BackupRoot:  getenv("BACKUP_ROOT", "chat_backup"),
		SessionFile: getenv("SESSION_FILE", "last_chat.json"),
		Ollama: Ollama{
			BaseURL:       getenv("OLLAMA_URL", "http://localhost:11434"),
			ChatModel:     getenv("CHAT_MODEL", "hf.co/ArliAI/Mistral-Nemo-12B-ArliAI-RPMax-v1.1-GGUF:Q4_K_M"),
			PrompterModel: getenv("PROMPTER_MODEL", "gemma3:4b"),
		},
		Diffusion: Diffusion{
			BaseURL: getenv("SD_URL", "http://127.0.0.1:7861"),
		},
		Generation: DefaultGeneration(),
	}

	path := os.Getenv("SETTINGS_FILE")
	if path == "" {
		if _, err := os.Stat("settings.yaml"); err == nil {
			path = "settings.yaml"
		}
	}
	if path != "" {
		if err := cfg.applySettings(path); err != nil {
			return nil, fmt.Errorf("loading settings file %s: %w", path, err)
		}
	}

	return cfg, nil
}

func (c *Config) applySettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	settings := settingsFile{Generation: c.Generation}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return err
	}

	if settings.ChatModel != "" {
		c.Ollama.ChatModel = settings.ChatModel
	}
	if settings.PrompterModel != "" {
		c.Ollama.PrompterModel = settings.PrompterModel
	}
	c.Generation = settings.Generation
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
