package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	Polling struct {
		ScrapeSeconds  int `yaml:"scrape_seconds" json:"scrape_seconds"`
		EmailSeconds   int `yaml:"email_seconds" json:"email_seconds"`
		CleanupSeconds int `yaml:"cleanup_seconds" json:"cleanup_seconds"`
	} `yaml:"polling" json:"polling"`

	Scrape struct {
		BaseURL  string `yaml:"base_url" json:"base_url"`
		Role     string `yaml:"role" json:"role"`
		Location string `yaml:"location" json:"location"`
		Pages    int    `yaml:"pages" json:"pages"`
	} `yaml:"scrape" json:"scrape"`

	Qualify struct {
		Sector   string `yaml:"sector" json:"sector"`
		Timezone string `yaml:"timezone" json:"timezone"`
	} `yaml:"qualify" json:"qualify"`

	Extractor struct {
		Provider  string `yaml:"provider" json:"provider"` // gemini | heuristic
		Model     string `yaml:"model" json:"model"`
		APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	} `yaml:"extractor" json:"extractor"`

	Email struct {
		Enabled          bool     `yaml:"enabled" json:"enabled"`
		IMAPHost         string   `yaml:"imap_host" json:"imap_host"`
		IMAPPort         int      `yaml:"imap_port" json:"imap_port"`
		Username         string   `yaml:"username" json:"username"`
		Mailbox          string   `yaml:"mailbox" json:"mailbox"`
		SearchSubjectAny []string `yaml:"search_subject_any" json:"search_subject_any"`
	} `yaml:"email" json:"email"`

	Logging struct {
		JSON  bool `yaml:"json" json:"json"`
		Debug bool `yaml:"debug" json:"debug"`
	} `yaml:"logging" json:"logging"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

// Default matches the reference deployment: scrape Seek for electricians in
// Adelaide, qualify on the Electrical sector, dates in Adelaide time.
func Default() Config {
	var cfg Config
	cfg.App.Port = 38472
	cfg.App.DataDir = "."

	cfg.Polling.ScrapeSeconds = 3600
	cfg.Polling.EmailSeconds = 300
	cfg.Polling.CleanupSeconds = 86400

	cfg.Scrape.BaseURL = "https://www.seek.com.au"
	cfg.Scrape.Role = "Electrician"
	cfg.Scrape.Location = "Adelaide"
	cfg.Scrape.Pages = 1

	cfg.Qualify.Sector = "Electrical"
	cfg.Qualify.Timezone = "Australia/Adelaide"

	cfg.Extractor.Provider = "gemini"
	cfg.Extractor.Model = "gemini-2.5-flash"
	cfg.Extractor.APIKeyEnv = "GEMINI_API_KEY"

	cfg.Email.Mailbox = "INBOX"

	return cfg
}
