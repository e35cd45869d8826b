package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret string `env:"JWT_SECRET,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	PingInterval         time.Duration `env:"PING_INTERVAL,required=true"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,required=true"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,required=true"`
	TeardownTimeout      time.Duration `env:"TEARDOWN_TIMEOUT,required=true"`

	HistoryPageSize int `env:"HISTORY_PAGE_SIZE,required=true"`
	SearchLimit     int `env:"SEARCH_LIMIT,required=true"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`
	GCInterval      time.Duration `env:"GC_INTERVAL,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	// 0 disables the badger inspect endpoint.
	DebugPort int `env:"DEBUG_PORT"`
}

// CensoredWordList splits the comma-separated moderation dictionary.
func (c Config) CensoredWordList() []string {
	if strings.TrimSpace(c.CensoredWords) == "" {
		return nil
	}
	parts := strings.Split(c.CensoredWords, ",")
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if w := strings.TrimSpace(p); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
