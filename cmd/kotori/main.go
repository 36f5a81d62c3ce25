package main

import (
	"fmt"
	"os"

	"github.com/ayatsuji/kotori/common/environment"
	"github.com/ayatsuji/kotori/common/version"
	"github.com/ayatsuji/kotori/internal/kotori/app"
	"github.com/ayatsuji/kotori/internal/kotori/matrix"
)

func main() {
	fmt.Printf("Kotori Persona Bot\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if config.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Warning: no API_KEY set; completions will fail unless the persona document provides one")
	}

	bot, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Kotori: %v\n", err)
		os.Exit(1)
	}
	defer bot.Stop()

	if err := bot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Kotori: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		PersonaPath:    environment.StringOr("KOTORI_PERSONA_FILE", "character.json"),
		DataDir:        environment.StringOr("KOTORI_DATA_DIR", "."),
		DatabasePath:   environment.StringOr("DATABASE_PATH", "./kotori.db"),
		MemoryBackend:  environment.StringOr("KOTORI_MEMORY_BACKEND", "file"),
		APIURL:         environment.StringOr("API_URL", ""),
		APIKey:         environment.StringOr("API_KEY", ""),
		Admins:         environment.StringSliceOr("KOTORI_ADMINS", nil),
		PresenceStatus: environment.StringOr("KOTORI_PRESENCE", "Chatting with friends"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
		},
	}, nil
}
