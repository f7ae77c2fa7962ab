package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// credentialFiles are checked when neither credential variable is set
var credentialFiles = []string{
	"barrim-93482-firebase-adminsdk.json",
	"../barrim-93482-firebase-adminsdk.json",
}

// InitFirebase initializes the Firebase Admin SDK
func InitFirebase(ctx context.Context, cfg *Config, log zerolog.Logger) (*firebase.App, error) {
	opt, err := firebaseCredentials(cfg, log)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

func firebaseCredentials(cfg *Config, log zerolog.Logger) (option.ClientOption, error) {
	// Check for base64 encoded credentials first
	if cfg.FirebaseCredentialsBase64 != "" {
		log.Info().Msg("using Firebase credentials from base64 environment variable")
		decoded, err := base64.StdEncoding.DecodeString(cfg.FirebaseCredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
		}
		return option.WithCredentialsJSON(decoded), nil
	}

	credFile := cfg.GoogleCredentialsFile
	if credFile == "" {
		for _, path := range credentialFiles {
			if _, err := os.Stat(path); err == nil {
				credFile = path
				break
			}
		}
	}
	if credFile == "" {
		return nil, fmt.Errorf("firebase service account not found: set GOOGLE_APPLICATION_CREDENTIALS or FIREBASE_CREDENTIALS_BASE64, or place the file in one of %v", credentialFiles)
	}

	log.Info().Str("file", credFile).Msg("using Firebase credentials file")
	return option.WithCredentialsFile(credFile), nil
}
