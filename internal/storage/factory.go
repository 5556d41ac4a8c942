package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"posprint/internal/adapters/storage/gdrive"
	"posprint/internal/adapters/storage/localfs"
	"posprint/internal/config"
	"posprint/internal/pkg/errors"
)

func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "localfs":
		if cfg.LocalRoot == "" {
			return nil, errors.ValidationField("storage.local_root", "STORAGE_LOCAL_ROOT is required")
		}
		return localfs.New(cfg.LocalRoot), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg)

	default:
		return nil, errors.ValidationField("storage.provider", fmt.Sprintf("unknown storage provider: %s", cfg.Provider))
	}
}

func newGDriveProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	for field, v := range map[string]string{
		"gdrive.client_id":     cfg.GDriveClientID,
		"gdrive.client_secret": cfg.GDriveClientSecret,
		"gdrive.refresh_token": cfg.GDriveRefreshToken,
	} {
		if v == "" {
			return nil, errors.ValidationField(field, "required for the gdrive storage provider")
		}
	}

	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "storage.newGDriveProvider", "creating drive service")
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}

// DriveOAuthConfig requests only the drive.file scope: the archive can
// see the files it created and nothing else.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}
