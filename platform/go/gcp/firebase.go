package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// InitFirebaseAuth initializes the Firebase app and returns an Auth client.
// credentialsFile may be empty, in which case application default
// credentials are used.
func InitFirebaseAuth(ctx context.Context, credentialsFile string) (*firebase.App, *firebaseauth.Client, error) {
	var app *firebase.App
	var err error
	if credentialsFile != "" {
		app, err = firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	} else {
		app, err = firebase.NewApp(ctx, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase app: %w", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init firebase auth: %w", err)
	}

	return app, fbAuth, nil
}
